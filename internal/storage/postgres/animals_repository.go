package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
)

// AnimalRepository implements animals.Repository.
type AnimalRepository struct {
	q querier
}

var _ animals.Repository = (*AnimalRepository)(nil)

func (r *AnimalRepository) ExistingAdoptionURLs(ctx context.Context, organizationID int64) (map[string]struct{}, error) {
	rows, err := r.q.Query(ctx, `SELECT adoption_url FROM animals WHERE organization_id = $1`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: existing adoption urls: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("postgres: scan adoption url: %w", err)
		}
		out[url] = struct{}{}
	}
	return out, rows.Err()
}

func (r *AnimalRepository) Upsert(ctx context.Context, a animals.Animal) (int64, error) {
	properties, err := json.Marshal(a.Properties)
	if err != nil {
		return 0, fmt.Errorf("postgres: marshal properties: %w", err)
	}
	checkData := animals.AdoptionCheckDataOrMarker(a.AdoptionCheckData)

	var id int64
	err = r.q.QueryRow(ctx, `
		INSERT INTO animals (
			organization_id, external_id, adoption_url, name,
			breed, age_text, sex, size,
			standardized_breed, breed_group, primary_breed, standardized_size, standardized_sex,
			age_min_months, age_max_months, age_category, standardization_confidence,
			primary_image_url, properties,
			status, availability_confidence, consecutive_scrapes_missing,
			last_seen_at, adoption_checked_at, adoption_check_data
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17,
			$18, $19,
			$20, $21, $22,
			$23, $24, $25
		)
		ON CONFLICT (organization_id, external_id) DO UPDATE SET
			adoption_url = EXCLUDED.adoption_url,
			name = EXCLUDED.name,
			breed = EXCLUDED.breed,
			age_text = EXCLUDED.age_text,
			sex = EXCLUDED.sex,
			size = EXCLUDED.size,
			standardized_breed = EXCLUDED.standardized_breed,
			breed_group = EXCLUDED.breed_group,
			primary_breed = EXCLUDED.primary_breed,
			standardized_size = EXCLUDED.standardized_size,
			standardized_sex = EXCLUDED.standardized_sex,
			age_min_months = EXCLUDED.age_min_months,
			age_max_months = EXCLUDED.age_max_months,
			age_category = EXCLUDED.age_category,
			standardization_confidence = EXCLUDED.standardization_confidence,
			primary_image_url = EXCLUDED.primary_image_url,
			properties = EXCLUDED.properties,
			consecutive_scrapes_missing = 0,
			availability_confidence = 'high',
			last_seen_at = EXCLUDED.last_seen_at,
			adoption_checked_at = EXCLUDED.adoption_checked_at,
			adoption_check_data = EXCLUDED.adoption_check_data,
			updated_at = now()
		RETURNING id`,
		a.OrganizationID, a.ExternalID, a.AdoptionURL, a.Name,
		a.Breed, a.Age, a.Sex, a.Size,
		a.StandardizedBreed, a.BreedGroup, a.PrimaryBreed, a.StandardizedSize, a.StandardizedSex,
		a.AgeMinMonths, a.AgeMaxMonths, a.AgeCategory, a.StandardizationConfidence,
		a.PrimaryImageURL, properties,
		string(a.Status), string(a.AvailabilityConfidence), a.ConsecutiveScrapesMissing,
		a.LastSeenAt, a.AdoptionCheckedAt, checkData,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: upsert animal: %w", err)
	}
	return id, nil
}

func (r *AnimalRepository) RecentObservedExternalIDs(ctx context.Context, organizationID int64) (map[string]int64, error) {
	rows, err := r.q.Query(ctx, `SELECT external_id, id FROM animals WHERE organization_id = $1`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent observed external ids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var externalID string
		var id int64
		if err := rows.Scan(&externalID, &id); err != nil {
			return nil, fmt.Errorf("postgres: scan external id: %w", err)
		}
		out[externalID] = id
	}
	return out, rows.Err()
}

func (r *AnimalRepository) ApplyStaleTransition(ctx context.Context, id int64, missing int, confidence animals.Confidence, seen bool, lastSeenAt time.Time) error {
	_, err := r.q.Exec(ctx, `
		UPDATE animals
		SET consecutive_scrapes_missing = $2,
		    availability_confidence = $3,
		    last_seen_at = CASE WHEN $4 THEN $5 ELSE last_seen_at END,
		    updated_at = now()
		WHERE id = $1`, id, missing, string(confidence), seen, lastSeenAt)
	if err != nil {
		return fmt.Errorf("postgres: apply stale transition: %w", err)
	}
	return nil
}

func (r *AnimalRepository) ListByOrganization(ctx context.Context, organizationID int64) ([]animals.Animal, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, organization_id, external_id, adoption_url, name,
		       breed, age_text, sex, size,
		       standardized_breed, breed_group, primary_breed, standardized_size, standardized_sex,
		       age_min_months, age_max_months, age_category, standardization_confidence,
		       primary_image_url, properties,
		       status, availability_confidence, consecutive_scrapes_missing,
		       last_seen_at, adoption_checked_at, adoption_check_data,
		       created_at, updated_at
		FROM animals
		WHERE organization_id = $1
		ORDER BY id`, organizationID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list animals by organization: %w", err)
	}
	defer rows.Close()

	var out []animals.Animal
	for rows.Next() {
		a, err := scanAnimal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan animal: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecordAuditEntry appends one stale-detection transition to
// animal_audit_trail, assigning it a time-sortable ULID so entries retain
// their relative order even when listed outside the transaction that
// created them (spec §9 supplement).
func (r *AnimalRepository) RecordAuditEntry(ctx context.Context, entry animals.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ulid.Make().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO animal_audit_trail (id, animal_id, organization_id, consecutive_scrapes_missing, availability_confidence, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.AnimalID, entry.OrganizationID, entry.ConsecutiveScrapesMissing, string(entry.AvailabilityConfidence), entry.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record audit entry: %w", err)
	}
	return nil
}

func scanAnimal(row rowScanner) (animals.Animal, error) {
	var a animals.Animal
	var status, confidence string
	var properties []byte

	err := row.Scan(
		&a.ID, &a.OrganizationID, &a.ExternalID, &a.AdoptionURL, &a.Name,
		&a.Breed, &a.Age, &a.Sex, &a.Size,
		&a.StandardizedBreed, &a.BreedGroup, &a.PrimaryBreed, &a.StandardizedSize, &a.StandardizedSex,
		&a.AgeMinMonths, &a.AgeMaxMonths, &a.AgeCategory, &a.StandardizationConfidence,
		&a.PrimaryImageURL, &properties,
		&status, &confidence, &a.ConsecutiveScrapesMissing,
		&a.LastSeenAt, &a.AdoptionCheckedAt, &a.AdoptionCheckData,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return animals.Animal{}, err
	}

	a.Status = animals.Status(status)
	a.AvailabilityConfidence = animals.Confidence(confidence)
	if len(properties) > 0 {
		if err := json.Unmarshal(properties, &a.Properties); err != nil {
			return animals.Animal{}, fmt.Errorf("unmarshal properties: %w", err)
		}
	}
	return a, nil
}
