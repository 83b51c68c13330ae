package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
)

func baseAnimal(orgID int64, externalID string) animals.Animal {
	return animals.Animal{
		OrganizationID:  orgID,
		ExternalID:      externalID,
		AdoptionURL:     "https://example.org/dogs/" + externalID,
		Name:            "Rex",
		Breed:           "Labrador Mix",
		Age:             "2 years",
		Sex:             "male",
		Size:            "large",
		PrimaryImageURL: "https://example.org/images/" + externalID + ".jpg",
		Properties:      map[string]any{"color": "brown"},
		Status:          animals.StatusAvailable,
		AvailabilityConfidence: animals.ConfidenceHigh,
		LastSeenAt:      time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestAnimalRepository_UpsertAndListByOrganization(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	orgRepo := &OrganizationRepository{q: pool}
	animalRepo := &AnimalRepository{q: pool}

	orgID, err := orgRepo.Upsert(ctx, organizationFixture("org-1"))
	require.NoError(t, err)

	id, err := animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)
	require.NotZero(t, id)

	list, err := animalRepo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "Rex", list[0].Name)
	require.Equal(t, animals.StatusAvailable, list[0].Status)
	require.Equal(t, animals.ConfidenceHigh, list[0].AvailabilityConfidence)
	require.Equal(t, "brown", list[0].Properties["color"])
}

func TestAnimalRepository_UpsertResetsReconciliationStateOnReObservation(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	orgRepo := &OrganizationRepository{q: pool}
	animalRepo := &AnimalRepository{q: pool}

	orgID, err := orgRepo.Upsert(ctx, organizationFixture("org-2"))
	require.NoError(t, err)

	id, err := animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)

	require.NoError(t, animalRepo.ApplyStaleTransition(ctx, id, 2, animals.ConfidenceLow, false, time.Now().Add(-48*time.Hour)))

	_, err = animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)

	list, err := animalRepo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 0, list[0].ConsecutiveScrapesMissing)
	require.Equal(t, animals.ConfidenceHigh, list[0].AvailabilityConfidence)
}

func TestAnimalRepository_ExistingAdoptionURLs(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	orgRepo := &OrganizationRepository{q: pool}
	animalRepo := &AnimalRepository{q: pool}

	orgID, err := orgRepo.Upsert(ctx, organizationFixture("org-3"))
	require.NoError(t, err)

	_, err = animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)
	_, err = animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-2"))
	require.NoError(t, err)

	urls, err := animalRepo.ExistingAdoptionURLs(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, urls, 2)
	require.Contains(t, urls, "https://example.org/dogs/dog-1")
}

func TestAnimalRepository_ApplyStaleTransition(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	orgRepo := &OrganizationRepository{q: pool}
	animalRepo := &AnimalRepository{q: pool}

	orgID, err := orgRepo.Upsert(ctx, organizationFixture("org-4"))
	require.NoError(t, err)

	id, err := animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)

	lastSeen := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, animalRepo.ApplyStaleTransition(ctx, id, 1, animals.ConfidenceMedium, true, lastSeen))

	list, err := animalRepo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	require.Equal(t, 1, list[0].ConsecutiveScrapesMissing)
	require.Equal(t, animals.ConfidenceMedium, list[0].AvailabilityConfidence)
	require.WithinDuration(t, lastSeen, list[0].LastSeenAt, time.Second)
}

func TestAnimalRepository_ApplyStaleTransition_NotSeenLeavesLastSeenAtUnchanged(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	orgRepo := &OrganizationRepository{q: pool}
	animalRepo := &AnimalRepository{q: pool}

	orgID, err := orgRepo.Upsert(ctx, organizationFixture("org-4b"))
	require.NoError(t, err)

	id, err := animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)

	before, err := animalRepo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	originalLastSeen := before[0].LastSeenAt

	require.NoError(t, animalRepo.ApplyStaleTransition(ctx, id, 1, animals.ConfidenceMedium, false, time.Now()))

	after, err := animalRepo.ListByOrganization(ctx, orgID)
	require.NoError(t, err)
	require.Equal(t, 1, after[0].ConsecutiveScrapesMissing)
	require.Equal(t, animals.ConfidenceMedium, after[0].AvailabilityConfidence)
	require.WithinDuration(t, originalLastSeen, after[0].LastSeenAt, time.Second)
}

func TestAnimalRepository_RecentObservedExternalIDs(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	orgRepo := &OrganizationRepository{q: pool}
	animalRepo := &AnimalRepository{q: pool}

	orgID, err := orgRepo.Upsert(ctx, organizationFixture("org-5"))
	require.NoError(t, err)

	id1, err := animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)
	id2, err := animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-2"))
	require.NoError(t, err)

	ids, err := animalRepo.RecentObservedExternalIDs(ctx, orgID)
	require.NoError(t, err)
	require.Equal(t, id1, ids["dog-1"])
	require.Equal(t, id2, ids["dog-2"])
}

func TestAnimalRepository_RecordAuditEntry(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t, ctx)
	orgRepo := &OrganizationRepository{q: pool}
	animalRepo := &AnimalRepository{q: pool}

	orgID, err := orgRepo.Upsert(ctx, organizationFixture("org-6"))
	require.NoError(t, err)

	id, err := animalRepo.Upsert(ctx, baseAnimal(orgID, "dog-1"))
	require.NoError(t, err)

	entry := animals.AuditEntry{
		AnimalID:                  id,
		OrganizationID:            orgID,
		ConsecutiveScrapesMissing: 2,
		AvailabilityConfidence:    animals.ConfidenceMedium,
		RecordedAt:                time.Now(),
	}
	require.NoError(t, animalRepo.RecordAuditEntry(ctx, entry))

	var count int
	row := pool.QueryRow(ctx, `SELECT count(*) FROM animal_audit_trail WHERE animal_id = $1`, id)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}
