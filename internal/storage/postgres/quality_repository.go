package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
	"github.com/rescuedogs/aggregator/internal/quality"
)

// QualityRepository implements quality.Repository against the animals and
// quality_scores tables.
type QualityRepository struct {
	q       querier
	animals *AnimalRepository
}

var _ quality.Repository = (*QualityRepository)(nil)

func (r *QualityRepository) ListAnimals(ctx context.Context, organizationID int64) ([]animals.Animal, error) {
	return r.animals.ListByOrganization(ctx, organizationID)
}

func (r *QualityRepository) RecordScores(ctx context.Context, scores []quality.Score) error {
	for _, s := range scores {
		_, err := r.q.Exec(ctx, `
			INSERT INTO quality_scores (
				organization_id, animal_id,
				completeness_score, standardization_score, rich_content_score, visual_appeal_score, overall_score,
				computed_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			s.OrganizationID, s.AnimalID,
			s.Completeness, s.Standardization, s.RichContent, s.VisualAppeal, s.Overall,
			s.ComputedAt,
		)
		if err != nil {
			return fmt.Errorf("postgres: record quality score: %w", err)
		}
	}
	return nil
}

func (r *QualityRepository) LatestOverallScore(ctx context.Context, organizationID int64, asOf time.Time) (float64, bool, error) {
	var overall sql.NullFloat64
	row := r.q.QueryRow(ctx, `
		SELECT avg(overall_score)
		FROM quality_scores
		WHERE organization_id = $1 AND computed_at < $2
		  AND computed_at = (
			SELECT max(computed_at) FROM quality_scores WHERE organization_id = $1 AND computed_at < $2
		  )`, organizationID, asOf)
	if err := row.Scan(&overall); err != nil {
		return 0, false, fmt.Errorf("postgres: latest quality score: %w", err)
	}
	if !overall.Valid {
		return 0, false, nil
	}
	return overall.Float64, true, nil
}
