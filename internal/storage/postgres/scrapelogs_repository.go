package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/rescuedogs/aggregator/internal/domain/scrapelogs"
)

// ScrapeLogRepository implements scrapelogs.Repository.
type ScrapeLogRepository struct {
	q querier
}

var _ scrapelogs.Repository = (*ScrapeLogRepository)(nil)

func (r *ScrapeLogRepository) Open(ctx context.Context, organizationID int64, startedAt time.Time) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO scrape_logs (organization_id, started_at, outcome)
		VALUES ($1, $2, 'failure')
		RETURNING id`, organizationID, startedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: open scrape log: %w", err)
	}
	return id, nil
}

func (r *ScrapeLogRepository) Close(ctx context.Context, log scrapelogs.ScrapeLog) error {
	_, err := r.q.Exec(ctx, `
		UPDATE scrape_logs SET
			ended_at = $2, outcome = $3,
			dogs_found = $4, dogs_skipped = $5, dogs_added = $6, dogs_updated = $7, dogs_unchanged = $8,
			images_uploaded = $9, images_failed = $10,
			duration_collection_seconds = $11, duration_processing_seconds = $12, duration_total_seconds = $13,
			data_quality_score = $14, error_detail = $15, telemetry_correlation_id = $16
		WHERE id = $1`,
		log.ID, log.EndedAt, string(log.Outcome),
		log.DogsFound, log.DogsSkipped, log.DogsAdded, log.DogsUpdated, log.DogsUnchanged,
		log.ImagesUploaded, log.ImagesFailed,
		log.DurationCollectionSeconds, log.DurationProcessingSeconds, log.DurationTotalSeconds,
		log.DataQualityScore, log.ErrorDetail, log.TelemetryCorrelationID,
	)
	if err != nil {
		return fmt.Errorf("postgres: close scrape log: %w", err)
	}
	return nil
}

func (r *ScrapeLogRepository) RecentSuccessfulCounts(ctx context.Context, organizationID int64, n int) ([]int, error) {
	rows, err := r.q.Query(ctx, `
		SELECT dogs_found FROM scrape_logs
		WHERE organization_id = $1 AND outcome = 'success'
		ORDER BY started_at DESC
		LIMIT $2`, organizationID, n)
	if err != nil {
		return nil, fmt.Errorf("postgres: recent successful counts: %w", err)
	}
	defer rows.Close()

	var counts []int
	for rows.Next() {
		var count int
		if err := rows.Scan(&count); err != nil {
			return nil, fmt.Errorf("postgres: scan dogs_found: %w", err)
		}
		counts = append(counts, count)
	}
	return counts, rows.Err()
}
