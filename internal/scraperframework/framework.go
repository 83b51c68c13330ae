// Package scraperframework implements the Scraper Framework (spec §4.4): a
// template-method driver that collects raw listings from a one-method
// Adapter, filters/standardizes/validates them, submits the result through
// the Batch Processor, and atomically applies the Session Manager's
// stale-detection transitions when the scrape closes. Adapters never touch
// the database directly — Run is the only caller of the storage layer from
// an adapter's perspective, mirroring the teacher's Scraper/IngestClient
// split.
package scraperframework

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rescuedogs/aggregator/internal/batchproc"
	"github.com/rescuedogs/aggregator/internal/domain/animals"
	"github.com/rescuedogs/aggregator/internal/domain/organizations"
	"github.com/rescuedogs/aggregator/internal/domain/scrapelogs"
	"github.com/rescuedogs/aggregator/internal/filtering"
	"github.com/rescuedogs/aggregator/internal/progress"
	"github.com/rescuedogs/aggregator/internal/session"
	"github.com/rescuedogs/aggregator/internal/standardize"
	"github.com/rescuedogs/aggregator/internal/storage/postgres"
)

// Adapter is the one method a concrete scraper implements. It must close the
// returned channel when collection finishes, and respect ctx cancellation.
type Adapter interface {
	CollectData(ctx context.Context) (<-chan animals.RawAnimal, error)
}

// Config tunes one Run invocation; it is built from orgconfig.OrganizationConfig
// by the orchestrator.
type Config struct {
	RateLimitDelay      time.Duration
	BatchSize           int
	MaxRetries          int
	SkipExistingAnimals bool
	GuardConfig         session.GuardConfig
	ProgressConfig      progress.Config
}

// RunSummary is the outcome of one Run call, the source for both the
// persisted ScrapeLog and the orchestrator's run-summary JSON (spec §6).
type RunSummary struct {
	OrganizationID int64
	ScrapeLogID    int64
	CorrelationID  string
	Outcome        scrapelogs.Outcome

	DogsFound     int
	DogsSkipped   int
	DogsAdded     int
	DogsUpdated   int
	DogsUnchanged int

	DurationCollectionSeconds float64
	DurationProcessingSeconds float64
	DurationTotalSeconds      float64

	BatchErrors []batchproc.Error
	Alert       *session.Alert

	errorDetail string
}

// plan is Run's database-free core: given what is already stored and what
// was just collected, it decides what to upsert, how to classify each item,
// and what the session should transition. Separated from Run so the
// decision logic is exercised without a database.
type plan struct {
	toUpsert    []animals.Animal
	added       int
	updated     int
	unchanged   int
	skipped     int
	foundCount  int
	closeResult session.CloseResult
}

// buildPlan runs the filter → validate → standardize → classify pipeline
// over one scrape's raw collection.
func buildPlan(
	ctx context.Context,
	organizationID int64,
	existing map[string]animals.Animal,
	raw []animals.RawAnimal,
	filteringSvc *filtering.Service,
	sess *session.Session,
	historicalCounts []int,
	cfg Config,
	now time.Time,
) (plan, error) {
	filteringSvc.RecordAllFound(sess, raw)

	filtered, err := filteringSvc.FilterNew(ctx, raw)
	if err != nil {
		return plan{}, fmt.Errorf("scraperframework: filter new: %w", err)
	}

	p := plan{
		foundCount: filteringSvc.EffectiveFoundCount(filtered),
		skipped:    filteringSvc.TotalSkipped(),
	}

	for _, item := range filtered {
		if err := item.Validate(); err != nil {
			p.skipped++
			continue
		}

		std := standardize.Standardize(item, now)
		a := animals.Animal{
			OrganizationID:            organizationID,
			ExternalID:                item.ExternalID,
			AdoptionURL:               item.AdoptionURL,
			Name:                      item.Name,
			Breed:                     item.Breed,
			Age:                       item.Age,
			Sex:                       item.Sex,
			Size:                      item.Size,
			StandardizedBreed:         std.StandardizedBreed,
			BreedGroup:                std.BreedGroup,
			PrimaryBreed:              std.PrimaryBreed,
			StandardizedSize:          std.StandardizedSize,
			AgeMinMonths:              std.AgeMinMonths,
			AgeMaxMonths:              std.AgeMaxMonths,
			AgeCategory:               std.AgeCategory,
			StandardizedSex:           std.StandardizedSex,
			StandardizationConfidence: std.Confidence,
			PrimaryImageURL:           item.PrimaryImageURL,
			Properties:                item.Properties,
			Status:                    animals.StatusAvailable,
			AvailabilityConfidence:    animals.ConfidenceHigh,
			LastSeenAt:                now,
		}
		if err := a.Validate(); err != nil {
			p.skipped++
			continue
		}

		p.toUpsert = append(p.toUpsert, a)
		classifyInto(&p, existing[a.ExternalID], a)
	}

	p.closeResult = sess.Close(existing, historicalCounts, cfg.GuardConfig)
	return p, nil
}

// classifyInto buckets one standardized animal as added, updated, or
// unchanged relative to its previously-stored counterpart (if any). "Updated"
// requires a field that would actually change the row to differ — a scrape
// that re-observes an identical listing must not inflate the updated count.
func classifyInto(p *plan, prior animals.Animal, next animals.Animal) {
	if prior.ID == 0 {
		p.added++
		return
	}
	if sameListing(prior, next) {
		p.unchanged++
		return
	}
	p.updated++
}

func sameListing(a, b animals.Animal) bool {
	return a.Name == b.Name &&
		a.Breed == b.Breed &&
		a.Age == b.Age &&
		a.Sex == b.Sex &&
		a.Size == b.Size &&
		a.AdoptionURL == b.AdoptionURL &&
		a.PrimaryImageURL == b.PrimaryImageURL
}

// Run drives one organization's scrape end to end (spec §4.4 steps 1-8).
func Run(ctx context.Context, gw *postgres.Gateway, org organizations.Organization, adapter Adapter, cfg Config, logger zerolog.Logger) (RunSummary, error) {
	started := time.Now()
	correlationID := uuid.NewString()
	logger = logger.With().Str("organization", org.ConfigID).Str("correlation_id", correlationID).Logger()

	scrapeLogID, err := gw.ScrapeLogs().Open(ctx, org.ID, started)
	if err != nil {
		return RunSummary{}, fmt.Errorf("scraperframework: open scrape log: %w", err)
	}

	summary := RunSummary{
		OrganizationID: org.ID,
		ScrapeLogID:    scrapeLogID,
		CorrelationID:  correlationID,
		Outcome:        scrapelogs.OutcomeFailure,
	}

	collectStart := time.Now()
	raw, err := collect(ctx, adapter, cfg)
	summary.DurationCollectionSeconds = time.Since(collectStart).Seconds()
	if err != nil {
		summary.ErrorDetail(err)
		_ = closeLog(ctx, gw, summary, logger)
		return summary, fmt.Errorf("scraperframework: collect: %w", err)
	}

	processStart := time.Now()

	existing, err := gw.Animals().ListByOrganization(ctx, org.ID)
	if err != nil {
		return summary, fmt.Errorf("scraperframework: list existing animals: %w", err)
	}
	existingByExternalID := make(map[string]animals.Animal, len(existing))
	for _, a := range existing {
		existingByExternalID[a.ExternalID] = a
	}

	historicalCounts, err := session.HistoricalCounts(ctx, gw.ScrapeLogs(), org.ID, cfg.GuardConfig.HistoryWindow)
	if err != nil {
		return summary, fmt.Errorf("scraperframework: historical counts: %w", err)
	}

	filteringSvc := filtering.New(gw.Animals(), org.ID, cfg.SkipExistingAnimals)
	sess := session.New()

	p, err := buildPlan(ctx, org.ID, existingByExternalID, raw, filteringSvc, sess, historicalCounts, cfg, time.Now())
	if err != nil {
		return summary, err
	}

	batchCfg := batchproc.Config{BatchSize: cfg.BatchSize, MaxRetries: cfg.MaxRetries, RetryDelay: time.Second, CommitFrequency: 1}
	result, err := batchproc.Process(ctx, gw.Beginner(), p.toUpsert, renderAnimalUpsert, batchCfg, nil)
	if err != nil {
		return summary, fmt.Errorf("scraperframework: batch upsert: %w", err)
	}

	summary.DurationProcessingSeconds = time.Since(processStart).Seconds()
	summary.DogsFound = p.foundCount
	summary.DogsSkipped = p.skipped
	summary.DogsAdded = p.added
	summary.DogsUpdated = p.updated
	summary.DogsUnchanged = p.unchanged
	summary.BatchErrors = result.Errors
	summary.Outcome = p.closeResult.Outcome
	summary.Alert = p.closeResult.Alert

	err = gw.WithTx(ctx, func(txCtx context.Context, repos postgres.TxRepos) error {
		appliedAt := time.Now()
		for _, t := range p.closeResult.Transitions {
			if err := repos.Animals.ApplyStaleTransition(txCtx, t.AnimalID, t.ConsecutiveScrapesMissing, t.AvailabilityConfidence, t.Seen, appliedAt); err != nil {
				return err
			}
			entry := animals.AuditEntry{
				AnimalID:                  t.AnimalID,
				OrganizationID:            org.ID,
				ConsecutiveScrapesMissing: t.ConsecutiveScrapesMissing,
				AvailabilityConfidence:    t.AvailabilityConfidence,
				RecordedAt:                appliedAt,
			}
			if err := repos.Animals.RecordAuditEntry(txCtx, entry); err != nil {
				return err
			}
		}
		active, total := countAvailability(existingByExternalID, p)
		return repos.Organizations.UpdateScrapeStamp(txCtx, org.ID, active, total, time.Now())
	})
	if err != nil {
		return summary, fmt.Errorf("scraperframework: apply session close transition: %w", err)
	}

	summary.DurationTotalSeconds = time.Since(started).Seconds()
	if err := closeLog(ctx, gw, summary, logger); err != nil {
		return summary, err
	}

	logger.Info().
		Int("found", summary.DogsFound).
		Int("added", summary.DogsAdded).
		Int("updated", summary.DogsUpdated).
		Str("outcome", string(summary.Outcome)).
		Msg("scrape complete")

	return summary, nil
}

// ErrorDetail records a fatal collection failure on the summary so Close
// still writes a meaningful scrape_logs.error_detail.
func (s *RunSummary) ErrorDetail(err error) { s.errorDetail = err.Error() }

func collect(ctx context.Context, adapter Adapter, cfg Config) ([]animals.RawAnimal, error) {
	ch, err := adapter.CollectData(ctx)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimitDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RateLimitDelay), 1)
	}

	var out []animals.RawAnimal
	for {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case item, ok := <-ch:
			if !ok {
				return out, nil
			}
			out = append(out, item)
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return out, err
				}
			}
		}
	}
}

func renderAnimalUpsert(a animals.Animal) (batchproc.Statement, error) {
	if err := a.Validate(); err != nil {
		return batchproc.Statement{}, err
	}
	return batchproc.Statement{
		SQL: animalUpsertSQL,
		Args: []any{
			a.OrganizationID, a.ExternalID, a.AdoptionURL, a.Name,
			a.Breed, a.Age, a.Sex, a.Size,
			a.StandardizedBreed, a.BreedGroup, a.PrimaryBreed, a.StandardizedSize, a.StandardizedSex,
			a.AgeMinMonths, a.AgeMaxMonths, a.AgeCategory, a.StandardizationConfidence,
			a.PrimaryImageURL, propertiesOrEmpty(a.Properties),
			string(a.Status), string(a.AvailabilityConfidence), a.ConsecutiveScrapesMissing,
			a.LastSeenAt,
		},
	}, nil
}

// animalUpsertSQL mirrors postgres.AnimalRepository.Upsert's statement, except
// that it does not write adoption_checked_at or adoption_check_data; it is
// re-declared here (rather than reusing the repository method) because
// batchproc.RenderFunc produces a plain Statement, not a repository call, so
// that the same batch engine serves any Tx implementation, not just this
// repository's.
const animalUpsertSQL = `
	INSERT INTO animals (
		organization_id, external_id, adoption_url, name,
		breed, age_text, sex, size,
		standardized_breed, breed_group, primary_breed, standardized_size, standardized_sex,
		age_min_months, age_max_months, age_category, standardization_confidence,
		primary_image_url, properties,
		status, availability_confidence, consecutive_scrapes_missing,
		last_seen_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, $8,
		$9, $10, $11, $12, $13,
		$14, $15, $16, $17,
		$18, $19,
		$20, $21, $22,
		$23
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
		updated_at = now()`

func propertiesOrEmpty(properties map[string]any) map[string]any {
	if properties == nil {
		return map[string]any{}
	}
	return properties
}

func countAvailability(existing map[string]animals.Animal, p plan) (active, total int) {
	total = len(existing) + p.added
	active = total - countLowConfidence(existing)
	return active, total
}

func countLowConfidence(existing map[string]animals.Animal) int {
	n := 0
	for _, a := range existing {
		if a.AvailabilityConfidence == animals.ConfidenceLow {
			n++
		}
	}
	return n
}

func closeLog(ctx context.Context, gw *postgres.Gateway, s RunSummary, logger zerolog.Logger) error {
	log := scrapelogs.ScrapeLog{
		ID:                        s.ScrapeLogID,
		OrganizationID:            s.OrganizationID,
		Outcome:                   s.Outcome,
		DogsFound:                 s.DogsFound,
		DogsSkipped:               s.DogsSkipped,
		DogsAdded:                 s.DogsAdded,
		DogsUpdated:               s.DogsUpdated,
		DogsUnchanged:             s.DogsUnchanged,
		DurationCollectionSeconds: s.DurationCollectionSeconds,
		DurationProcessingSeconds: s.DurationProcessingSeconds,
		DurationTotalSeconds:      s.DurationTotalSeconds,
		ErrorDetail:               s.errorDetail,
		TelemetryCorrelationID:    s.CorrelationID,
	}
	now := time.Now()
	log.EndedAt = &now

	if err := gw.ScrapeLogs().Close(ctx, log); err != nil {
		logger.Error().Err(err).Msg("scraperframework: failed to close scrape log")
		return fmt.Errorf("scraperframework: close scrape log: %w", err)
	}
	return nil
}
