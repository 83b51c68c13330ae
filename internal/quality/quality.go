// Package quality implements the offline Quality Monitor (spec §4.9): a
// pure, read-only analyzer over stored animals, scored in four weighted
// categories and aggregated per organization with a trend indicator against
// the prior run.
package quality

import (
	"context"
	"fmt"
	"time"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
)

// Category weights, summing to 100 (spec §4.9).
const (
	weightCompleteness    = 40.0
	weightStandardization = 30.0
	weightRichContent     = 20.0
	weightVisualAppeal    = 10.0
)

// richContentMinLength is the Properties description length, in
// characters, above which an animal earns full rich-content credit.
const richContentMinLength = 120

// Score is one animal's quality breakdown, 0-100 per category and overall.
type Score struct {
	AnimalID        int64
	OrganizationID  int64
	Completeness    float64
	Standardization float64
	RichContent     float64
	VisualAppeal    float64
	Overall         float64
	ComputedAt      time.Time
}

// ScoreAnimal scores one animal's listing completeness, standardization
// confidence, descriptive richness, and image presence.
func ScoreAnimal(a animals.Animal) Score {
	completeness := completenessScore(a)
	standardization := a.StandardizationConfidence * 100
	richContent := richContentScore(a)
	visualAppeal := visualAppealScore(a)

	overall := completeness*(weightCompleteness/100) +
		standardization*(weightStandardization/100) +
		richContent*(weightRichContent/100) +
		visualAppeal*(weightVisualAppeal/100)

	return Score{
		AnimalID:        a.ID,
		OrganizationID:  a.OrganizationID,
		Completeness:    completeness,
		Standardization: standardization,
		RichContent:     richContent,
		VisualAppeal:    visualAppeal,
		Overall:         overall,
	}
}

// completenessScore rewards presence of the core listing fields a rescue
// page is expected to carry: name, breed, age, sex, size, adoption URL.
func completenessScore(a animals.Animal) float64 {
	fields := []string{a.Name, a.Breed, a.Age, a.Sex, a.Size, a.AdoptionURL}
	present := 0
	for _, f := range fields {
		if f != "" {
			present++
		}
	}
	return 100 * float64(present) / float64(len(fields))
}

// richContentScore rewards a non-trivial free-text description and any
// additional scraped properties beyond the core fields.
func richContentScore(a animals.Animal) float64 {
	score := 0.0
	if desc, ok := a.Properties["description"].(string); ok && len(desc) > 0 {
		score += 70 * clamp01(float64(len(desc))/richContentMinLength)
	}
	extra := 0
	for k := range a.Properties {
		if k != "description" {
			extra++
		}
	}
	if extra > 0 {
		score += 30 * clamp01(float64(extra)/3)
	}
	return score
}

func visualAppealScore(a animals.Animal) float64 {
	if a.PrimaryImageURL != "" {
		return 100
	}
	return 0
}

func clamp01(f float64) float64 {
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

// Trend describes how an organization's overall score moved since the
// previous report.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendSteady    Trend = "steady"
	TrendDeclining Trend = "declining"
)

// trendEpsilon is the minimum absolute point change treated as a real
// movement rather than noise.
const trendEpsilon = 1.0

// OrganizationReport is the per-organization aggregate the original
// monitoring/data_quality_monitor.py reports, supplemented beyond spec.md's
// single 0-100 number with a breakdown and trend.
type OrganizationReport struct {
	OrganizationID   int64
	OrganizationName string
	AnimalCount      int
	AverageScore     Score
	PreviousScore    *float64
	Trend            Trend
	ComputedAt       time.Time
}

// Repository is the storage surface the Quality Monitor reads from and
// writes computed scores to.
type Repository interface {
	// ListAnimals returns every animal currently on record for an
	// organization, the same data a scrape would have reconciled.
	ListAnimals(ctx context.Context, organizationID int64) ([]animals.Animal, error)

	// RecordScores persists one run's per-animal scores.
	RecordScores(ctx context.Context, scores []Score) error

	// LatestOverallScore returns the most recently recorded overall score
	// for an organization before asOf, for trend comparison. Returns
	// (0, false) if no prior run exists.
	LatestOverallScore(ctx context.Context, organizationID int64, asOf time.Time) (float64, bool, error)
}

// Monitor runs quality analysis against a Repository.
type Monitor struct {
	repo Repository
}

// New returns a Monitor backed by repo.
func New(repo Repository) *Monitor {
	return &Monitor{repo: repo}
}

// OrganizationReport scores every animal on record for organizationID,
// persists the scores, and returns the aggregate with a trend against the
// prior run.
func (m *Monitor) OrganizationReport(ctx context.Context, organizationID int64, organizationName string) (OrganizationReport, error) {
	now := time.Now()

	list, err := m.repo.ListAnimals(ctx, organizationID)
	if err != nil {
		return OrganizationReport{}, fmt.Errorf("quality: list animals: %w", err)
	}

	report := OrganizationReport{
		OrganizationID:   organizationID,
		OrganizationName: organizationName,
		AnimalCount:      len(list),
		ComputedAt:       now,
		Trend:            TrendSteady,
	}
	if len(list) == 0 {
		return report, nil
	}

	scores := make([]Score, len(list))
	var sum Score
	for i, a := range list {
		s := ScoreAnimal(a)
		s.ComputedAt = now
		scores[i] = s
		sum.Completeness += s.Completeness
		sum.Standardization += s.Standardization
		sum.RichContent += s.RichContent
		sum.VisualAppeal += s.VisualAppeal
		sum.Overall += s.Overall
	}
	n := float64(len(list))
	report.AverageScore = Score{
		OrganizationID:  organizationID,
		Completeness:    sum.Completeness / n,
		Standardization: sum.Standardization / n,
		RichContent:     sum.RichContent / n,
		VisualAppeal:    sum.VisualAppeal / n,
		Overall:         sum.Overall / n,
		ComputedAt:      now,
	}

	if prev, ok, err := m.repo.LatestOverallScore(ctx, organizationID, now); err == nil && ok {
		report.PreviousScore = &prev
		delta := report.AverageScore.Overall - prev
		switch {
		case delta > trendEpsilon:
			report.Trend = TrendImproving
		case delta < -trendEpsilon:
			report.Trend = TrendDeclining
		default:
			report.Trend = TrendSteady
		}
	}

	if err := m.repo.RecordScores(ctx, scores); err != nil {
		return report, fmt.Errorf("quality: record scores: %w", err)
	}
	return report, nil
}
