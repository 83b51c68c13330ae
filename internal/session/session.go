// Package session implements the Session Manager (spec §4.3): the per-scrape
// observation set, the stale-detection state-machine transitions applied at
// session close, and the partial-failure guard that suppresses those
// transitions when the observed volume looks implausibly low.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rescuedogs/aggregator/internal/domain/animals"
	"github.com/rescuedogs/aggregator/internal/domain/scrapelogs"
)

// Severity is the telemetry alert level emitted alongside a partial-failure
// or zero-items guard trip.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// GuardConfig tunes the partial-failure guard. The historical-average window
// and the downgrade fraction are left as configuration per spec §9's open
// questions rather than frozen constants.
type GuardConfig struct {
	// HistoryWindow is how many recent successful scrapes feed the rolling
	// average. Default 3.
	HistoryWindow int
	// MinFraction is the fraction of the historical average below which a
	// scrape trips the guard. Default 0.5.
	MinFraction float64
	// AbsoluteFloor additionally requires the observed count itself be below
	// this floor before tripping — guards small, naturally-low-volume
	// organizations from false positives. Default 10.
	AbsoluteFloor int
}

func (c GuardConfig) normalized() GuardConfig {
	if c.HistoryWindow < 1 {
		c.HistoryWindow = 3
	}
	if c.MinFraction <= 0 {
		c.MinFraction = 0.5
	}
	if c.AbsoluteFloor < 1 {
		c.AbsoluteFloor = 10
	}
	return c
}

// Alert is a telemetry-bound record of a guard trip.
type Alert struct {
	Kind     string // "partial_failure" | "zero_items"
	Severity Severity
	Observed int
	Expected float64
}

// Session is the in-memory per-scrape observation set plus counters (spec
// §3). It is owned by exactly one ScrapeLog and lives only for the duration
// of one scrape.
type Session struct {
	mu       sync.Mutex
	observed map[string]struct{}
}

// New returns an empty Session. The observed-ids set must be guarded with a
// mutex when adapters use a detail-fetch worker pool (spec §9); RecordFound
// always takes the lock, so this is safe by construction regardless of
// caller concurrency.
func New() *Session {
	return &Session{observed: make(map[string]struct{})}
}

// RecordFound marks externalID as observed in this scrape. Satisfies
// filtering.Recorder.
func (s *Session) RecordFound(externalID string) {
	if externalID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed[externalID] = struct{}{}
}

// Observed reports whether externalID was recorded this session.
func (s *Session) Observed(externalID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.observed[externalID]
	return ok
}

// ObservedCount is the number of distinct external ids recorded this
// session, regardless of any filtering applied downstream.
func (s *Session) ObservedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observed)
}

// Transition is one animal's §4.3 state-machine result. Seen reports
// whether the animal was actually observed this scrape — only seen
// transitions should advance last_seen_at; a demotion transition updates
// the counter/confidence but must leave last_seen_at at its prior value.
type Transition struct {
	AnimalID                  int64
	ConsecutiveScrapesMissing int
	AvailabilityConfidence    animals.Confidence
	Seen                      bool
}

// CloseResult is the outcome of closing a session: the outcome the scrape log
// should record, the transitions actually applied (only the re-observed
// animals' transitions when the guard trips), and an alert when the guard
// trips or the scrape was otherwise
// degraded.
type CloseResult struct {
	Outcome     scrapelogs.Outcome
	Transitions []Transition
	Alert       *Alert
}

// Close computes the §4.3 transition table for every animal currently stored
// for the organization, guarded by the partial-failure check. stored maps
// external id to the animal's row id and current reconciliation state;
// historicalCounts is the organization's recent DogsFound history, most
// recent scrapes first, as returned by scrapelogs.Repository.RecentSuccessfulCounts.
func (s *Session) Close(stored map[string]animals.Animal, historicalCounts []int, cfg GuardConfig) CloseResult {
	cfg = cfg.normalized()
	if len(historicalCounts) > cfg.HistoryWindow {
		historicalCounts = historicalCounts[:cfg.HistoryWindow]
	}

	observedCount := s.ObservedCount()
	avg := scrapelogs.HistoricalAverage(historicalCounts)

	if avg > 0 && observedCount == 0 {
		return CloseResult{
			Outcome:     scrapelogs.OutcomePartialFailure,
			Transitions: s.seenOnlyTransitions(stored),
			Alert:       &Alert{Kind: "zero_items", Severity: SeverityCritical, Observed: observedCount, Expected: avg},
		}
	}

	if avg > 0 && float64(observedCount) < cfg.MinFraction*avg && observedCount < cfg.AbsoluteFloor {
		return CloseResult{
			Outcome:     scrapelogs.OutcomePartialFailure,
			Transitions: s.seenOnlyTransitions(stored),
			Alert:       s.partialFailureAlert(observedCount, avg),
		}
	}

	return CloseResult{
		Outcome:     scrapelogs.OutcomeSuccess,
		Transitions: s.allTransitions(stored),
	}
}

// seenOnlyTransitions applies only the "seen this scrape" row of the
// transition table, for use when the guard has tripped: stale-demotion
// transitions are suppressed but animals actually observed still reset to
// high confidence (spec §4.3: "'Seen this scrape' updates still apply").
func (s *Session) seenOnlyTransitions(stored map[string]animals.Animal) []Transition {
	var out []Transition
	for externalID, a := range stored {
		if !s.Observed(externalID) {
			continue
		}
		out = append(out, Transition{
			AnimalID:                  a.ID,
			ConsecutiveScrapesMissing: 0,
			AvailabilityConfidence:    animals.ConfidenceHigh,
			Seen:                      true,
		})
	}
	return out
}

// allTransitions applies the full §4.3 table to every stored animal.
func (s *Session) allTransitions(stored map[string]animals.Animal) []Transition {
	out := make([]Transition, 0, len(stored))
	for externalID, a := range stored {
		seen := s.Observed(externalID)
		out = append(out, Transition{
			AnimalID:                  a.ID,
			ConsecutiveScrapesMissing: nextMissingCount(a.ConsecutiveScrapesMissing, seen),
			AvailabilityConfidence:    nextConfidence(a.ConsecutiveScrapesMissing, seen),
			Seen:                      seen,
		})
	}
	return out
}

// nextMissingCount and nextConfidence implement the §4.3 transition table for
// an animal that was already in the store.
func nextMissingCount(prevMissing int, seen bool) int {
	if seen {
		return 0
	}
	return prevMissing + 1
}

func nextConfidence(prevMissing int, seen bool) animals.Confidence {
	if seen {
		return animals.ConfidenceHigh
	}
	if prevMissing >= 3 {
		return animals.ConfidenceLow
	}
	return animals.ConfidenceMedium
}

func (s *Session) partialFailureAlert(observed int, avg float64) *Alert {
	ratio := 0.0
	if avg > 0 {
		ratio = float64(observed) / avg
	}
	severity := SeverityWarning
	if ratio < 0.1 {
		severity = SeverityCritical
	}
	return &Alert{Kind: "partial_failure", Severity: severity, Observed: observed, Expected: avg}
}

// HistoricalCounts is a thin convenience wrapper around
// scrapelogs.Repository.RecentSuccessfulCounts, kept here so callers building
// a GuardConfig-driven Close don't need to import scrapelogs directly just
// for the repository call.
func HistoricalCounts(ctx context.Context, repo scrapelogs.Repository, organizationID int64, window int) ([]int, error) {
	counts, err := repo.RecentSuccessfulCounts(ctx, organizationID, window)
	if err != nil {
		return nil, fmt.Errorf("session: recent successful counts: %w", err)
	}
	return counts, nil
}
