// Package progress implements the adaptive-verbosity telemetry described in
// spec §4.6: a scrape-local tracker that picks its own chattiness from the
// expected item count, keeps per-operation counters, and throttles how often
// the framework actually logs.
package progress

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Level is the verbosity tier chosen from the total-item hint.
type Level string

const (
	LevelMinimal       Level = "minimal"
	LevelStandard      Level = "standard"
	LevelDetailed      Level = "detailed"
	LevelComprehensive Level = "comprehensive"
)

func levelFor(totalItems int) Level {
	switch {
	case totalItems <= 25:
		return LevelMinimal
	case totalItems <= 75:
		return LevelStandard
	case totalItems <= 150:
		return LevelDetailed
	default:
		return LevelComprehensive
	}
}

// Config adjusts a Tracker's behavior; BatchSize gates should-log throttling,
// ShowProgressBar only matters at the comprehensive tier, and ShowThroughput
// at the comprehensive and detailed tiers.
type Config struct {
	BatchSize       int
	ShowProgressBar bool
	ShowThroughput  bool
}

func (c Config) normalized() Config {
	if c.BatchSize < 1 {
		c.BatchSize = 10
	}
	return c
}

// Tracker is owned by a single scrape; nothing in this package is safe for
// concurrent use without external synchronization (spec §5: the framework
// thread is its sole mutator).
type Tracker struct {
	totalItems         int
	processedItems     int
	startTime          time.Time
	level              Level
	cfg                Config
	operationCounts    map[string]int
	lastProgressLogged int
	logger             zerolog.Logger
	bar                *progressbar.ProgressBar
}

// New creates a Tracker for an expected totalItems items. totalItems of zero
// or unknown size still works — the tracker degrades to minimal verbosity and
// an undefined ETA.
func New(totalItems int, cfg Config, logger zerolog.Logger) *Tracker {
	cfg = cfg.normalized()
	level := levelFor(totalItems)

	t := &Tracker{
		totalItems:      totalItems,
		startTime:       time.Now(),
		level:           level,
		cfg:             cfg,
		operationCounts: make(map[string]int),
		logger:          logger,
	}

	if level == LevelComprehensive && cfg.ShowProgressBar {
		t.bar = progressbar.NewOptions(totalItems,
			progressbar.OptionSetDescription("scraping"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("animals"),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	return t
}

// Level reports the verbosity tier this tracker settled on.
func (t *Tracker) Level() Level { return t.level }

// Update advances the processed-item count and attributes it to operationType.
func (t *Tracker) Update(itemsProcessed int, operationType string) {
	t.processedItems += itemsProcessed
	t.operationCounts[operationType] += itemsProcessed
	if t.bar != nil {
		_ = t.bar.Add(itemsProcessed)
	}
}

// TrackOperation records operation statistics (e.g. image uploads) without
// affecting the completion percentage.
func (t *Tracker) TrackOperation(operationType string, count int) {
	t.operationCounts[operationType] += count
}

// OperationCount returns the cumulative count for operationType.
func (t *Tracker) OperationCount(operationType string) int {
	return t.operationCounts[operationType]
}

// ShouldLogProgress reports whether at least BatchSize items have been
// processed since the last logged checkpoint, at a verbosity tier that logs
// mid-run progress at all.
func (t *Tracker) ShouldLogProgress() bool {
	if t.level == LevelMinimal {
		return false
	}
	return t.processedItems-t.lastProgressLogged >= t.cfg.BatchSize
}

// LogBatchProgress emits one progress line (shape depends on verbosity tier)
// and resets the should-log checkpoint.
func (t *Tracker) LogBatchProgress() {
	t.logger.Info().Msg(t.Message())
	t.lastProgressLogged = t.processedItems
}

// Throughput is items processed per elapsed second, 0 before any time has
// passed.
func (t *Tracker) Throughput() float64 {
	elapsed := time.Since(t.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.processedItems) / elapsed
}

// ETA estimates completion time; ok is false when throughput is 0 (spec
// §4.6: "undefined when throughput = 0").
func (t *Tracker) ETA() (eta time.Time, ok bool) {
	throughput := t.Throughput()
	if throughput <= 0 {
		return time.Time{}, false
	}
	remaining := t.totalItems - t.processedItems
	if remaining <= 0 {
		return time.Now(), true
	}
	secondsRemaining := float64(remaining) / throughput
	return time.Now().Add(time.Duration(secondsRemaining * float64(time.Second))), true
}

// CompletionPercentage is 100 for a zero-total tracker (there is nothing left
// to do), else processed/total.
func (t *Tracker) CompletionPercentage() float64 {
	if t.totalItems == 0 {
		return 100
	}
	return float64(t.processedItems) / float64(t.totalItems) * 100
}

// Message renders the progress line appropriate to the current verbosity
// tier.
func (t *Tracker) Message() string {
	pct := t.CompletionPercentage()

	switch t.level {
	case LevelComprehensive:
		msg := fmt.Sprintf("processing: %.0f%% (%d/%d)", pct, t.processedItems, t.totalItems)
		if t.cfg.ShowThroughput {
			if tp := t.Throughput(); tp > 0 {
				msg += fmt.Sprintf(" | %.1f items/sec", tp)
			}
		}
		if eta, ok := t.ETA(); ok {
			msg += " | ETA " + eta.Format("15:04:05")
		}
		if len(t.operationCounts) > 1 {
			msg += " | " + t.operationBreakdown()
		}
		return msg
	case LevelDetailed:
		msg := fmt.Sprintf("progress: %.0f%% (%d/%d)", pct, t.processedItems, t.totalItems)
		if t.cfg.ShowThroughput {
			if tp := t.Throughput(); tp > 0 {
				msg += fmt.Sprintf(" | %.1f items/sec", tp)
			}
		}
		return msg
	case LevelStandard:
		return fmt.Sprintf("processed: %d/%d (%.0f%%)", t.processedItems, t.totalItems, pct)
	default:
		return fmt.Sprintf("processing %d items", t.totalItems)
	}
}

func (t *Tracker) operationBreakdown() string {
	s := ""
	for op, count := range t.operationCounts {
		if s != "" {
			s += ", "
		}
		s += fmt.Sprintf("%d %s", count, op)
	}
	return s
}

// Finish closes out the progress bar, if one is active. Safe to call even
// when no bar was created.
func (t *Tracker) Finish() {
	if t.bar != nil {
		_ = t.bar.Finish()
	}
}
