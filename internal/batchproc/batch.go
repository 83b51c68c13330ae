// Package batchproc implements the generic batched, transactional commit
// engine described in spec §4.1: partition a stream of items into windows,
// commit windows in batches with bounded blast radius, isolate per-item
// render failures, and retry transient database errors with linear backoff.
//
// It is the one primitive shared by the Scraper Framework's animal upserts
// and, out of core, any batch-commit consumer (e.g. LLM enrichment) — the
// package itself is domain-agnostic, generic over the item type T.
package batchproc

import (
	"context"
	"fmt"
	"time"
)

// ErrorKind classifies a structured batch error (spec §7).
type ErrorKind string

const (
	KindItemRenderError   ErrorKind = "item_render_error"
	KindBatchDatabaseError ErrorKind = "batch_database_error"
	KindCommitError       ErrorKind = "commit_error"
)

// Error is one structured, ordered failure record.
type Error struct {
	Kind              ErrorKind
	Position          int
	TruncatedItemRepr string
	Details           string
}

// Result is the outcome of one Process call.
type Result struct {
	TotalProcessed    int
	SuccessfulBatches int
	FailedBatches     int
	Errors            []Error
	Elapsed           time.Duration
}

// SuccessRate is (processed - item-level errors) / processed, 0 when
// processed is 0 (spec §4.1 edge cases).
func (r Result) SuccessRate() float64 {
	if r.TotalProcessed == 0 {
		return 0
	}
	itemErrors := 0
	for _, e := range r.Errors {
		if e.Kind == KindItemRenderError {
			itemErrors++
		}
	}
	return float64(r.TotalProcessed-itemErrors) / float64(r.TotalProcessed)
}

// Config is the immutable per-invocation batch configuration (spec §4.1).
type Config struct {
	BatchSize       int
	MaxRetries      int
	RetryDelay      time.Duration
	CommitFrequency int
}

func (c Config) normalized() Config {
	if c.BatchSize < 1 {
		c.BatchSize = 1
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.CommitFrequency < 1 {
		c.CommitFrequency = 1
	}
	return c
}

// Statement is a rendered unit of work: a SQL-like statement plus positional
// arguments. Process never interprets sql itself — it is handed verbatim to
// Tx.Exec — so the same engine serves any Tx implementation.
type Statement struct {
	SQL  string
	Args []any
}

// RenderFunc converts one item into a Statement. It is pure and may fail; a
// failure skips only that item (spec §4.1 step 2).
type RenderFunc[T any] func(item T) (Statement, error)

// ProgressFunc receives the cumulative processed count and the total after
// each window.
type ProgressFunc func(processed, total int)

// Tx is the minimal transactional handle Process needs. Begin on an open Tx
// must create a nested unit of work (a SAVEPOINT in Postgres terms) so a
// window can be retried/rolled back without discarding windows already
// folded into the same outer transaction — this is what lets commit_frequency
// batch multiple windows behind one real COMMIT.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) error
	Begin(ctx context.Context) (Tx, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner opens a new outer transaction.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// Process commits items to the database in windows of Config.BatchSize,
// following the algorithm in spec §4.1.
func Process[T any](ctx context.Context, beginner Beginner, items []T, render RenderFunc[T], cfg Config, progress ProgressFunc) (Result, error) {
	cfg = cfg.normalized()
	start := time.Now()

	result := Result{}
	if len(items) == 0 {
		return result, nil
	}

	windows := partition(items, cfg.BatchSize)
	processed := 0
	windowsSinceCommit := 0

	var outer Tx
	for windowIdx, window := range windows {
		if outer == nil {
			tx, err := beginner.Begin(ctx)
			if err != nil {
				result.Elapsed = time.Since(start)
				return result, fmt.Errorf("batchproc: begin outer transaction: %w", err)
			}
			outer = tx
		}

		offset := windowIdx * cfg.BatchSize
		succeeded := runWindow(ctx, outer, window, render, cfg, offset, &result)
		processed += len(window)

		if succeeded {
			result.SuccessfulBatches++
			windowsSinceCommit++
		} else {
			result.FailedBatches++
		}

		isLastWindow := windowIdx == len(windows)-1
		if windowsSinceCommit >= cfg.CommitFrequency || isLastWindow {
			if err := outer.Commit(ctx); err != nil {
				result.Errors = append(result.Errors, Error{
					Kind:    KindCommitError,
					Position: offset,
					Details: err.Error(),
				})
				// The commit failed: every window folded into it since the
				// last real commit is now lost, so reclassify them as failed.
				result.FailedBatches += windowsSinceCommit
				result.SuccessfulBatches -= windowsSinceCommit
			}
			outer = nil
			windowsSinceCommit = 0
		}

		if progress != nil {
			progress(processed, len(items))
		}
	}

	result.TotalProcessed = processed
	result.Elapsed = time.Since(start)
	return result, nil
}

// runWindow executes one window inside a nested (savepoint) transaction,
// retrying the whole window on a database error up to cfg.MaxRetries times
// with linear backoff. It returns whether the window ultimately succeeded.
func runWindow[T any](ctx context.Context, outer Tx, window []T, render RenderFunc[T], cfg Config, offset int, result *Result) bool {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		savepoint, err := outer.Begin(ctx)
		if err != nil {
			result.Errors = append(result.Errors, Error{
				Kind:     KindBatchDatabaseError,
				Position: offset,
				Details:  err.Error(),
			})
			return false
		}

		dbErr := execWindow(ctx, savepoint, window, render, offset, result)
		if dbErr == nil {
			if err := savepoint.Commit(ctx); err != nil {
				_ = savepoint.Rollback(ctx)
				dbErr = err
			} else {
				return true
			}
		} else {
			_ = savepoint.Rollback(ctx)
		}

		if attempt < cfg.MaxRetries {
			if cfg.RetryDelay > 0 {
				sleep(ctx, cfg.RetryDelay*time.Duration(attempt+1))
			}
			continue
		}

		result.Errors = append(result.Errors, Error{
			Kind:     KindBatchDatabaseError,
			Position: offset,
			Details:  dbErr.Error(),
		})
		return false
	}
	return false
}

// execWindow renders and executes every item in window against tx, isolating
// render failures as item_render_error without aborting the window. It
// returns the first database-level error encountered (nil if none), which
// triggers a window-level retry.
func execWindow[T any](ctx context.Context, tx Tx, window []T, render RenderFunc[T], offset int, result *Result) error {
	for i, item := range window {
		stmt, err := render(item)
		if err != nil {
			result.Errors = append(result.Errors, Error{
				Kind:              KindItemRenderError,
				Position:          offset + i,
				TruncatedItemRepr: truncatedRepr(item),
				Details:           err.Error(),
			})
			continue
		}

		if err := tx.Exec(ctx, stmt.SQL, stmt.Args...); err != nil {
			return err
		}
	}
	return nil
}

func partition[T any](items []T, size int) [][]T {
	var windows [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		windows = append(windows, items[i:end])
	}
	return windows
}

func truncatedRepr[T any](item T) string {
	s := fmt.Sprintf("%+v", item)
	const max = 200
	if len(s) > max {
		return s[:max] + "…"
	}
	return s
}

// sleep honors context cancellation while waiting out a retry delay.
func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
