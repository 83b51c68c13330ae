package batchproc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTx is an in-memory Tx that mirrors pgx's savepoint-on-nested-Begin
// semantics: Exec buffers into the current level's pending slice; Commit
// folds pending into the parent (or the shared committed log at the
// outermost level); Rollback discards pending.
type fakeTx struct {
	mu      *sync.Mutex
	parent  *fakeTx
	pending []string
	log     *[]string
	execErr func(sql string) error
}

func (t *fakeTx) Exec(_ context.Context, sql string, _ ...any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.execErr != nil {
		if err := t.execErr(sql); err != nil {
			return err
		}
	}
	t.pending = append(t.pending, sql)
	return nil
}

func (t *fakeTx) Begin(context.Context) (Tx, error) {
	return &fakeTx{mu: t.mu, parent: t, log: t.log, execErr: t.execErr}, nil
}

func (t *fakeTx) Commit(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.parent != nil {
		t.parent.pending = append(t.parent.pending, t.pending...)
	} else {
		*t.log = append(*t.log, t.pending...)
	}
	t.pending = nil
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = nil
	return nil
}

type fakeBeginner struct {
	mu      sync.Mutex
	log     []string
	execErr func(sql string) error
}

func (b *fakeBeginner) Begin(context.Context) (Tx, error) {
	return &fakeTx{mu: &b.mu, log: &b.log, execErr: b.execErr}, nil
}

func render(item int) (Statement, error) {
	return Statement{SQL: "upsert", Args: []any{item}}, nil
}

func TestProcess_EmptyInput(t *testing.T) {
	beginner := &fakeBeginner{}
	result, err := Process[int](context.Background(), beginner, nil, render, Config{BatchSize: 10, CommitFrequency: 1}, nil)
	require.NoError(t, err)
	require.Equal(t, Result{}, result)
}

func TestProcess_ItemRenderErrorIsolation(t *testing.T) {
	// Exactly one item in the batch raises on render; the rest commit.
	items := []int{1, 2, -1, 4, 5}
	renderWithFailure := func(item int) (Statement, error) {
		if item == -1 {
			return Statement{}, errors.New("boom")
		}
		return Statement{SQL: "upsert", Args: []any{item}}, nil
	}

	beginner := &fakeBeginner{}
	result, err := Process[int](context.Background(), beginner, items, renderWithFailure, Config{BatchSize: 10, CommitFrequency: 1}, nil)
	require.NoError(t, err)

	require.Equal(t, 5, result.TotalProcessed)
	require.Equal(t, 1, result.SuccessfulBatches)
	require.Equal(t, 0, result.FailedBatches)
	require.Len(t, result.Errors, 1)
	require.Equal(t, KindItemRenderError, result.Errors[0].Kind)
	require.Equal(t, 2, result.Errors[0].Position)
	require.Len(t, beginner.log, 4)
}

func TestProcess_RetriesTransientDatabaseErrorThenSucceeds(t *testing.T) {
	// Mirrors spec scenario 5: 50 items, batch_size=10 (5 windows); the first
	// attempt of the third window's first statement fails, then the retry
	// succeeds. max_retries=2, a short retry delay keeps the test fast while
	// still asserting the elapsed-time floor the scenario calls for.
	items := make([]int, 50)
	for i := range items {
		items[i] = i
	}

	var callCount int
	var mu sync.Mutex
	retryDelay := 50 * time.Millisecond
	execErr := func(string) error {
		mu.Lock()
		defer mu.Unlock()
		callCount++
		if callCount == 21 { // first Exec of window 3's first attempt
			return errors.New("transient connection reset")
		}
		return nil
	}

	beginner := &fakeBeginner{execErr: execErr}
	cfg := Config{BatchSize: 10, MaxRetries: 2, RetryDelay: retryDelay, CommitFrequency: 1}

	result, err := Process[int](context.Background(), beginner, items, render, cfg, nil)
	require.NoError(t, err)

	require.Equal(t, 50, result.TotalProcessed)
	require.Equal(t, 5, result.SuccessfulBatches)
	require.Equal(t, 0, result.FailedBatches)
	require.Empty(t, result.Errors)
	require.GreaterOrEqual(t, result.Elapsed, retryDelay)
}

func TestProcess_ExhaustsRetriesAndFailsWindow(t *testing.T) {
	items := []int{1, 2, 3}
	execErr := func(string) error { return errors.New("permanent failure") }

	beginner := &fakeBeginner{execErr: execErr}
	cfg := Config{BatchSize: 10, MaxRetries: 1, RetryDelay: time.Millisecond, CommitFrequency: 1}

	result, err := Process[int](context.Background(), beginner, items, render, cfg, nil)
	require.NoError(t, err)

	require.Equal(t, 0, result.SuccessfulBatches)
	require.Equal(t, 1, result.FailedBatches)
	require.Len(t, result.Errors, 1)
	require.Equal(t, KindBatchDatabaseError, result.Errors[0].Kind)
}

func TestProcess_CommitFrequencyBatchesWindows(t *testing.T) {
	items := make([]int, 30) // 3 windows of 10
	for i := range items {
		items[i] = i
	}

	beginner := &fakeBeginner{}
	cfg := Config{BatchSize: 10, CommitFrequency: 2}

	progressed := 0
	result, err := Process[int](context.Background(), beginner, items, render, cfg, func(processed, total int) {
		progressed = processed
		require.Equal(t, 30, total)
	})
	require.NoError(t, err)

	require.Equal(t, 30, result.TotalProcessed)
	require.Equal(t, 3, result.SuccessfulBatches)
	require.Equal(t, 30, progressed)
	require.Len(t, beginner.log, 30)
}

func TestProcess_SuccessRate(t *testing.T) {
	result := Result{TotalProcessed: 10, Errors: []Error{{Kind: KindItemRenderError}, {Kind: KindItemRenderError}}}
	require.InDelta(t, 0.8, result.SuccessRate(), 0.0001)

	require.Equal(t, 0.0, Result{}.SuccessRate())
}
