package orchestrator

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_OneSuccessOneFailure(t *testing.T) {
	started := time.Now().Add(-2 * time.Second)
	results := []RunResult{
		{ConfigID: "org-a", Success: true, DogsFound: 10},
		{ConfigID: "org-b", Success: false, Error: "timeout"},
	}

	summary := aggregate(results, started)

	assert.True(t, summary.BatchComplete)
	assert.Equal(t, 2, summary.TotalOrgs)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 10, summary.TotalDogsFound)
	assert.Equal(t, []string{"org-b"}, summary.FailedOrgs)
	assert.False(t, summary.OverallSuccess)
	assert.GreaterOrEqual(t, summary.DurationSeconds, 2.0)
	assert.Equal(t, 1, summary.ExitCode())
}

func TestAggregate_AllSucceed(t *testing.T) {
	results := []RunResult{
		{ConfigID: "org-a", Success: true, DogsFound: 4},
		{ConfigID: "org-b", Success: true, DogsFound: 6},
	}

	summary := aggregate(results, time.Now())

	assert.True(t, summary.OverallSuccess)
	assert.Empty(t, summary.FailedOrgs)
	assert.Equal(t, 10, summary.TotalDogsFound)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestAggregate_NoOrgs(t *testing.T) {
	summary := aggregate(nil, time.Now())

	assert.Equal(t, 0, summary.TotalOrgs)
	assert.True(t, summary.OverallSuccess)
	assert.Equal(t, 0, summary.ExitCode())
}

func TestRunBounded_NeverExceedsMaxParallel(t *testing.T) {
	const jobCount = 20
	const maxParallel = 3

	var current int32
	var peak int32
	jobs := make([]func(context.Context) RunResult, jobCount)
	for i := 0; i < jobCount; i++ {
		i := i
		jobs[i] = func(ctx context.Context) RunResult {
			n := atomic.AddInt32(&current, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return RunResult{ConfigID: "job", Success: true, DogsFound: i}
		}
	}

	results := runBounded(context.Background(), maxParallel, jobs)

	require.Len(t, results, jobCount)
	assert.LessOrEqual(t, int(atomic.LoadInt32(&peak)), maxParallel)

	total := 0
	for _, r := range results {
		total += r.DogsFound
	}
	assert.Equal(t, (jobCount-1)*jobCount/2, total)
}

func TestRunBounded_EmptyJobList(t *testing.T) {
	results := runBounded(context.Background(), 4, nil)
	assert.Empty(t, results)
}
