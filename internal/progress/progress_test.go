package progress

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLevelFor_Thresholds(t *testing.T) {
	require.Equal(t, LevelMinimal, levelFor(1))
	require.Equal(t, LevelMinimal, levelFor(25))
	require.Equal(t, LevelStandard, levelFor(26))
	require.Equal(t, LevelStandard, levelFor(75))
	require.Equal(t, LevelDetailed, levelFor(76))
	require.Equal(t, LevelDetailed, levelFor(150))
	require.Equal(t, LevelComprehensive, levelFor(151))
}

func TestTracker_ShouldLogProgress_MinimalNeverLogs(t *testing.T) {
	tr := New(10, Config{BatchSize: 2}, zerolog.Nop())
	tr.Update(5, "animal")
	require.False(t, tr.ShouldLogProgress())
}

func TestTracker_ShouldLogProgress_ThrottlesByBatchSize(t *testing.T) {
	tr := New(100, Config{BatchSize: 10}, zerolog.Nop())

	tr.Update(5, "animal")
	require.False(t, tr.ShouldLogProgress())

	tr.Update(6, "animal")
	require.True(t, tr.ShouldLogProgress())

	tr.LogBatchProgress()
	require.False(t, tr.ShouldLogProgress())
}

func TestTracker_OperationCounts(t *testing.T) {
	tr := New(50, Config{BatchSize: 10}, zerolog.Nop())
	tr.Update(3, "animal_added")
	tr.TrackOperation("image_uploaded", 2)
	tr.TrackOperation("image_uploaded", 1)

	require.Equal(t, 3, tr.OperationCount("animal_added"))
	require.Equal(t, 3, tr.OperationCount("image_uploaded"))
	require.Equal(t, 0, tr.OperationCount("unseen"))
}

func TestTracker_CompletionPercentage_ZeroTotalIsComplete(t *testing.T) {
	tr := New(0, Config{}, zerolog.Nop())
	require.Equal(t, 100.0, tr.CompletionPercentage())
}

func TestTracker_ETA_UndefinedBeforeThroughput(t *testing.T) {
	tr := New(100, Config{}, zerolog.Nop())
	_, ok := tr.ETA()
	require.False(t, ok)
}

func TestTracker_ETA_DefinedAfterProgress(t *testing.T) {
	tr := New(100, Config{}, zerolog.Nop())
	tr.startTime = time.Now().Add(-1 * time.Second)
	tr.Update(50, "animal")

	eta, ok := tr.ETA()
	require.True(t, ok)
	require.False(t, eta.IsZero())
}

func TestTracker_Message_VariesByLevel(t *testing.T) {
	minimal := New(10, Config{}, zerolog.Nop())
	require.Contains(t, minimal.Message(), "processing 10 items")

	standard := New(50, Config{}, zerolog.Nop())
	standard.Update(5, "animal")
	require.Contains(t, standard.Message(), "5/50")

	detailed := New(100, Config{ShowThroughput: true}, zerolog.Nop())
	detailed.Update(10, "animal")
	require.True(t, strings.HasPrefix(detailed.Message(), "progress:"))
}

func TestTracker_Finish_NoOpWithoutBar(t *testing.T) {
	tr := New(10, Config{}, zerolog.Nop())
	require.NotPanics(t, tr.Finish)
}
