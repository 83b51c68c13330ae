package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	Init("v1.0.0", "abc123", "2026-07-31")

	require.NotZero(t, testutil.CollectAndCount(AppInfo))
}

func TestScrapesTotal_RecordsByOutcome(t *testing.T) {
	ScrapesTotal.WithLabelValues("pets-in-turkey", "success").Inc()
	require.NotZero(t, testutil.CollectAndCount(ScrapesTotal))
}

func TestAnimalsProcessedTotal_RecordsByResult(t *testing.T) {
	AnimalsProcessedTotal.WithLabelValues("pets-in-turkey", "added").Inc()
	AnimalsProcessedTotal.WithLabelValues("pets-in-turkey", "unchanged").Add(5)
	require.NotZero(t, testutil.CollectAndCount(AnimalsProcessedTotal))
}

func TestQualityScore_IsAGaugeOverwrittenPerOrganization(t *testing.T) {
	QualityScore.WithLabelValues("pets-in-turkey").Set(72.5)
	QualityScore.WithLabelValues("pets-in-turkey").Set(80)
	require.Equal(t, float64(80), testutil.ToFloat64(QualityScore.WithLabelValues("pets-in-turkey")))
}

func TestDBCollector_NilPoolDoesNotPanic(t *testing.T) {
	collector := NewDBCollector(nil)
	require.NotPanics(t, func() { collector.collect() })
	require.NotPanics(t, collector.Stop)
}

func TestRecordQuery_ClassifiesErrors(t *testing.T) {
	start := time.Now()
	RecordQuery("upsert_animal", start, nil)
	require.NotZero(t, testutil.CollectAndCount(DBQueryDuration))

	RecordQuery("upsert_animal", start, context.Canceled)
	require.NotZero(t, testutil.CollectAndCount(DBErrors))
}
