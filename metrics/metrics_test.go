package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCollector_RecordOperation(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordOperation(ctx, "save", "success", 10*time.Millisecond)
	collector.RecordOperation(ctx, "save", "success", 15*time.Millisecond)
	collector.RecordOperation(ctx, "save", "error", 5*time.Millisecond)
	collector.RecordOperation(ctx, "load_all", "success", 2*time.Millisecond)

	assert.Equal(t, 3, testutil.CollectAndCount(collector.operations))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.operations.WithLabelValues("save", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.operations.WithLabelValues("save", "error")))
}

func TestPrometheusCollector_RecordStage(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordStage(ctx, "save", "month", time.Millisecond)
	collector.RecordStage(ctx, "save", "items", 3*time.Millisecond)
	collector.RecordStage(ctx, "save", "items", 4*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.durations))
}

func TestPrometheusCollector_RecordError(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.RecordError(ctx, "save", "store")
	collector.RecordError(ctx, "save", "store")
	collector.RecordError(ctx, "save_item", "invalid_state")

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.errors.WithLabelValues("save", "store")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.errors.WithLabelValues("save_item", "invalid_state")))
}

func TestPrometheusCollector_SetStorageCount(t *testing.T) {
	collector := NewCollector()
	ctx := context.Background()

	collector.SetStorageCount(ctx, "months", 3)
	collector.SetStorageCount(ctx, "items", 24)
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.rows.WithLabelValues("months")))

	collector.SetStorageCount(ctx, "months", 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.rows.WithLabelValues("months")))
}

func TestPrometheusCollector_Handler(t *testing.T) {
	collector := NewCollector()
	collector.RecordOperation(context.Background(), "save", "success", time.Millisecond)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `archive_operations_total{operation="save",status="success"} 1`))
}

func TestNoopCollector_SatisfiesInterface(t *testing.T) {
	var c Collector = NewNoopCollector()
	c.RecordOperation(context.Background(), "save", "success", time.Millisecond)
	c.RecordError(context.Background(), "save", "store")
}

func TestPrometheusCollector_SubMillisecondStagesAreKept(t *testing.T) {
	collector := NewCollector()

	// GIVEN: a stage far below one millisecond
	collector.RecordStage(context.Background(), "save", "month", 200*time.Microsecond)

	families, err := collector.Registry().Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() != "archive_operation_duration_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			h := m.GetHistogram()
			found = true
			assert.InDelta(t, 0.0002, h.GetSampleSum(), 1e-9)
			// THEN: it lands in a bucket below 1ms, not at zero
			var below uint64
			for _, b := range h.GetBucket() {
				if b.GetUpperBound() < 0.001 {
					below = b.GetCumulativeCount()
				}
			}
			assert.Equal(t, uint64(1), below)
		}
	}
	assert.True(t, found)
}
