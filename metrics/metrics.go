/*
metrics.go - Prometheus collector for the archive

SERIES:
  archive_operations_total{operation,status}           save, save_item, load_all, ingest
  archive_operation_duration_seconds{operation,stage}  stage "total" plus per-stage timings
  archive_errors_total{operation,error_type}           labels from bundle.ClassifyError
  archive_storage_count{type}                          rows per table after each write

Each collector owns its registry, so tests and multiple archives in one
process never collide on registration.
*/
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationBuckets spans 50µs to about 3s. SQLite point lookups land in the
// lowest buckets, whole saves of a large month in the upper ones.
var durationBuckets = prometheus.ExponentialBuckets(0.00005, 4, 9)

// stageTotal labels the whole-operation observation in the duration histogram.
const stageTotal = "total"

// PrometheusCollector implements Collector on a private registry.
type PrometheusCollector struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	rows       *prometheus.GaugeVec
}

// NewCollector builds the archive series and registers them.
func NewCollector() *PrometheusCollector {
	c := &PrometheusCollector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_operations_total",
			Help: "Archive operations by outcome.",
		}, []string{"operation", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archive_operation_duration_seconds",
			Help:    "Time spent per archive operation and stage.",
			Buckets: durationBuckets,
		}, []string{"operation", "stage"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_errors_total",
			Help: "Failed archive operations by error class.",
		}, []string{"operation", "error_type"}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "archive_storage_count",
			Help: "Stored rows by table.",
		}, []string{"type"}),
	}
	c.registry.MustRegister(c.operations, c.durations, c.errors, c.rows)
	return c
}

func (c *PrometheusCollector) RecordOperation(_ context.Context, operation, status string, took time.Duration) {
	c.operations.WithLabelValues(operation, status).Inc()
	c.durations.WithLabelValues(operation, stageTotal).Observe(took.Seconds())
}

func (c *PrometheusCollector) RecordStage(_ context.Context, operation, stage string, took time.Duration) {
	c.durations.WithLabelValues(operation, stage).Observe(took.Seconds())
}

func (c *PrometheusCollector) RecordError(_ context.Context, operation, errorType string) {
	c.errors.WithLabelValues(operation, errorType).Inc()
}

func (c *PrometheusCollector) SetStorageCount(_ context.Context, storageType string, count int64) {
	c.rows.WithLabelValues(storageType).Set(float64(count))
}

// Registry exposes the private registry, e.g. for Gather in tests.
func (c *PrometheusCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *PrometheusCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
