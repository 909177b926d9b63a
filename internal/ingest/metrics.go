package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records pipeline activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	batches       *prometheus.CounterVec
	records       prometheus.Counter
	duration      prometheus.Histogram
	cleanupErrors prometheus.Counter
}

// NewMetrics creates the pipeline collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "certimport",
			Name:      "batches_total",
			Help:      "Upload batches processed, by outcome kind and error type.",
		}, []string{"kind", "type"}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "certimport",
			Name:      "records_inserted_total",
			Help:      "Credential records written to the store.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "certimport",
			Name:      "batch_duration_seconds",
			Help:      "Time from receiving a batch to reporting its outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		cleanupErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "certimport",
			Name:      "temp_file_cleanup_errors_total",
			Help:      "Uploaded temp files that could not be removed.",
		}),
	}
	reg.MustRegister(m.batches, m.records, m.duration, m.cleanupErrors)
	return m
}

func (m *Metrics) observe(out Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(string(out.Kind), out.Type()).Inc()
	m.records.Add(float64(out.Inserted))
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) cleanupFailed() {
	if m == nil {
		return
	}
	m.cleanupErrors.Inc()
}
