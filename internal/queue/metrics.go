package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the worker-pool Prometheus collectors.
type Metrics struct {
	JobsProcessed *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	QueueEmpty    prometheus.Counter
}

// NewMetrics registers the collectors on reg (nil uses the default registerer).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		JobsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "caseos",
			Subsystem: "worker",
			Name:      "jobs_processed_total",
			Help:      "Document processing jobs by terminal outcome.",
		}, []string{"outcome"}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "caseos",
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of document processing jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		QueueEmpty: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "caseos",
			Subsystem: "worker",
			Name:      "queue_empty_polls_total",
			Help:      "Polls that found no queued job.",
		}),
	}
}
