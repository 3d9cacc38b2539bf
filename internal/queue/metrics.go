package queue

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	QueueEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookwise",
			Name:      "queue_enqueued_total",
			Help:      "Tasks enqueued grouped by type",
		},
		[]string{"type"},
	)
	QueueProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bookwise",
			Name:      "queue_processed_total",
			Help:      "Tasks processed grouped by type and status",
		},
		[]string{"type", "status"},
	)
	QueueTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bookwise",
			Name:      "queue_task_duration_seconds",
			Help:      "Task processing latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type"},
	)
)

// RegisterMetrics adds the queue collectors to reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{QueueEnqueuedTotal, QueueProcessedTotal, QueueTaskDuration} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}
