package purge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the purge collectors. A nil registerer leaves them
// unregistered, which is what tests use.
type Metrics struct {
	runs     *prometheus.CounterVec
	deletes  *prometheus.CounterVec
	pages    prometheus.Counter
	duration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawtrack",
			Subsystem: "purge",
			Name:      "runs_total",
			Help:      "Conversation purges by outcome.",
		}, []string{"outcome"}),
		deletes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pawtrack",
			Subsystem: "purge",
			Name:      "message_deletes_total",
			Help:      "Individual message deletes by result.",
		}, []string{"result"}),
		pages: f.NewCounter(prometheus.CounterOpts{
			Namespace: "pawtrack",
			Subsystem: "purge",
			Name:      "pages_fetched_total",
			Help:      "Message listing pages fetched while collecting.",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pawtrack",
			Subsystem: "purge",
			Name:      "duration_seconds",
			Help:      "Wall-clock time of a conversation purge.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}
