package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus counters and
// histograms under the "x402" namespace.
type PrometheusRecorder struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder and registers its collectors
// with the given registerer. Pass prometheus.DefaultRegisterer for the
// process-global registry.
func NewPrometheusRecorder(reg prometheus.Registerer) (*PrometheusRecorder, error) {
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "x402",
		Name:      "payment_events_total",
		Help:      "Count of payment lifecycle events by outcome.",
	}, []string{"event", "network", "scheme"})

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "x402",
		Name:      "payment_latency_seconds",
		Help:      "Latency of payment operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "network"})

	for _, collector := range []prometheus.Collector{events, latency} {
		if err := reg.Register(collector); err != nil {
			return nil, err
		}
	}

	return &PrometheusRecorder{events: events, latency: latency}, nil
}

func (r *PrometheusRecorder) RecordEvent(event, network, scheme string) {
	r.events.WithLabelValues(event, network, scheme).Inc()
}

func (r *PrometheusRecorder) RecordLatency(operation, network string, d time.Duration) {
	r.latency.WithLabelValues(operation, network).Observe(d.Seconds())
}
