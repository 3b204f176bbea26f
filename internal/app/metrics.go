package app

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch outcomes reported by the communicator.
const (
	outcomeInvalid   = "invalid"
	outcomeUnhandled = "unhandled"
	outcomeRejected  = "rejected"
	outcomeDisposed  = "disposed"
)

// Metrics is shared by every communicator of a process. All methods are nil-safe.
type Metrics struct {
	messages *prometheus.CounterVec
	inFlight prometheus.Gauge
	latency  *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		messages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appbridge",
			Name:      "messages_total",
			Help:      "Inbound messages by dispatch outcome.",
		}, []string{"outcome"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "appbridge",
			Name:      "handlers_in_flight",
			Help:      "Handler invocations that have not settled yet.",
		}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appbridge",
			Name:      "handler_duration_seconds",
			Help:      "Time until a handler settles.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

func (m *Metrics) count(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) started() func(method string) {
	if m == nil {
		return func(string) {}
	}
	m.inFlight.Inc()
	start := time.Now()
	return func(method string) {
		m.inFlight.Dec()
		m.latency.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}
