package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"momento/entity"
)

// Metrics holds the service counters; it is registered on its own registry so
// tests can create as many instances as they need.
type Metrics struct {
	Registry    *prometheus.Registry
	validations *prometheus.CounterVec
	tracked     *prometheus.CounterVec
	overshoots  *prometheus.CounterVec
	uploads     *prometheus.CounterVec
	retries     prometheus.Counter
	rateLimited prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momento",
			Name:      "code_validations_total",
			Help:      "Access code validations by kind and result.",
		}, []string{"kind", "result"}),
		tracked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momento",
			Name:      "usage_records_total",
			Help:      "Usage records written by kind and action.",
		}, []string{"kind", "action"}),
		overshoots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momento",
			Name:      "usage_overshoots_total",
			Help:      "Increments that pushed a counter past its limit.",
		}, []string{"kind"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "momento",
			Name:      "uploads_total",
			Help:      "Guest uploads by result.",
		}, []string{"result"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "momento",
			Name:      "store_retries_total",
			Help:      "Store calls retried after a failure.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "momento",
			Name:      "rate_limited_total",
			Help:      "Requests refused by the rate limiter.",
		}),
	}
	m.Registry.MustRegister(
		m.validations,
		m.tracked,
		m.overshoots,
		m.uploads,
		m.retries,
		m.rateLimited,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Validation(kind entity.Kind, result string) {
	m.validations.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) Tracked(kind entity.Kind, action entity.Action) {
	m.tracked.WithLabelValues(string(kind), string(action)).Inc()
}

func (m *Metrics) Overshoot(kind entity.Kind) {
	m.overshoots.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) Upload(result string) {
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Retry() {
	m.retries.Inc()
}

func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}
