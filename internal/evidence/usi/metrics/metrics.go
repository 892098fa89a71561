package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for USI validation and remote verification.
type Metrics struct {
	// Validation outcomes by kind
	Outcomes *prometheus.CounterVec

	// Remote verification call latency by outcome kind
	RemoteLatency *prometheus.HistogramVec

	// Outcome cache lookups by result (hit, miss, error)
	CacheLookups *prometheus.CounterVec

	// Calls short-circuited while the breaker is open
	BreakerRejections prometheus.Counter

	// 1 while the breaker is open
	BreakerOpen prometheus.Gauge
}

// New creates a new Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

func NewWith(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "usiverify_validation_outcomes_total",
			Help: "USI validation outcomes by kind",
		}, []string{"kind"}),

		RemoteLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "usiverify_remote_verify_duration_seconds",
			Help:    "Duration of remote USI verification calls by outcome kind",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "usiverify_outcome_cache_lookups_total",
			Help: "Outcome cache lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "error"

		BreakerRejections: f.NewCounter(prometheus.CounterOpts{
			Name: "usiverify_breaker_rejections_total",
			Help: "Remote verifications skipped because the circuit breaker was open",
		}),

		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "usiverify_breaker_open",
			Help: "Whether the remote verification circuit breaker is open (1) or closed (0)",
		}),
	}
}

// IncrementOutcome records a validation outcome.
func (m *Metrics) IncrementOutcome(kind string) {
	if m != nil {
		m.Outcomes.WithLabelValues(kind).Inc()
	}
}

// ObserveRemoteLatency records one remote verification call.
func (m *Metrics) ObserveRemoteLatency(kind string, d time.Duration) {
	if m != nil {
		m.RemoteLatency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementCacheHit() {
	if m != nil {
		m.CacheLookups.WithLabelValues("hit").Inc()
	}
}

func (m *Metrics) IncrementCacheMiss() {
	if m != nil {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) IncrementCacheError() {
	if m != nil {
		m.CacheLookups.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) IncrementBreakerRejection() {
	if m != nil {
		m.BreakerRejections.Inc()
	}
}

// SetBreakerOpen mirrors breaker state changes.
func (m *Metrics) SetBreakerOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.BreakerOpen.Set(1)
	} else {
		m.BreakerOpen.Set(0)
	}
}
