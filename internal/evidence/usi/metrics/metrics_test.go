package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())

	m.IncrementOutcome("valid")
	m.IncrementOutcome("valid")
	m.IncrementOutcome("name_mismatch")
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementCacheMiss()
	m.IncrementCacheError()
	m.IncrementBreakerRejection()
	m.ObserveRemoteLatency("valid", 250*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("valid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("name_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerRejections))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RemoteLatency))

	m.SetBreakerOpen(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerOpen))
	m.SetBreakerOpen(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BreakerOpen))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.IncrementOutcome("valid")
	m.ObserveRemoteLatency("valid", time.Second)
	m.IncrementCacheHit()
	m.IncrementCacheMiss()
	m.IncrementCacheError()
	m.IncrementBreakerRejection()
	m.SetBreakerOpen(true)
}
