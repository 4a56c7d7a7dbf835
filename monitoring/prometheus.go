package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vetai"

// Metrics exposes the invocation layer to Prometheus. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	callsTotal        *prometheus.CounterVec
	cacheLookupsTotal *prometheus.CounterVec
	backoffWait       prometheus.Histogram
	quotaExceeded     prometheus.Gauge
	fallbackReplies   prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Provider call attempts by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	m.cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	m.backoffWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backoff_wait_seconds",
			Help:      "Waits imposed before provider calls",
			Buckets:   []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
	)

	m.quotaExceeded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_exceeded",
			Help:      "1 while the daily provider quota is exhausted",
		},
	)

	m.fallbackReplies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_replies_total",
			Help:      "Replies served from the offline guidance table",
		},
	)

	m.registry.MustRegister(
		m.callsTotal,
		m.cacheLookupsTotal,
		m.backoffWait,
		m.quotaExceeded,
		m.fallbackReplies,
	)
	return m
}

func (m *Metrics) RecordCall(model string, outcome string) {
	if m == nil {
		return
	}
	m.callsTotal.WithLabelValues(model, outcome).Inc()
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordBackoffWait(wait time.Duration) {
	if m == nil {
		return
	}
	m.backoffWait.Observe(wait.Seconds())
}

func (m *Metrics) SetQuotaExceeded(exceeded bool) {
	if m == nil {
		return
	}
	if exceeded {
		m.quotaExceeded.Set(1)
	} else {
		m.quotaExceeded.Set(0)
	}
}

func (m *Metrics) RecordFallback() {
	if m == nil {
		return
	}
	m.fallbackReplies.Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
