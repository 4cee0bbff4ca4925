package stats

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision label values.
const (
	DecisionBlock   = "block"
	DecisionAllow   = "allow"
	DecisionInvalid = "invalid"
)

const metricsNamespace = "zillafilter"

// Metrics holds the Prometheus collectors of the interception pipeline.
// Each instance owns its registry so that tests can create many of them.
type Metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	fetchFailures prometheus.Counter
	fetchDuration prometheus.Histogram
	fetchStatus   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Intercepted requests by filtering decision and resource type.",
		}, []string{"decision", "resource_type"}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_failures_total",
			Help:      "Upstream fetches that ended in a transport error.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of upstream fetches for allowed requests.",
			Buckets:   prometheus.DefBuckets,
		}),
		fetchStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_responses_total",
			Help:      "Relayed upstream responses by status code.",
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		m.requests,
		m.fetchFailures,
		m.fetchDuration,
		m.fetchStatus,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) observeFetch(status int, elapsed time.Duration) {
	m.fetchDuration.Observe(elapsed.Seconds())
	m.fetchStatus.WithLabelValues(strconv.Itoa(status)).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
