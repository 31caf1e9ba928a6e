package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quotron"

type prometheusMetrics struct {
	requestsTotal     prometheus.Counter
	requestsDuration  *prometheus.HistogramVec
	responsesTotal    *prometheus.CounterVec
	requestsInFlight  prometheus.Gauge
	failedRequests    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	upstreamAttempts  *prometheus.CounterVec
	retriesTotal      *prometheus.CounterVec
	fetchFailures     *prometheus.CounterVec
	identityRotations prometheus.Counter
	circuitState      prometheus.Gauge
	admissions        prometheus.Gauge
	upstreamLatency   *prometheus.HistogramVec
}

// NewPrometheus registers the collectors on reg, or on the default registerer when reg is nil.
func NewPrometheus(reg prometheus.Registerer) Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &prometheusMetrics{
		requestsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of API requests",
		}),
		requestsDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		responsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Total number of API responses by status code",
		}, []string{"route", "status"}),
		requestsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_in_flight",
			Help:      "Number of API requests being served",
		}),
		failedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_requests_total",
			Help:      "Total number of failed API requests",
		}, []string{"reason"}),
		cacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total number of response cache hits",
		}, []string{"kind"}),
		cacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total number of response cache misses",
		}, []string{"kind"}),
		upstreamAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "attempts_total",
			Help:      "Total number of upstream transport attempts by outcome",
		}, []string{"kind", "outcome"}),
		retriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "retries_total",
			Help:      "Total number of upstream retries",
		}, []string{"kind"}),
		fetchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_failures_total",
			Help:      "Total number of failed fetches by failure kind",
		}, []string{"kind", "failure"}),
		identityRotations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "identity_rotations_total",
			Help:      "Total number of user agent rotations after rate limiting",
		}),
		circuitState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "circuit_breaker_state",
			Help:      "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
		}),
		admissions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "admissions_in_flight",
			Help:      "Number of admitted upstream calls in flight",
		}),
		upstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "latency_seconds",
			Help:      "Upstream transport attempt latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"kind"}),
	}
}

func (m *prometheusMetrics) IncRequestsTotal() {
	m.requestsTotal.Inc()
}

func (m *prometheusMetrics) UpdateRequestsDuration(route, method string, start time.Time) {
	m.requestsDuration.WithLabelValues(route, method).Observe(time.Since(start).Seconds())
}

func (m *prometheusMetrics) IncResponsesTotal(route string, status int) {
	m.responsesTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

func (m *prometheusMetrics) IncRequestsInFlight() {
	m.requestsInFlight.Inc()
}

func (m *prometheusMetrics) DecRequestsInFlight() {
	m.requestsInFlight.Dec()
}

func (m *prometheusMetrics) IncFailedRequestsTotal(reason FailReason) {
	m.failedRequests.WithLabelValues(string(reason)).Inc()
}

func (m *prometheusMetrics) IncCacheHits(kind string) {
	m.cacheHits.WithLabelValues(kind).Inc()
}

func (m *prometheusMetrics) IncCacheMisses(kind string) {
	m.cacheMisses.WithLabelValues(kind).Inc()
}

func (m *prometheusMetrics) IncUpstreamAttempts(kind, outcome string) {
	m.upstreamAttempts.WithLabelValues(kind, outcome).Inc()
}

func (m *prometheusMetrics) IncRetries(kind string) {
	m.retriesTotal.WithLabelValues(kind).Inc()
}

func (m *prometheusMetrics) IncFetchFailures(kind, failure string) {
	m.fetchFailures.WithLabelValues(kind, failure).Inc()
}

func (m *prometheusMetrics) IncIdentityRotations() {
	m.identityRotations.Inc()
}

func (m *prometheusMetrics) SetCircuitState(state int) {
	m.circuitState.Set(float64(state))
}

func (m *prometheusMetrics) IncAdmissionsInFlight() {
	m.admissions.Inc()
}

func (m *prometheusMetrics) DecAdmissionsInFlight() {
	m.admissions.Dec()
}

func (m *prometheusMetrics) UpdateUpstreamLatency(kind string, lat time.Duration) {
	m.upstreamLatency.WithLabelValues(kind).Observe(lat.Seconds())
}
