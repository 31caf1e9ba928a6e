package metric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelmetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const (
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
)

// ProviderConfig selects how the otel meter provider exports its readings.
type ProviderConfig struct {
	ServiceName string
	Exporter    string
	Endpoint    string
	Insecure    bool
	Interval    time.Duration
	Registerer  prometheus.Registerer
}

// NewMeterProvider builds an sdk meter provider. The prometheus exporter
// registers on cfg.Registerer so that /metrics serves otel instruments too.
func NewMeterProvider(ctx context.Context, cfg ProviderConfig) (*sdkmetric.MeterProvider, error) {
	var reader sdkmetric.Reader

	switch cfg.Exporter {
	case "", ExporterPrometheus:
		reg := cfg.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}

		exp, err := otelprom.New(otelprom.WithRegisterer(reg))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		reader = exp
	case ExporterOTLP:
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}

		exp, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("create otlp metric exporter: %w", err)
		}

		var readerOpts []sdkmetric.PeriodicReaderOption
		if cfg.Interval > 0 {
			readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
		}

		reader = sdkmetric.NewPeriodicReader(exp, readerOpts...)
	default:
		return nil, fmt.Errorf("unknown otel metrics exporter %q", cfg.Exporter)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = namespace
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	), nil
}

type otelMetrics struct {
	requestsTotal     otelmetric.Int64Counter
	requestsDuration  otelmetric.Float64Histogram
	responsesTotal    otelmetric.Int64Counter
	requestsInFlight  otelmetric.Int64UpDownCounter
	failedRequests    otelmetric.Int64Counter
	cacheHits         otelmetric.Int64Counter
	cacheMisses       otelmetric.Int64Counter
	upstreamAttempts  otelmetric.Int64Counter
	retriesTotal      otelmetric.Int64Counter
	fetchFailures     otelmetric.Int64Counter
	identityRotations otelmetric.Int64Counter
	circuitState      otelmetric.Int64Gauge
	admissions        otelmetric.Int64UpDownCounter
	upstreamLatency   otelmetric.Float64Histogram
}

// NewOTel creates every instrument on meter. Instrument errors are joined.
func NewOTel(meter otelmetric.Meter) (Metrics, error) {
	var (
		m    otelMetrics
		errs []error
	)

	counter := func(name, desc string) otelmetric.Int64Counter {
		c, err := meter.Int64Counter(name, otelmetric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	updown := func(name, desc string) otelmetric.Int64UpDownCounter {
		c, err := meter.Int64UpDownCounter(name, otelmetric.WithDescription(desc))
		errs = append(errs, err)
		return c
	}

	histogram := func(name, desc string) otelmetric.Float64Histogram {
		h, err := meter.Float64Histogram(name, otelmetric.WithDescription(desc), otelmetric.WithUnit("s"))
		errs = append(errs, err)
		return h
	}

	m.requestsTotal = counter("quotron.requests", "Total number of API requests")
	m.requestsDuration = histogram("quotron.request.duration", "API request duration")
	m.responsesTotal = counter("quotron.responses", "Total number of API responses by status code")
	m.requestsInFlight = updown("quotron.requests.in_flight", "Number of API requests being served")
	m.failedRequests = counter("quotron.requests.failed", "Total number of failed API requests")
	m.cacheHits = counter("quotron.cache.hits", "Total number of response cache hits")
	m.cacheMisses = counter("quotron.cache.misses", "Total number of response cache misses")
	m.upstreamAttempts = counter("quotron.upstream.attempts", "Total number of upstream transport attempts by outcome")
	m.retriesTotal = counter("quotron.upstream.retries", "Total number of upstream retries")
	m.fetchFailures = counter("quotron.upstream.fetch_failures", "Total number of failed fetches by failure kind")
	m.identityRotations = counter("quotron.upstream.identity_rotations", "Total number of user agent rotations")
	m.admissions = updown("quotron.upstream.admissions.in_flight", "Number of admitted upstream calls in flight")
	m.upstreamLatency = histogram("quotron.upstream.latency", "Upstream transport attempt latency")

	gauge, err := meter.Int64Gauge("quotron.upstream.circuit_breaker.state",
		otelmetric.WithDescription("Current state of circuit breaker (0=closed, 1=open, 2=half-open)"))
	errs = append(errs, err)
	m.circuitState = gauge

	if err = errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("create otel instruments: %w", err)
	}

	return &m, nil
}

func attrs(kv ...attribute.KeyValue) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(kv...)
}

func (m *otelMetrics) IncRequestsTotal() {
	m.requestsTotal.Add(context.Background(), 1)
}

func (m *otelMetrics) UpdateRequestsDuration(route, method string, start time.Time) {
	m.requestsDuration.Record(context.Background(), time.Since(start).Seconds(),
		attrs(attribute.String("route", route), attribute.String("method", method)))
}

func (m *otelMetrics) IncResponsesTotal(route string, status int) {
	m.responsesTotal.Add(context.Background(), 1,
		attrs(attribute.String("route", route), attribute.Int("status", status)))
}

func (m *otelMetrics) IncRequestsInFlight() {
	m.requestsInFlight.Add(context.Background(), 1)
}

func (m *otelMetrics) DecRequestsInFlight() {
	m.requestsInFlight.Add(context.Background(), -1)
}

func (m *otelMetrics) IncFailedRequestsTotal(reason FailReason) {
	m.failedRequests.Add(context.Background(), 1, attrs(attribute.String("reason", string(reason))))
}

func (m *otelMetrics) IncCacheHits(kind string) {
	m.cacheHits.Add(context.Background(), 1, attrs(attribute.String("kind", kind)))
}

func (m *otelMetrics) IncCacheMisses(kind string) {
	m.cacheMisses.Add(context.Background(), 1, attrs(attribute.String("kind", kind)))
}

func (m *otelMetrics) IncUpstreamAttempts(kind, outcome string) {
	m.upstreamAttempts.Add(context.Background(), 1,
		attrs(attribute.String("kind", kind), attribute.String("outcome", outcome)))
}

func (m *otelMetrics) IncRetries(kind string) {
	m.retriesTotal.Add(context.Background(), 1, attrs(attribute.String("kind", kind)))
}

func (m *otelMetrics) IncFetchFailures(kind, failure string) {
	m.fetchFailures.Add(context.Background(), 1,
		attrs(attribute.String("kind", kind), attribute.String("failure", failure)))
}

func (m *otelMetrics) IncIdentityRotations() {
	m.identityRotations.Add(context.Background(), 1)
}

func (m *otelMetrics) SetCircuitState(state int) {
	m.circuitState.Record(context.Background(), int64(state))
}

func (m *otelMetrics) IncAdmissionsInFlight() {
	m.admissions.Add(context.Background(), 1)
}

func (m *otelMetrics) DecAdmissionsInFlight() {
	m.admissions.Add(context.Background(), -1)
}

func (m *otelMetrics) UpdateUpstreamLatency(kind string, lat time.Duration) {
	m.upstreamLatency.Record(context.Background(), lat.Seconds(), attrs(attribute.String("kind", kind)))
}
