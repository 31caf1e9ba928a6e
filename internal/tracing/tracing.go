// Package tracing wraps OpenTelemetry spans around upstream fetches.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	SpanFetch   = "quotron.fetch"
	SpanAttempt = "quotron.attempt"

	defaultServiceName = "quotron"
)

type Tracer interface {
	// StartFetch starts the span covering one Fetch, cache lookup included.
	StartFetch(ctx context.Context, kind, fingerprint string) (context.Context, Span)

	// StartAttempt starts a child span for a single transport attempt.
	StartAttempt(ctx context.Context, kind string, attempt int) (context.Context, Span)
}

type Span interface {
	End()
	SetError(err error)
	SetAttributes(attrs ...attribute.KeyValue)
	AddEvent(name string, attrs ...attribute.KeyValue)
}

type OTelTracer struct {
	tracer trace.Tracer
}

type Config struct {
	ServiceName string
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

func NewOTelTracer(cfg Config) *OTelTracer {
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	return &OTelTracer{tracer: tp.Tracer(name)}
}

func (t *OTelTracer) StartFetch(ctx context.Context, kind, fingerprint string) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, SpanFetch,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("quotron.kind", kind),
			attribute.String("quotron.fingerprint", fingerprint),
		),
	)

	return ctx, &otelSpan{span: span}
}

func (t *OTelTracer) StartAttempt(ctx context.Context, kind string, attempt int) (context.Context, Span) {
	ctx, span := t.tracer.Start(ctx, SpanAttempt,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("quotron.kind", kind),
			attribute.Int("quotron.attempt", attempt),
		),
	)

	return ctx, &otelSpan{span: span}
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetError(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
}

func (s *otelSpan) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

func (s *otelSpan) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// NoopTracer is used when tracing is disabled.
type NoopTracer struct{}

var _ Tracer = (*NoopTracer)(nil)

func (NoopTracer) StartFetch(ctx context.Context, _, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

func (NoopTracer) StartAttempt(ctx context.Context, _ string, _ int) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End()                                   {}
func (noopSpan) SetError(error)                         {}
func (noopSpan) SetAttributes(...attribute.KeyValue)    {}
func (noopSpan) AddEvent(string, ...attribute.KeyValue) {}

// ProviderConfig describes the OTLP/HTTP trace export.
type ProviderConfig struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// NewProvider builds a batching tracer provider exporting over OTLP/HTTP.
// The caller owns Shutdown.
func NewProvider(ctx context.Context, cfg ProviderConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.SampleRatio)))),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	), nil
}

func sampleRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}

	return r
}
