package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/starwalkn/quotron"
	"github.com/starwalkn/quotron/internal/metric"
	"github.com/starwalkn/quotron/internal/tracing"
)

const serviceName = "quotron"

type Server struct {
	http   *http.Server
	client *quotron.Client
	api    *quotron.API
	log    *zap.Logger

	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// New wires metrics, tracing, the upstream client and the API router described by cfg.
func New(ctx context.Context, cfg quotron.Config, log *zap.Logger) (*Server, error) {
	s := &Server{log: log}

	metrics := metric.NewNop()

	var registry *prometheus.Registry

	if cfg.Server.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)

		var err error

		metrics, err = s.initMetrics(ctx, cfg.Server.Metrics, registry)
		if err != nil {
			return nil, err
		}
	}

	var tracer tracing.Tracer = tracing.NoopTracer{}

	if cfg.Server.Tracing.Enabled {
		tp, err := tracing.NewProvider(ctx, tracing.ProviderConfig{
			ServiceName: serviceName,
			Endpoint:    cfg.Server.Tracing.Endpoint,
			Insecure:    cfg.Server.Tracing.Insecure,
			SampleRatio: cfg.Server.Tracing.SampleRatio,
		})
		if err != nil {
			return nil, err
		}

		s.tracerProvider = tp
		tracer = tracing.NewOTelTracer(tracing.Config{
			ServiceName:    serviceName,
			TracerProvider: tp,
		})
	}

	client, err := quotron.NewClient(cfg, log.Named("client"),
		quotron.WithMetrics(metrics),
		quotron.WithTracer(tracer),
	)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	s.client = client
	s.api = quotron.NewAPI(client, cfg.Server, log.Named("api"), metrics)

	router := s.api.Routes()

	if registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	return s, nil
}

func (s *Server) initMetrics(ctx context.Context, cfg quotron.MetricsConfig, registry *prometheus.Registry) (metric.Metrics, error) {
	switch cfg.Provider {
	case "otel":
		mp, err := metric.NewMeterProvider(ctx, metric.ProviderConfig{
			ServiceName: serviceName,
			Exporter:    cfg.Exporter,
			Endpoint:    cfg.Endpoint,
			Insecure:    cfg.Insecure,
			Interval:    cfg.Interval,
			Registerer:  registry,
		})
		if err != nil {
			return nil, err
		}

		s.meterProvider = mp

		return metric.NewOTel(mp.Meter(serviceName))
	default:
		return metric.NewPrometheus(registry), nil
	}
}

func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) Start() error {
	if err := s.client.Start(); err != nil {
		return err
	}

	if err := s.api.Start(); err != nil {
		return err
	}

	s.log.Info("listening", zap.String("addr", s.http.Addr))

	return s.http.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	errs := []error{
		s.http.Shutdown(ctx),
		s.api.Stop(),
		s.client.Close(),
	}

	if s.tracerProvider != nil {
		errs = append(errs, s.tracerProvider.Shutdown(ctx))
	}

	if s.meterProvider != nil {
		errs = append(errs, s.meterProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}
