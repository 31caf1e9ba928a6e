package metric

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}

	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}

	return out
}

func TestOTel_Instruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewOTel(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.IncCacheHits("quote")
	m.IncCacheHits("quote")
	m.IncAdmissionsInFlight()
	m.SetCircuitState(2)
	m.UpdateUpstreamLatency("quote", 15*time.Millisecond)

	data := collect(t, reader)

	hits, ok := data["quotron.cache.hits"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("expected int64 sum for cache hits, got %T", data["quotron.cache.hits"])
	}

	if len(hits.DataPoints) != 1 {
		t.Fatalf("expected 1 data point, got %d", len(hits.DataPoints))
	}

	dp := hits.DataPoints[0]
	if dp.Value != 2 {
		t.Errorf("expected 2 hits, got %d", dp.Value)
	}

	if v, _ := dp.Attributes.Value(attribute.Key("kind")); v.AsString() != "quote" {
		t.Errorf("expected kind quote, got %s", v.AsString())
	}

	state, ok := data["quotron.upstream.circuit_breaker.state"].(metricdata.Gauge[int64])
	if !ok || len(state.DataPoints) != 1 || state.DataPoints[0].Value != 2 {
		t.Errorf("expected circuit state gauge 2, got %#v", data["quotron.upstream.circuit_breaker.state"])
	}

	if _, ok = data["quotron.upstream.latency"].(metricdata.Histogram[float64]); !ok {
		t.Errorf("expected latency histogram, got %T", data["quotron.upstream.latency"])
	}
}

func TestNewMeterProvider_Prometheus(t *testing.T) {
	reg := prometheus.NewRegistry()

	mp, err := NewMeterProvider(context.Background(), ProviderConfig{
		Exporter:   ExporterPrometheus,
		Registerer: reg,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer mp.Shutdown(context.Background())

	m, err := NewOTel(mp.Meter("test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.IncRetries("chart")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather: %v", err)
	}

	found := false
	for _, mf := range mfs {
		if mf.GetName() == "quotron_upstream_retries_total" {
			found = true
		}
	}

	if !found {
		t.Error("expected quotron_upstream_retries_total to be exported")
	}
}

func TestNewMeterProvider_UnknownExporter(t *testing.T) {
	if _, err := NewMeterProvider(context.Background(), ProviderConfig{Exporter: "statsd"}); err == nil {
		t.Error("expected error for unknown exporter")
	}
}
