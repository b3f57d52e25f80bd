package otel_test

import (
	"context"
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	petalotel "github.com/petal-labs/ghcid-mcp/otel"
	"github.com/petal-labs/ghcid-mcp/probe"
)

func newTestMeter() (*metric.ManualReader, *metric.MeterProvider) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	return reader, mp
}

func collectMetrics(t *testing.T, reader *metric.ManualReader) *metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return &rm
}

func findMetric(rm *metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, scope := range rm.ScopeMetrics {
		for i := range scope.Metrics {
			if scope.Metrics[i].Name == name {
				return &scope.Metrics[i]
			}
		}
	}
	return nil
}

func sumInt64(t *testing.T, m *metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("%s type = %T, want Sum[int64]", m.Name, m.Data)
	}
	var total int64
	for _, point := range sum.DataPoints {
		total += point.Value
	}
	return total
}

func TestProbeObserverRecordsMetrics(t *testing.T) {
	reader, mp := newTestMeter()
	observer, err := petalotel.NewProbeObserver(mp.Meter("test-probe"), noop.NewTracerProvider().Tracer("test-probe"))
	if err != nil {
		t.Fatalf("NewProbeObserver() error = %v", err)
	}

	observer.ObserveLocate(probe.LocateObservation{Path: "/p", Candidates: 2, Success: true})
	observer.ObserveLocate(probe.LocateObservation{Path: "/q", ErrorCode: probe.ErrorCodeNoManifest})
	exit := 0
	observer.ObserveCheck(probe.CheckObservation{Path: "/p", Success: true, ExitCode: &exit, DurationMS: 1500})
	observer.ObserveCheck(probe.CheckObservation{Path: "/p", ErrorCode: probe.ErrorCodeTimeout, TimeoutSeconds: 1, DurationMS: 1000})

	rm := collectMetrics(t, reader)

	locates := findMetric(rm, "ghcid_mcp.locate.calls")
	if locates == nil {
		t.Fatal("ghcid_mcp.locate.calls metric not found")
	}
	if got := sumInt64(t, locates); got != 2 {
		t.Fatalf("locate calls = %d, want 2", got)
	}

	checks := findMetric(rm, "ghcid_mcp.check.calls")
	if checks == nil {
		t.Fatal("ghcid_mcp.check.calls metric not found")
	}
	if got := sumInt64(t, checks); got != 2 {
		t.Fatalf("check calls = %d, want 2", got)
	}

	timeouts := findMetric(rm, "ghcid_mcp.check.timeouts")
	if timeouts == nil {
		t.Fatal("ghcid_mcp.check.timeouts metric not found")
	}
	if got := sumInt64(t, timeouts); got != 1 {
		t.Fatalf("timeouts = %d, want 1", got)
	}

	duration := findMetric(rm, "ghcid_mcp.check.duration")
	if duration == nil {
		t.Fatal("ghcid_mcp.check.duration metric not found")
	}
	if _, ok := duration.Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("ghcid_mcp.check.duration type = %T, want Histogram[float64]", duration.Data)
	}
}

func TestProbeObserverRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	_, mp := newTestMeter()

	observer, err := petalotel.NewProbeObserver(mp.Meter("test-probe"), tp.Tracer("test-probe"))
	if err != nil {
		t.Fatalf("NewProbeObserver() error = %v", err)
	}

	start := time.Now().Add(-2 * time.Second)
	observer.ObserveCheck(probe.CheckObservation{
		Path:           "/proj",
		Command:        `ghcid -c "cabal repl"`,
		TimeoutSeconds: 300,
		StartedAt:      start,
		DurationMS:     2000,
		ErrorCode:      probe.ErrorCodeTimeout,
	})
	exit := 1
	observer.ObserveCheck(probe.CheckObservation{Path: "/proj", ExitCode: &exit, StartedAt: start})

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	for _, span := range spans {
		if span.Name != "probe.check" {
			t.Fatalf("span name = %q, want probe.check", span.Name)
		}
		if span.Status.Code != otelcodes.Error {
			t.Fatalf("span status = %v, want Error", span.Status.Code)
		}
	}
	if got := spans[0].Status.Description; got != probe.ErrorCodeTimeout {
		t.Fatalf("span status description = %q, want %q", got, probe.ErrorCodeTimeout)
	}
	if got := spans[0].EndTime.Sub(spans[0].StartTime); got != 2*time.Second {
		t.Fatalf("span duration = %s, want 2s", got)
	}
}

func TestNilProbeObserverIsSafe(t *testing.T) {
	var observer *petalotel.ProbeObserver
	observer.ObserveLocate(probe.LocateObservation{})
	observer.ObserveCheck(probe.CheckObservation{})
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := petalotel.Setup(context.Background(), petalotel.TelemetryConfig{})
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
}
