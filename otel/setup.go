package otel

import (
	"context"
	"fmt"
	"strings"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TelemetryConfig selects where probe spans are exported.
type TelemetryConfig struct {
	// Endpoint is an OTLP/HTTP traces URL, e.g. http://localhost:4318/v1/traces.
	// Empty disables export.
	Endpoint    string
	ServiceName string
}

// ShutdownFunc flushes and stops exporters installed by Setup.
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global tracer provider exporting over OTLP/HTTP when an
// endpoint is configured. Without one the global no-op providers stay in
// place and the returned shutdown does nothing.
func Setup(ctx context.Context, cfg TelemetryConfig) (ShutdownFunc, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "ghcid-mcp"
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return nil, fmt.Errorf("otel: create otlp trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otelapi.SetTracerProvider(provider)

	return provider.Shutdown, nil
}

// InstallProbeObserver builds a ProbeObserver from the global providers.
func InstallProbeObserver() (*ProbeObserver, error) {
	return NewProbeObserver(
		otelapi.GetMeterProvider().Meter("ghcid-mcp/probe"),
		otelapi.GetTracerProvider().Tracer("ghcid-mcp/probe"),
	)
}
