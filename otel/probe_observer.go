// Package otel records probe activity into OpenTelemetry metrics and traces.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/ghcid-mcp/probe"
)

// ProbeObserver records locator and compilation probe outcomes.
type ProbeObserver struct {
	tracer trace.Tracer

	locates  metric.Int64Counter
	checks   metric.Int64Counter
	timeouts metric.Int64Counter
	duration metric.Float64Histogram
}

// NewProbeObserver creates a probe observer bound to the provided meter/tracer.
func NewProbeObserver(meter metric.Meter, tracer trace.Tracer) (*ProbeObserver, error) {
	locates, err := meter.Int64Counter(
		"ghcid_mcp.locate.calls",
		metric.WithDescription("Number of manifest lookups"),
	)
	if err != nil {
		return nil, err
	}
	checks, err := meter.Int64Counter(
		"ghcid_mcp.check.calls",
		metric.WithDescription("Number of compilation checks"),
	)
	if err != nil {
		return nil, err
	}
	timeouts, err := meter.Int64Counter(
		"ghcid_mcp.check.timeouts",
		metric.WithDescription("Number of compilation checks terminated at their deadline"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"ghcid_mcp.check.duration",
		metric.WithDescription("Compilation check wall-clock time in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ProbeObserver{
		tracer:   tracer,
		locates:  locates,
		checks:   checks,
		timeouts: timeouts,
		duration: duration,
	}, nil
}

// ObserveLocate records one manifest lookup.
func (o *ProbeObserver) ObserveLocate(observation probe.LocateObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", observation.Success),
		attribute.Int("candidates", observation.Candidates),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}
	o.locates.Add(context.Background(), 1, metric.WithAttributes(attrs...))

	o.span("probe.locate", observation.StartedAt, observation.DurationMS, observation.ErrorCode,
		append(attrs,
			attribute.String("path", observation.Path),
			attribute.String("manifest", observation.ManifestPath),
		)...,
	)
}

// ObserveCheck records one compilation check.
func (o *ProbeObserver) ObserveCheck(observation probe.CheckObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", observation.Success),
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	options := metric.WithAttributes(attrs...)
	o.checks.Add(ctx, 1, options)
	o.duration.Record(ctx, float64(time.Duration(observation.DurationMS)*time.Millisecond)/float64(time.Second), options)
	if observation.ErrorCode == probe.ErrorCodeTimeout {
		o.timeouts.Add(ctx, 1)
	}

	spanAttrs := append(attrs,
		attribute.String("path", observation.Path),
		attribute.String("command", observation.Command),
		attribute.Int("timeout_seconds", observation.TimeoutSeconds),
	)
	if observation.ExitCode != nil {
		spanAttrs = append(spanAttrs, attribute.Int("exit_code", *observation.ExitCode))
	}
	status := observation.ErrorCode
	if status == "" && !observation.Success {
		status = "COMPILE_FAILED"
	}
	o.span("probe.check", observation.StartedAt, observation.DurationMS, status, spanAttrs...)
}

func (o *ProbeObserver) span(name string, start time.Time, durationMS int64, errorCode string, attrs ...attribute.KeyValue) {
	if o.tracer == nil {
		return
	}
	if start.IsZero() {
		start = time.Now().Add(-time.Duration(durationMS) * time.Millisecond)
	}
	_, span := o.tracer.Start(context.Background(), name,
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(start),
	)
	if errorCode != "" {
		span.SetStatus(codes.Error, errorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(start.Add(time.Duration(durationMS) * time.Millisecond)))
}

var _ probe.Observer = (*ProbeObserver)(nil)
