package modelsync

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/jward/modelsync"

// instruments holds the metric instruments of an Engine. They are created
// once in New and shared by every operation.
type instruments struct {
	reloads  metric.Int64Counter
	replaced metric.Int64Counter
	written  metric.Int64Counter
	deleted  metric.Int64Counter
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in  instruments
		err error
	)
	in.reloads, err = m.Int64Counter("modelsync.reload.count",
		metric.WithDescription("Number of reloads applied"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create reload counter: %w", err)
	}
	in.replaced, err = m.Int64Counter("modelsync.entities.replaced",
		metric.WithDescription("Entities replaced in place by a merge"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create replaced counter: %w", err)
	}
	in.written, err = m.Int64Counter("modelsync.files.written",
		metric.WithDescription("Configuration files written by saves"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create written counter: %w", err)
	}
	in.deleted, err = m.Int64Counter("modelsync.files.deleted",
		metric.WithDescription("Configuration files deleted by saves"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("create deleted counter: %w", err)
	}
	return &in, nil
}

func defaultTracer() trace.Tracer {
	return tracenoop.NewTracerProvider().Tracer(instrumentationName)
}

func defaultMeter() metric.Meter {
	return metricnoop.NewMeterProvider().Meter(instrumentationName)
}

// startSpan opens a span tagged with the engine's scope.
func (e *Engine) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("modelsync.root", e.root),
		attribute.Bool("modelsync.global", e.global),
	))
}

// endSpan records err on span and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
