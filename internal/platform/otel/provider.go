package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Settings selects the trace export target.
type Settings struct {
	ServiceName string
	// Endpoint is an OTLP/HTTP URL. Empty disables export.
	Endpoint string
	// SampleRatio is the fraction of root spans kept; values >= 1 keep all.
	SampleRatio float64
}

// Tracing owns the tracer provider handed to the engine.
type Tracing struct {
	provider trace.TracerProvider
	shutdown func(context.Context) error
}

// TracerProvider returns the provider spans should be created from.
func (t *Tracing) TracerProvider() trace.TracerProvider { return t.provider }

// Enabled reports whether spans are exported.
func (t *Tracing) Enabled() bool {
	_, isNoop := t.provider.(noop.TracerProvider)
	return !isNoop
}

// Shutdown flushes pending spans. Safe to call on a disabled Tracing.
func (t *Tracing) Shutdown(ctx context.Context) error { return t.shutdown(ctx) }

// Setup initialises OpenTelemetry tracing.
//
// Tracing is opt-in: with an empty endpoint Setup returns a no-op provider and
// leaves the global provider untouched. Otherwise the provider is also
// registered globally together with the W3C trace-context propagator.
func Setup(ctx context.Context, s Settings) (*Tracing, error) {
	disabled := &Tracing{
		provider: noop.NewTracerProvider(),
		shutdown: func(context.Context) error { return nil },
	}
	if s.Endpoint == "" {
		return disabled, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(s.Endpoint))
	if err != nil {
		return disabled, fmt.Errorf("otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(s.ServiceName)),
	)
	if err != nil {
		return disabled, fmt.Errorf("otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(s.SampleRatio)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Tracing{provider: tp, shutdown: tp.Shutdown}, nil
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
