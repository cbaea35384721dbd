// Package telemetry wires OpenTelemetry tracing for the timebox CLI.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Provider is a tracer provider plus the function that flushes it.
type Provider struct {
	trace.TracerProvider
	Shutdown func(context.Context) error
}

// Setup builds an OTLP/HTTP tracer provider exporting to endpoint.
//
// Tracing is opt-in: an empty endpoint yields a no-op provider and a
// no-op shutdown function. Nothing is registered globally; pass the
// provider to timebox.WithTracerProvider.
func Setup(ctx context.Context, serviceName, endpoint string) (*Provider, error) {
	noopShutdown := func(context.Context) error { return nil }

	if endpoint == "" {
		return &Provider{
			TracerProvider: noop.NewTracerProvider(),
			Shutdown:       noopShutdown,
		}, nil
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpointURL(endpoint),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &Provider{
		TracerProvider: tp,
		Shutdown:       tp.Shutdown,
	}, nil
}
