// Package tracing installs the global OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"sentrybot/internal/platform/config"
)

// Telemetry is the installed provider and the function that flushes it.
type Telemetry struct {
	Provider trace.TracerProvider
	Shutdown func(ctx context.Context) error
}

func noopTelemetry() Telemetry {
	return Telemetry{
		Provider: noop.NewTracerProvider(),
		Shutdown: func(context.Context) error { return nil },
	}
}

// Init exports spans over OTLP/gRPC when an endpoint is configured and installs the
// provider globally. Without an endpoint spans are discarded.
func Init(ctx context.Context, cfg config.TracingConfig, version string) (Telemetry, error) {
	if !cfg.Enabled() {
		tel := noopTelemetry()
		otel.SetTracerProvider(tel.Provider)
		return tel, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(cfg.Endpoint))
	if err != nil {
		return Telemetry{}, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return Telemetry{}, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return Telemetry{Provider: tp, Shutdown: tp.Shutdown}, nil
}
