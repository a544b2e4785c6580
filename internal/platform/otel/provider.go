// Package otel configures OpenTelemetry tracing for workprint commands.
package otel

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects where and how much to trace. Tracing stays off until an
// endpoint is set.
type Config struct {
	Endpoint        string        `env:"WORKPRINT_OTEL_ENDPOINT"`
	Enabled         bool          `env:"WORKPRINT_OTEL_ENABLED"          envDefault:"true"`
	SampleRatio     float64       `env:"WORKPRINT_OTEL_SAMPLE_RATIO"     envDefault:"1"`
	ShutdownTimeout time.Duration `env:"WORKPRINT_OTEL_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Active reports whether spans leave the process.
func (c Config) Active() bool {
	return c.Enabled && strings.TrimSpace(c.Endpoint) != ""
}

// Sampler honours the caller's sampling decision and samples root spans at
// SampleRatio, clamped to [0, 1].
func (c Config) Sampler() sdktrace.Sampler {
	switch {
	case c.SampleRatio >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case c.SampleRatio <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRatio))
}

// Shutdown flushes pending spans.
type Shutdown func(context.Context) error

// Setup registers a global tracer provider exporting to cfg.Endpoint over
// OTLP/HTTP. An inactive config returns a shutdown that does nothing and
// leaves the global no-op provider in place.
func Setup(ctx context.Context, service string, cfg Config) (Shutdown, error) {
	if !cfg.Active() {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(strings.TrimSpace(cfg.Endpoint)))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(semconv.ServiceName(service))),
		sdktrace.WithSampler(cfg.Sampler()),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}
