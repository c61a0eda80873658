package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

type OtlpConfig struct {
	HttpEndpoint string            `json:"http_endpoint" envconfig:"HTTP_ENDPOINT"`
	Headers      map[string]string `json:"headers" envconfig:"HEADERS"`
}

// Tracer returns a tracer from the global provider, which is a no-op until
// SetupTracing installs an exporter.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// SetupTracing exports spans over OTLP/HTTP when an endpoint is configured.
// The returned function flushes and shuts the provider down.
func SetupTracing(ctx context.Context, serviceName string, cfg OtlpConfig) (func(context.Context) error, error) {
	if cfg.HttpEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(cfg.HttpEndpoint),
		otlptracehttp.WithHeaders(cfg.Headers),
	)
	if err != nil {
		return nil, err
	}
	slog.Info(
		"tracer export initialized",
		"type", "http",
		"endpoint", cfg.HttpEndpoint,
		"headers", len(cfg.Headers) > 0,
	)

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
