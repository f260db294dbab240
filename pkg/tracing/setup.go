package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// discardExporter drops spans when no collector is configured.
type discardExporter struct{}

func (discardExporter) ExportSpans(_ context.Context, _ []sdktrace.ReadOnlySpan) error {
	return nil
}

func (discardExporter) Shutdown(_ context.Context) error {
	return nil
}

// Setup installs a tracer provider named after the application. An empty endpoint keeps spans
// in-process only. The returned function flushes and stops the provider.
func Setup(ctx context.Context, appName, endpoint string) (func(context.Context) error, error) {
	var exporter sdktrace.SpanExporter = discardExporter{}
	if endpoint != "" {
		exp, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		exporter = exp
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	SetTracer(provider.Tracer(appName))

	return provider.Shutdown, nil
}
