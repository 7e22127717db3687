package tracing

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/8arr3tt/have-we-met-sub007/pkg/tracing/exporters"
)

// Config selects the exporter the tracer provider ships spans to.
type Config struct {
	ServiceName string
	// Exporter is "console" or "otlp".
	Exporter string
	// Pretty pretty-prints console output.
	Pretty bool
	OTLP   exporters.OTLPConfig
}

// Setup builds a tracer provider for the configured exporter, installs its
// tracer on this facade, and returns the provider shutdown hook.
func Setup(ctx context.Context, cfg Config) (func(context.Context) error, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Exporter {
	case "otlp":
		exporter, err = exporters.NewOTLPExporter(ctx, cfg.OTLP)
	default:
		exporter, err = exporters.NewConsoleExporter(os.Stdout, cfg.Pretty)
	}
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	SetTracer(provider.Tracer(cfg.ServiceName))

	return provider.Shutdown, nil
}
