// Package telemetry configures OpenTelemetry tracing for the pipeline.
package telemetry

import (
	"context"
	"errors"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	ServiceName = "pathway-pipeline"

	// EndpointEnv enables OTLP/HTTP export when set.
	EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

	instrumentationName = "github.com/mikeS141618/Clinical-Pathways-Extraction-Pipeline"
)

// Setup installs a global tracer provider. Without an OTLP endpoint the
// provider records nothing and Setup returns a no-op shutdown.
func Setup(ctx context.Context, version string) (func(context.Context) error, error) {
	if os.Getenv(EndpointEnv) == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartStage opens the root span of one stage run.
func StartStage(ctx context.Context, stage string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "stage."+stage, trace.WithAttributes(attribute.String("pipeline.stage", stage)))
}

// StartDocument opens a span for one document within a stage.
func StartDocument(ctx context.Context, stage, document string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, "document", trace.WithAttributes(
		attribute.String("pipeline.stage", stage),
		attribute.String("pathway.document", document),
	))
}

// End closes span, marking it failed when err is non-nil. Context
// cancellation is not treated as a failure.
func End(span trace.Span, err error) {
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
