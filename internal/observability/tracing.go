package observability

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider wraps an OpenTelemetry SDK tracer provider scoped to this
// service, in the style of the tracing setup used across the example pack.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// TracingEndpoint is the subset of config.ServiceEndpoint InitTracing needs,
// kept as plain fields so this package doesn't import internal/config.
type TracingEndpoint struct {
	URL     string
	Enabled bool
}

// InitTracing builds a tracer provider for serviceName. When ep.Enabled, it
// exports spans via OTLP/HTTP to ep.URL, the collector pattern used across
// the example pack. When no collector is configured, it falls back to a
// logrus-backed exporter so every traced stage still gets a structured,
// searchable record without requiring anything else to be running, the
// same degraded mode the engine already applies to Redis/Postgres/LLM.
func InitTracing(ctx context.Context, serviceName string, ep TracingEndpoint, sampleAll bool, log *logrus.Logger) (*TracerProvider, error) {
	if log == nil {
		log = logrus.New()
	}

	exporter, err := newExporter(ctx, ep, log)
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))
	if sampleAll {
		sampler = sdktrace.AlwaysSample()
	}

	res := resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)

	return &TracerProvider{provider: tp, tracer: tp.Tracer(serviceName)}, nil
}

func newExporter(ctx context.Context, ep TracingEndpoint, log *logrus.Logger) (sdktrace.SpanExporter, error) {
	if !ep.Enabled || ep.URL == "" {
		return &logrusExporter{log: log.WithField("component", "trace")}, nil
	}
	return otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpointURL(ep.URL),
	))
}

// StartSpan starts a new span under this provider's tracer.
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name, opts...)
}

// Shutdown flushes and stops the tracer provider.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// logrusExporter implements sdktrace.SpanExporter by logging each finished
// span as a structured logrus entry. Used when no OTLP collector endpoint is
// configured.
type logrusExporter struct {
	log *logrus.Entry
}

func (e *logrusExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		e.log.WithFields(logrus.Fields{
			"span_name":   span.Name(),
			"trace_id":    span.SpanContext().TraceID().String(),
			"span_id":     span.SpanContext().SpanID().String(),
			"duration_ms": span.EndTime().Sub(span.StartTime()).Milliseconds(),
		}).Info("span finished")
	}
	return nil
}

func (e *logrusExporter) Shutdown(ctx context.Context) error {
	return nil
}
