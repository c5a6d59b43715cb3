// Package telemetry wires OpenTelemetry tracing for Warden's gateway
// surface. It builds the tracer provider; the gateway service opens
// one span per tool-call evaluation with it, carrying the decision's
// agent id, tool, action, result and policy version (not the params
// hash), and copies the trace id onto the resulting DecisionRecord.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Provider owns the process-wide tracer provider and exposes the
// tracer Warden's gateway service uses to open spans.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// New builds a Provider for serviceName. otlpEndpoint is recorded as
// a resource attribute for operators scraping stdout spans to
// correlate with; Warden does not carry an OTLP network exporter
// dependency (the pack's go.mod only brings the stdout exporters), so
// every span is written via stdouttrace regardless of whether an
// endpoint is configured. A deployment that needs a live collector
// should pair Warden with the OpenTelemetry Collector's stdin/file
// receiver, or add an otlptrace exporter dependency at that point.
func New(ctx context.Context, serviceName, otlpEndpoint string) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(serviceName)}
	if otlpEndpoint != "" {
		attrs = append(attrs, attribute.String("otlp.endpoint_configured", otlpEndpoint))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return &Provider{tp: tp, tracer: tp.Tracer("github.com/wardenhq/warden/internal/telemetry")}, nil
}

// Tracer returns the tracer used to open gateway spans.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and releases the tracer provider. Call it once,
// during graceful shutdown.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}

// DecisionSpanAttributes groups the fields of one evaluation's
// "policy_decision" span. Nothing in Warden uses this type: the gateway
// service sets the span attributes directly, and ParamsHash is not among
// them.
type DecisionSpanAttributes struct {
	AgentID       string
	ParentAgent   string
	Tool          string
	Action        string
	ParamsHash    string
	Result        string
	PolicyVersion int64
	ApprovalID    string
}
