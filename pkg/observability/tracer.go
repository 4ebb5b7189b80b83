package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider with the gateway's own span
// helpers (spec §6 ambient observability): one span per chat/completion
// request, one per provider call a router attempt makes, one per MCP tool
// invocation.
type Tracer struct {
	provider        *sdktrace.TracerProvider
	tracer          trace.Tracer
	debugExporter   *DebugExporter
	capturePayloads bool
}

// TracerOption configures a Tracer at construction time.
type TracerOption func(*Tracer)

// WithDebugExporter attaches an in-memory span exporter the operator can
// query for recent traces without standing up a collector.
func WithDebugExporter(d *DebugExporter) TracerOption {
	return func(t *Tracer) { t.debugExporter = d }
}

// WithCapturePayloads enables recording full request/response text on
// spans; off by default since request/response bodies may carry sensitive
// content.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(t *Tracer) { t.capturePayloads = enabled }
}

// NewTracer builds a Tracer from cfg, registering it as the global
// OpenTelemetry tracer provider.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("observability: create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		attribute.String(AttrServiceVersion, cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	t := &Tracer{}
	for _, opt := range opts {
		opt(t)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if t.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(t.debugExporter))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	t.provider = tp
	t.tracer = tp.Tracer("litellm-go-gateway")
	return t, nil
}

// Start begins a generic span.
func (t *Tracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, opts...)
}

// StartProviderCall begins a span around one router attempt against a
// specific deployment.
func (t *Tracer) StartProviderCall(ctx context.Context, modelGroup, provider, deploymentID string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanProviderCall, trace.WithAttributes(
		attribute.String(AttrModelGroup, modelGroup),
		attribute.String(AttrProvider, provider),
		attribute.String(AttrDeploymentID, deploymentID),
	))
}

// StartMCPToolCall begins a span around one MCP tool invocation.
func (t *Tracer) StartMCPToolCall(ctx context.Context, serverID, toolName string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanMCPToolCall, trace.WithAttributes(
		attribute.String(AttrMCPServer, serverID),
		attribute.String(AttrMCPTool, toolName),
	))
}

// AddUsage records token usage on a span.
func (t *Tracer) AddUsage(span trace.Span, promptTokens, completionTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int(AttrTokensPrompt, promptTokens),
		attribute.Int(AttrTokensOutput, completionTokens),
	)
}

// RecordError marks a span as failed.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(AttrErrorType, fmt.Sprintf("%T", err)))
}

// DebugExporter returns the in-memory span exporter, or nil if none was
// configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// CapturePayloads reports whether full request/response bodies should be
// attached to spans.
func (t *Tracer) CapturePayloads() bool {
	return t != nil && t.capturePayloads
}

// Shutdown flushes and stops the tracer provider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}
