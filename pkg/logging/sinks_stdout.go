package logging

import (
	"context"
	"log/slog"

	"github.com/litellm-go/gateway/pkg/logger"
)

// StdoutSink emits each Record as one structured slog line through
// pkg/logger's default logger, the simplest of the spec's §5 LoggingSink
// backends and the one enabled with no external config.
type StdoutSink struct {
	// Redact, when true, omits Request/Response content and only logs
	// metadata — for deployments that log call outcomes but not payloads.
	Redact bool
}

// Emit writes rec to the process log at INFO, or WARN when rec carries a
// terminal error.
func (s *StdoutSink) Emit(_ context.Context, rec *Record) {
	l := logger.GetLogger()
	level := slog.LevelInfo
	if rec.Error != "" {
		level = slog.LevelWarn
	}

	attrs := []any{
		slog.String("call_id", rec.CallID),
		slog.String("model", rec.Model),
		slog.String("model_group", rec.ModelGroup),
		slog.String("deployment_id", rec.DeploymentID),
		slog.String("provider", rec.Provider),
		slog.Duration("latency", rec.Latency),
		slog.Int("retries", rec.Retries),
		slog.Float64("cost_total", rec.Cost.Total),
		slog.Bool("cache_hit", rec.CacheHit),
	}
	if len(rec.FallbackChain) > 0 {
		attrs = append(attrs, slog.Any("fallback_chain", rec.FallbackChain))
	}
	if rec.MCPServerID != "" {
		attrs = append(attrs, slog.String("mcp_server_id", rec.MCPServerID), slog.String("mcp_tool_name", rec.MCPToolName), slog.Float64("mcp_cost", rec.MCPCost))
	}
	if rec.Error != "" {
		attrs = append(attrs, slog.String("error", rec.Error))
	}
	if !s.Redact && rec.Request != nil {
		attrs = append(attrs, slog.Int("messages", len(rec.Request.Messages)))
	}

	l.Log(context.Background(), level, "call completed", attrs...)
}
