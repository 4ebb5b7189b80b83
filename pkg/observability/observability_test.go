package observability

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil Metrics when disabled")
	}
}

func TestMetricsRecording(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true, Namespace: "test"})
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	m.RecordHTTPRequest("POST", "/v1/chat/completions", 200, 10*time.Millisecond)
	m.RecordLLMCall("gpt-4o", "openai", 500*time.Millisecond, 100, 50, 0.0025)
	m.RecordLLMError("gpt-4o", "openai", "rate_limit")
	m.RecordRouterRetry("gpt-4o")
	m.RecordRouterFallback("gpt-4o", "gpt-4o-mini")
	m.RecordMCPCall("weather", "get_forecast", 20*time.Millisecond)
	m.RecordMCPError("weather", "get_forecast")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("expected metrics handler to return 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !containsAll(body, "test_llm_calls_total", "test_router_retries_total", "test_mcp_calls_total") {
		t.Fatalf("expected gateway metric families in output, got:\n%s", body)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	m.RecordLLMCall("x", "y", time.Millisecond, 1, 1, 0)
	m.RecordRouterRetry("x")
	m.RecordMCPCall("x", "y", time.Millisecond)
}

func TestNoopManager(t *testing.T) {
	m := NoopManager()
	if m.TracingEnabled() || m.MetricsEnabled() {
		t.Fatalf("expected a noop manager to have nothing enabled")
	}
	rec := httptest.NewRecorder()
	m.MetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 503 {
		t.Fatalf("expected 503 from a disabled metrics handler, got %d", rec.Code)
	}
}

func containsAll(haystack string, needles ...string) bool {
	for _, n := range needles {
		if !contains(haystack, n) {
			return false
		}
	}
	return true
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
