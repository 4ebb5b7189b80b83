package logging

import (
	"math"
	"testing"
	"time"

	"github.com/litellm-go/gateway/pkg/cost"
)

func TestNewStampsRequestTime(t *testing.T) {
	rec := New("call-1", "trace-1")
	if rec.RequestTime.IsZero() {
		t.Error("New() did not stamp RequestTime")
	}
	if rec.CallID != "call-1" || rec.TraceID != "trace-1" {
		t.Errorf("New() = %+v, want CallID/TraceID set", rec)
	}
}

func TestFinishStampsResponseTimeAndLatency(t *testing.T) {
	rec := New("call-1", "trace-1")
	time.Sleep(time.Millisecond)
	rec.Finish()

	if rec.ResponseTime.IsZero() {
		t.Error("Finish() did not stamp ResponseTime")
	}
	if rec.Latency <= 0 {
		t.Errorf("Latency = %v, want > 0", rec.Latency)
	}
}

func TestFromBreakdownCollapsesBuckets(t *testing.T) {
	b := cost.Breakdown{
		UncachedInputCost: 1.0,
		CachedReadCost:    0.1,
		CachedWriteCost:   0.2,
		ReasoningCost:     0.3,
		OutputCost:        2.0,
		ServerToolCost:    0.05,
		MCPToolCost:       0.01,
		Total:             3.66,
	}

	c := FromBreakdown(b)
	if c.Input != 1.3 {
		t.Errorf("Input = %v, want 1.3", c.Input)
	}
	if c.Output != 2.3 {
		t.Errorf("Output = %v, want 2.3", c.Output)
	}
	if math.Abs(c.ToolCalls-0.06) > 1e-12 {
		t.Errorf("ToolCalls = %v, want 0.06", c.ToolCalls)
	}
	if c.Total != 3.66 {
		t.Errorf("Total = %v, want 3.66", c.Total)
	}
}
