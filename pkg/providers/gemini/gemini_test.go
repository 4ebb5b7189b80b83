package gemini

import (
	"testing"

	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

func TestBuildRequestPrependsSystemInstruction(t *testing.T) {
	dep := &llm.Deployment{Model: "gemini-1.5-pro"}
	req := &llm.Request{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: llm.NewText("be terse")},
		{Role: llm.RoleUser, Content: llm.NewText("hello")},
	}}
	wr := buildRequest(dep, req)
	if wr.SystemInstruction == nil {
		t.Fatal("SystemInstruction should be set")
	}
	if wr.SystemInstruction.Parts[0]["text"] != "be terse" {
		t.Errorf("system instruction text = %v", wr.SystemInstruction.Parts[0]["text"])
	}
	if len(wr.Contents) != 1 {
		t.Fatalf("Contents len = %d, want 1 (system excluded)", len(wr.Contents))
	}
}

func TestStripAnyOfTypeRemovesTypeWhenAnyOfPresent(t *testing.T) {
	schema := map[string]any{
		"type":  "object",
		"anyOf": []any{map[string]any{"type": "string"}},
	}
	out := stripAnyOfType(schema)
	if _, ok := out["type"]; ok {
		t.Error("type should be stripped when anyOf present")
	}
}

func TestToolCallIDDeterministic(t *testing.T) {
	a := providers.ToolCallID(0, "get_weather")
	b := providers.ToolCallID(0, "get_weather")
	if a != b {
		t.Errorf("ToolCallID not deterministic: %q != %q", a, b)
	}
}
