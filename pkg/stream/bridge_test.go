package stream

import (
	"testing"

	"github.com/litellm-go/gateway/pkg/llm"
)

func TestAggregateEmptyResponseYieldsTerminalChunk(t *testing.T) {
	resp := &llm.Response{ID: "r1", Model: "gpt-4o"}
	chunks := aggregate(resp)

	var got []llm.StreamChunk
	for c := range chunks {
		got = append(got, c)
	}
	if len(got) != 1 {
		t.Fatalf("chunks = %d, want 1", len(got))
	}
	if *got[0].Choices[0].FinishReason != llm.FinishStop {
		t.Errorf("finish reason = %v, want stop", *got[0].Choices[0].FinishReason)
	}
}

func TestAssembleMergesToolCallArgumentFragments(t *testing.T) {
	ch := make(chan llm.StreamChunk, 4)
	ch <- llm.StreamChunk{Choices: []llm.StreamChoice{{Delta: llm.Delta{
		ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "get_weather", Arguments: `{"lo`}},
	}}}}
	ch <- llm.StreamChunk{Choices: []llm.StreamChoice{{Delta: llm.Delta{
		ToolCalls: []llm.ToolCall{{ID: "call_1", Arguments: `cation":"Tokyo"}`}},
	}}}}
	finish := llm.FinishToolCalls
	ch <- llm.StreamChunk{Choices: []llm.StreamChoice{{FinishReason: &finish}}}
	close(ch)

	got := Assemble(ch)
	if len(got.ToolCalls) != 1 {
		t.Fatalf("ToolCalls = %d, want 1", len(got.ToolCalls))
	}
	if got.ToolCalls[0].Arguments != `{"location":"Tokyo"}` {
		t.Errorf("merged arguments = %q", got.ToolCalls[0].Arguments)
	}
	if got.FinishReason != llm.FinishToolCalls {
		t.Errorf("FinishReason = %v", got.FinishReason)
	}
}

func TestAssembleConcatenatesContent(t *testing.T) {
	ch := make(chan llm.StreamChunk, 3)
	ch <- llm.StreamChunk{Choices: []llm.StreamChoice{{Delta: llm.Delta{Content: "Hello, "}}}}
	ch <- llm.StreamChunk{Choices: []llm.StreamChoice{{Delta: llm.Delta{Content: "world!"}}}}
	close(ch)

	got := Assemble(ch)
	if got.Content != "Hello, world!" {
		t.Errorf("Content = %q", got.Content)
	}
	if got.BytesSent != len("Hello, world!") {
		t.Errorf("BytesSent = %d", got.BytesSent)
	}
}
