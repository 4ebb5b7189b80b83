// Package stream implements the Streaming Bridge (spec §4.3): it turns
// whatever an adapter can produce — a native SSE/event stream, or nothing
// at all — into the same lazy, finite, non-restartable llm.StreamChunk
// sequence the rest of the gateway consumes, and renders that sequence
// back out as wire-format SSE. The per-tool-call argument-fragment
// accumulation and chunk-aggregation-for-non-streaming-providers patterns
// are generalized from the streamingState struct in kadirpekel/hector's
// pkg/llms OpenAI provider, which tracks the same kind of partial state
// (functionCallArgs strings.Builder, emittedCallIDs) across SSE events.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/llm"
	"github.com/litellm-go/gateway/pkg/providers"
)

// FromAdapter returns a StreamChunk channel for the given request,
// regardless of whether the adapter supports native streaming. When it
// does not (no ChatStreamAdapter implementation), the chunk-aggregation
// path (spec §4.3) calls Chat once and splits the result into a content
// chunk, one chunk per tool call, and a terminal usage-bearing chunk — the
// same chunk shapes a natively streaming provider produces.
func FromAdapter(ctx context.Context, adapter providers.Adapter, dep *llm.Deployment, req *llm.Request) (<-chan llm.StreamChunk, error) {
	if streamer, ok := adapter.(providers.ChatStreamAdapter); ok {
		return streamer.ChatStream(ctx, dep, req)
	}
	chatter, ok := adapter.(providers.ChatAdapter)
	if !ok {
		return nil, apierrors.New(apierrors.InternalError, "adapter %q supports neither chat nor chat_stream", adapter.Name())
	}
	resp, err := chatter.Chat(ctx, dep, req)
	if err != nil {
		return nil, err
	}
	return aggregate(resp), nil
}

// aggregate implements the "chunk aggregation" rule (spec §4.3): split a
// whole non-streaming Response into a content chunk (when there is text),
// one chunk per tool call, and a terminal chunk carrying finish_reason and
// usage. An empty response (zero choices) still
// yields a single terminal chunk with finish_reason=stop and zero usage,
// per spec §4.3's "empty stream" edge case.
func aggregate(resp *llm.Response) <-chan llm.StreamChunk {
	out := make(chan llm.StreamChunk, 2)
	go func() {
		defer close(out)
		if len(resp.Choices) == 0 {
			finish := llm.FinishStop
			out <- llm.StreamChunk{
				ID: resp.ID, Object: "chat.completion.chunk", Model: resp.Model,
				Choices: []llm.StreamChoice{{FinishReason: &finish}},
				Usage:   &llm.Usage{},
			}
			return
		}
		choice := resp.Choices[0]
		if content := choice.Message.Content.String(); content != "" {
			out <- llm.StreamChunk{
				ID: resp.ID, Object: "chat.completion.chunk", Model: resp.Model,
				Choices: []llm.StreamChoice{{Index: choice.Index, Delta: llm.Delta{Role: llm.RoleAssistant, Content: content}}},
			}
		}
		for _, tc := range choice.Message.ToolCalls {
			out <- llm.StreamChunk{
				ID: resp.ID, Object: "chat.completion.chunk", Model: resp.Model,
				Choices: []llm.StreamChoice{{Index: choice.Index, Delta: llm.Delta{ToolCalls: []llm.ToolCall{tc}}}},
			}
		}
		finish := choice.FinishReason
		usage := resp.Usage
		out <- llm.StreamChunk{
			ID: resp.ID, Object: "chat.completion.chunk", Model: resp.Model,
			Choices: []llm.StreamChoice{{Index: choice.Index, FinishReason: &finish}},
			Usage:   &usage,
		}
	}()
	return out
}

// Assembled is the fully materialized result of draining a stream: the
// concatenated text, the merged tool calls (argument fragments joined per
// index per spec §4.3's "tool-call streaming" rule), the terminal finish
// reason, and whatever usage the terminal chunk carried. post_call_stream
// hooks and the cost engine's streaming-fallback token count both consume
// this instead of re-deriving it from raw chunks.
type Assembled struct {
	Content      string
	ToolCalls    []llm.ToolCall
	FinishReason llm.FinishReason
	Usage        llm.Usage
	BytesSent    int
}

// Assemble drains chunks to completion, merging tool-call argument
// fragments by their position in Delta.ToolCalls (the bridge's per-index
// accumulation contract) into well-formed per-call argument strings.
// Assemble does not stop the underlying producer on ctx cancellation;
// callers that need early exit should select on ctx themselves and stop
// draining — Assemble is for the common case of running a stream to its
// natural end.
func Assemble(chunks <-chan llm.StreamChunk) Assembled {
	var a Assembled
	argsByID := map[string]*llm.ToolCall{}
	var order []string

	for chunk := range chunks {
		if chunk.Usage != nil {
			a.Usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				a.Content += choice.Delta.Content
				a.BytesSent += len(choice.Delta.Content)
			}
			for _, tc := range choice.Delta.ToolCalls {
				existing, ok := argsByID[tc.ID]
				if !ok {
					copyTC := tc
					argsByID[tc.ID] = &copyTC
					order = append(order, tc.ID)
					continue
				}
				existing.Arguments += tc.Arguments
				if tc.Name != "" {
					existing.Name = tc.Name
				}
			}
			if choice.FinishReason != nil {
				a.FinishReason = *choice.FinishReason
			}
		}
	}
	for _, id := range order {
		a.ToolCalls = append(a.ToolCalls, *argsByID[id])
	}
	if a.FinishReason == "" {
		a.FinishReason = llm.FinishStop
	}
	return a
}

// Pipe writes chunks to the client as SSE, exactly like WriteSSE, while
// simultaneously assembling them the way Assemble does — so the server
// layer doesn't have to choose between streaming a response live and
// having the full content/usage available afterward for guardrail
// post_call_stream hooks, the cost engine, and the LoggingRecord.
func Pipe(w http.ResponseWriter, flusher http.Flusher, chunks <-chan llm.StreamChunk) (Assembled, error) {
	var a Assembled
	argsByID := map[string]*llm.ToolCall{}
	var order []string

	bw := bufio.NewWriter(w)
	for chunk := range chunks {
		if chunk.Usage != nil {
			a.Usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				a.Content += choice.Delta.Content
				a.BytesSent += len(choice.Delta.Content)
			}
			for _, tc := range choice.Delta.ToolCalls {
				existing, ok := argsByID[tc.ID]
				if !ok {
					copyTC := tc
					argsByID[tc.ID] = &copyTC
					order = append(order, tc.ID)
					continue
				}
				existing.Arguments += tc.Arguments
				if tc.Name != "" {
					existing.Name = tc.Name
				}
			}
			if choice.FinishReason != nil {
				a.FinishReason = *choice.FinishReason
			}
		}

		data, marshalErr := json.Marshal(chunk)
		if marshalErr != nil {
			continue
		}
		if _, werr := fmt.Fprintf(bw, "data: %s\n\n", data); werr != nil {
			return a, werr
		}
		if ferr := bw.Flush(); ferr != nil {
			return a, ferr
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	for _, id := range order {
		a.ToolCalls = append(a.ToolCalls, *argsByID[id])
	}
	if a.FinishReason == "" {
		a.FinishReason = llm.FinishStop
	}

	_, werr := fmt.Fprint(bw, "data: [DONE]\n\n")
	_ = bw.Flush()
	if flusher != nil {
		flusher.Flush()
	}
	return a, werr
}

// WriteSSE renders chunks as wire-format Server-Sent Events: one
// `data: {json}\n\n` frame per chunk and a closing `data: [DONE]\n\n`. It
// writes no error frame; WriteSSEError does that. It returns the number of
// content bytes flushed to the client, which the Router's streaming-retry
// rule (spec §4.5) uses to decide whether a mid-stream failure may still
// be retried.
func WriteSSE(w http.ResponseWriter, flusher http.Flusher, chunks <-chan llm.StreamChunk) (bytesSent int, err error) {
	bw := bufio.NewWriter(w)
	for chunk := range chunks {
		data, marshalErr := json.Marshal(chunk)
		if marshalErr != nil {
			continue
		}
		if _, werr := fmt.Fprintf(bw, "data: %s\n\n", data); werr != nil {
			return bytesSent, werr
		}
		for _, choice := range chunk.Choices {
			bytesSent += len(choice.Delta.Content)
		}
		if ferr := bw.Flush(); ferr != nil {
			return bytesSent, ferr
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	_, werr := fmt.Fprint(bw, "data: [DONE]\n\n")
	_ = bw.Flush()
	if flusher != nil {
		flusher.Flush()
	}
	return bytesSent, werr
}

// WriteSSEError emits the terminal error event spec §7 requires when a
// stream fails: `event: error\ndata: {json}` followed by `data: [DONE]`.
// The chat handler sends it only once content bytes have reached the
// client (bytesSent > 0), when the error is final (spec §4.5); a failure
// before any byte is answered with an ordinary JSON error response.
func WriteSSEError(w http.ResponseWriter, flusher http.Flusher, err error) {
	body := apierrors.ToWire(err)
	data, _ := json.Marshal(body)
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
