package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestRPCServer returns an httptest.Server that answers the JSON-RPC
// methods a streamable-http MCP server exchanges during ListTools/CallTool,
// and records every request's Authorization header so tests can assert on
// forwarded headers and OAuth tokens.
func newTestRPCServer(t *testing.T, headers *http.Header) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		if headers != nil {
			*headers = r.Header.Clone()
		}
		w.Header().Set("mcp-session-id", "sess-1")
		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "initialize":
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}})
		case "tools/list":
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
				"tools": []any{
					map[string]any{
						"name":        "lookup",
						"description": "look something up",
						"inputSchema": map[string]any{"type": "object"},
					},
				},
			}})
		case "tools/call":
			params, _ := req.Params.(map[string]any)
			args, _ := params["arguments"].(map[string]any)
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
				"echoed": args,
			}})
		default:
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: &rpcError{Code: -32601, Message: "unknown method"}})
		}
	}))
}

func TestServerListToolsOverHTTP(t *testing.T) {
	srv := newTestRPCServer(t, nil)
	defer srv.Close()

	s := NewServer(ServerConfig{ID: "search", Transport: TransportStreamableHTTP, URL: srv.URL})

	tools, err := s.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("len(tools) = %d, want 1", len(tools))
	}
	if tools[0].Name != "search-lookup" {
		t.Errorf("tools[0].Name = %q, want search-lookup", tools[0].Name)
	}
	if tools[0].RawName != "lookup" {
		t.Errorf("tools[0].RawName = %q, want lookup", tools[0].RawName)
	}
}

func TestServerCallToolOverHTTP(t *testing.T) {
	var gotHeaders http.Header
	srv := newTestRPCServer(t, &gotHeaders)
	defer srv.Close()

	s := NewServer(ServerConfig{
		ID:                 "search",
		Transport:          TransportStreamableHTTP,
		URL:                srv.URL,
		ForwardableHeaders: []string{"X-Tenant"},
	})

	forwarded := http.Header{}
	forwarded.Set("X-Tenant", "acme")
	forwarded.Set("X-Ignored", "nope")

	result, err := s.CallTool(context.Background(), "lookup", map[string]any{"q": "foo"}, forwarded)
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	echoed, _ := result["echoed"].(map[string]any)
	if echoed["q"] != "foo" {
		t.Errorf("echoed args = %+v, want q=foo", echoed)
	}
	if gotHeaders.Get("X-Tenant") != "acme" {
		t.Errorf("X-Tenant header not forwarded, got %q", gotHeaders.Get("X-Tenant"))
	}
	if gotHeaders.Get("X-Ignored") != "" {
		t.Errorf("X-Ignored header should not be forwarded, got %q", gotHeaders.Get("X-Ignored"))
	}
}

func TestServerCallToolRejectsArgsNotMatchingSchema(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "initialize":
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{}})
		case "tools/list":
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{
				"tools": []any{
					map[string]any{
						"name": "lookup",
						"inputSchema": map[string]any{
							"type":     "object",
							"required": []any{"q"},
							"properties": map[string]any{
								"q": map[string]any{"type": "string"},
							},
						},
					},
				},
			}})
		case "tools/call":
			calls++
			json.NewEncoder(w).Encode(rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: map[string]any{"ok": true}})
		}
	}))
	defer srv.Close()

	s := NewServer(ServerConfig{ID: "search", Transport: TransportStreamableHTTP, URL: srv.URL})

	_, err := s.CallTool(context.Background(), "lookup", map[string]any{}, http.Header{})
	if err == nil {
		t.Fatal("CallTool() with missing required field should have failed validation")
	}
	if calls != 0 {
		t.Errorf("tools/call should not have been reached, got %d calls", calls)
	}

	_, err = s.CallTool(context.Background(), "lookup", map[string]any{"q": "foo"}, http.Header{})
	if err != nil {
		t.Fatalf("CallTool() with valid args error = %v", err)
	}
	if calls != 1 {
		t.Errorf("tools/call should have been reached once, got %d calls", calls)
	}
}

func TestServerSessionIDPersistsAcrossCalls(t *testing.T) {
	srv := newTestRPCServer(t, nil)
	defer srv.Close()

	s := NewServer(ServerConfig{ID: "search", Transport: TransportStreamableHTTP, URL: srv.URL})

	if _, err := s.ListTools(context.Background()); err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	s.sessionMu.RLock()
	sessionID := s.sessionID
	s.sessionMu.RUnlock()
	if sessionID != "sess-1" {
		t.Errorf("sessionID = %q, want sess-1", sessionID)
	}
}
