package server

import (
	"net/http"
	"time"

	"github.com/litellm-go/gateway/pkg/apierrors"
	"github.com/litellm-go/gateway/pkg/mcp"
)

type mcpToolsResponse struct {
	Tools []mcp.ToolInfo `json:"tools"`
}

// handleMCPListTools implements GET /v1/mcp/tools (spec §4.7): aggregated,
// namespaced, access-filtered tool discovery across every configured MCP
// server. The x-mcp-servers header, comma-separated, narrows the set of
// servers considered.
func (g *Gateway) handleMCPListTools(w http.ResponseWriter, r *http.Request) {
	deps := g.loadDeps()
	caller, _ := callerFrom(r.Context())

	tools, err := deps.MCP.ListTools(r.Context(), mcpCaller(caller), requestedServers(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, mcpToolsResponse{Tools: tools})
}

type mcpCallRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type mcpCallResponse struct {
	ServerID string         `json:"server_id"`
	ToolName string         `json:"tool_name"`
	Result   map[string]any `json:"result"`
}

// handleMCPCallTool implements POST /v1/mcp/call: resolves the namespaced
// tool name to its owning server, enforces access control, projects
// forwardable headers, and invokes it (spec §4.7 steps 2-6). Cost accrual
// for the invocation happens via deps.Cost when this result folds into a
// chat turn's tool_result message; a standalone call here is priced at zero
// since there is no enclosing LoggingRecord to attach it to.
func (g *Gateway) handleMCPCallTool(w http.ResponseWriter, r *http.Request) {
	deps := g.loadDeps()
	caller, _ := callerFrom(r.Context())

	var req mcpCallRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, apierrors.New(apierrors.BadRequest, "name is required"))
		return
	}

	ctx, span := deps.Obs.Tracer().StartMCPToolCall(r.Context(), "", req.Name)
	start := time.Now()

	invocation, err := deps.MCP.CallTool(ctx, mcpCaller(caller), req.Name, req.Arguments, r.Header)
	if err != nil {
		deps.Obs.Tracer().RecordError(span, err)
		span.End()
		deps.Obs.Metrics().RecordMCPError("", req.Name)
		writeError(w, err)
		return
	}

	deps.Obs.Metrics().RecordMCPCall(invocation.ServerID, invocation.ToolName, time.Since(start))
	span.End()

	writeJSON(w, http.StatusOK, mcpCallResponse{
		ServerID: invocation.ServerID,
		ToolName: invocation.ToolName,
		Result:   invocation.Result,
	})
}

// requestedServers parses the comma-separated x-mcp-servers header.
func requestedServers(r *http.Request) []string {
	v := r.Header.Get("x-mcp-servers")
	if v == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			if i > start {
				out = append(out, v[start:i])
			}
			start = i + 1
		}
	}
	return out
}
