package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/litellm-go/gateway/pkg/httpclient"
)

// Transport identifies how the gateway talks to one MCP server.
type Transport string

const (
	TransportStdio          Transport = "stdio"
	TransportSSE            Transport = "sse"
	TransportStreamableHTTP Transport = "streamable-http"
)

// ServerConfig describes one configured MCP server (spec §4.7, §6).
type ServerConfig struct {
	ID          string
	Transport   Transport
	URL         string
	Command     string
	Args        []string
	Env         map[string]string
	AccessGroups []string

	// ForwardableHeaders lists incoming request headers this server is
	// allowed to see, projected onto outgoing requests per spec §4.7 step 3.
	ForwardableHeaders []string

	// OAuth configures client-credentials token exchange for this server;
	// nil means no OAuth is used.
	OAuth *OAuthConfig

	SSETimeout time.Duration
	MaxRetries int

	// ToolCostPerCall and ToolCosts configure the server-level and
	// tool-level MCP pricing the cost engine resolves (spec §4.6).
	ToolCostPerCall float64
	ToolCosts       map[string]float64
}

// ToolInfo describes one tool surfaced by a server, namespaced for the
// gateway's aggregate tool list.
type ToolInfo struct {
	// Name is the namespaced name exposed to callers: "<server>-<tool>".
	Name        string
	ServerID    string
	RawName     string
	Description string
	Schema      map[string]any
}

// Server is a pooled connection to one MCP server. Connections are lazy:
// the first ListTools or CallTool triggers connectLocked().
type Server struct {
	cfg ServerConfig

	mu        sync.Mutex
	session   *Session
	stdio     *mcpclient.Client
	http      *httpclient.Client
	sessionID string // streamable-http transport session header
	sessionMu sync.RWMutex
	tools     []ToolInfo

	oauth *oauthCache
}

// NewServer builds a Server for cfg; the connection itself is not opened
// until first use.
func NewServer(cfg ServerConfig) *Server {
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = 5 * time.Minute
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	s := &Server{cfg: cfg, session: NewSession()}
	if cfg.OAuth != nil {
		s.oauth = newOAuthCache(cfg.OAuth)
	}
	return s
}

// ID returns the server's configured identifier.
func (s *Server) ID() string { return s.cfg.ID }

// ListTools connects (if needed) and returns the namespaced tool list.
func (s *Server) ListTools(ctx context.Context) ([]ToolInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Closed() || (s.stdio == nil && s.http == nil) {
		if err := s.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	return s.tools, nil
}

func (s *Server) connectLocked(ctx context.Context) error {
	if !s.session.BeginConnect() {
		// already connecting/ready elsewhere in a prior failed state; reset.
		s.session = NewSession()
		s.session.BeginConnect()
	}

	var err error
	if s.cfg.Transport == TransportStdio {
		err = s.connectStdioLocked(ctx)
	} else {
		err = s.connectHTTPLocked(ctx)
	}
	if err != nil {
		s.session.Fail()
		return err
	}
	s.session.ConnectSucceeded()
	return nil
}

func (s *Server) connectStdioLocked(ctx context.Context) error {
	c, err := mcpclient.NewStdioMCPClient(s.cfg.Command, envSlice(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return fmt.Errorf("mcp: create stdio client for %s: %w", s.cfg.ID, err)
	}
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("mcp: start stdio client for %s: %w", s.cfg.ID, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{Name: "litellm-go-gateway", Version: "0.1.0"}
	initReq.Params.ProtocolVersion = "2024-11-05"
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return fmt.Errorf("mcp: initialize %s: %w", s.cfg.ID, err)
	}

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.Close()
		return fmt.Errorf("mcp: list tools on %s: %w", s.cfg.ID, err)
	}

	tools := make([]ToolInfo, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		tools = append(tools, ToolInfo{
			Name:        namespacedName(s.cfg.ID, t.Name),
			ServerID:    s.cfg.ID,
			RawName:     t.Name,
			Description: t.Description,
			Schema:      schemaToMap(t.InputSchema),
		})
	}

	s.stdio = c
	s.tools = tools
	return nil
}

func (s *Server) connectHTTPLocked(ctx context.Context) error {
	s.http = httpclient.New(
		httpclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		httpclient.WithMaxRetries(s.cfg.MaxRetries),
		httpclient.WithBaseDelay(2*time.Second),
	)

	initResp, err := s.rpc(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "litellm-go-gateway", "version": "0.1.0"},
		"capabilities":    map[string]any{},
	}, nil)
	if err != nil {
		return fmt.Errorf("mcp: initialize %s: %w", s.cfg.ID, err)
	}
	if initResp.Error != nil {
		return fmt.Errorf("mcp: initialize %s: %s", s.cfg.ID, initResp.Error.Message)
	}

	listResp, err := s.rpc(ctx, "tools/list", nil, nil)
	if err != nil {
		return fmt.Errorf("mcp: list tools on %s: %w", s.cfg.ID, err)
	}
	if listResp.Error != nil {
		return fmt.Errorf("mcp: list tools on %s: %s", s.cfg.ID, listResp.Error.Message)
	}

	resultMap, _ := listResp.Result.(map[string]any)
	rawTools, _ := resultMap["tools"].([]any)

	tools := make([]ToolInfo, 0, len(rawTools))
	for _, raw := range rawTools {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		schema, _ := m["inputSchema"].(map[string]any)
		tools = append(tools, ToolInfo{
			Name:        namespacedName(s.cfg.ID, name),
			ServerID:    s.cfg.ID,
			RawName:     name,
			Description: desc,
			Schema:      schema,
		})
	}

	s.tools = tools
	return nil
}

// CallTool invokes rawName with args, projecting forwardedHeaders per the
// server's ForwardableHeaders allowlist.
func (s *Server) CallTool(ctx context.Context, rawName string, args map[string]any, forwardedHeaders http.Header) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.Closed() || (s.stdio == nil && s.http == nil) {
		if err := s.connectLocked(ctx); err != nil {
			return nil, err
		}
	}
	if !s.session.BeginInvoke() {
		return nil, fmt.Errorf("mcp: server %s not ready for invocation", s.cfg.ID)
	}

	if err := s.validateArgsLocked(rawName, args); err != nil {
		s.session.Fail()
		return nil, fmt.Errorf("mcp: %s on %s: %w", rawName, s.cfg.ID, err)
	}

	var result map[string]any
	var err error
	if s.stdio != nil {
		result, err = s.callStdio(ctx, rawName, args)
	} else {
		result, err = s.callHTTP(ctx, rawName, args, forwardedHeaders)
	}

	if err != nil {
		s.session.Fail()
		return nil, err
	}
	s.session.InvokeSucceeded()
	return result, nil
}

// validateArgsLocked checks args against rawName's declared input schema, if
// the server advertised one at connect time. Tools with no schema, or a
// schema this compiler rejects as malformed, are passed through unchecked.
func (s *Server) validateArgsLocked(rawName string, args map[string]any) error {
	var schemaDoc map[string]any
	for _, t := range s.tools {
		if t.RawName == rawName {
			schemaDoc = t.Schema
			break
		}
	}
	if len(schemaDoc) == 0 {
		return nil
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(rawName+".json", schemaDoc); err != nil {
		return nil
	}
	schema, err := c.Compile(rawName + ".json")
	if err != nil {
		return nil
	}

	payload := map[string]any(args)
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("arguments do not match tool schema: %w", err)
	}
	return nil
}

func (s *Server) callStdio(ctx context.Context, rawName string, args map[string]any) (map[string]any, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = rawName
	req.Params.Arguments = args

	resp, err := s.stdio.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s on %s: %w", rawName, s.cfg.ID, err)
	}
	return contentToResult(resp.Content), nil
}

func (s *Server) callHTTP(ctx context.Context, rawName string, args map[string]any, forwardedHeaders http.Header) (map[string]any, error) {
	resp, err := s.rpc(ctx, "tools/call", map[string]any{"name": rawName, "arguments": args}, forwardedHeaders)
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s on %s: %w", rawName, s.cfg.ID, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("mcp: call %s on %s: %s", rawName, s.cfg.ID, resp.Error.Message)
	}
	result, _ := resp.Result.(map[string]any)
	return result, nil
}

// rpc sends one JSON-RPC request over the server's HTTP transport,
// projecting only the headers named in ForwardableHeaders plus any
// server-configured auth, and transparently resolving an SSE response body
// the same way a streamable-http server may reply.
func (s *Server) rpc(ctx context.Context, method string, params any, forwardedHeaders http.Header) (*rpcResponse, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")

	for _, name := range s.cfg.ForwardableHeaders {
		if v := forwardedHeaders.Get(name); v != "" {
			httpReq.Header.Set(name, v)
		}
	}
	if s.oauth != nil {
		token, err := s.oauth.Token(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("mcp: oauth token for %s: %w", s.cfg.ID, err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	s.sessionMu.RLock()
	sessionID := s.sessionID
	s.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := s.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.sessionMu.Lock()
		s.sessionID = newSessionID
		s.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("http %d: %s", httpResp.StatusCode, string(b))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSE(httpResp, s.cfg.SSETimeout)
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}
	var resp rpcResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// readSSE reads the first complete JSON-RPC message off an SSE stream,
// mirroring the "data:"-line accumulation kadirpekel/hector's mcptoolset
// uses for streamable-http responses.
func readSSE(httpResp *http.Response, timeout time.Duration) (*rpcResponse, error) {
	type result struct {
		resp *rpcResponse
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		defer httpResp.Body.Close()
		reader := bufio.NewReader(httpResp.Body)
		var data strings.Builder

		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				break
			}
			text := strings.TrimSpace(string(line))
			if text == "" {
				if data.Len() > 0 {
					var resp rpcResponse
					if json.Unmarshal([]byte(data.String()), &resp) == nil {
						ch <- result{resp: &resp}
						return
					}
					data.Reset()
				}
				continue
			}
			if strings.HasPrefix(text, "data:") {
				data.WriteString(strings.TrimSpace(strings.TrimPrefix(text, "data:")))
			}
		}
		ch <- result{err: fmt.Errorf("sse stream ended without a complete message")}
	}()

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout reading sse response after %v", timeout)
	}
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// namespacedName joins a server ID and raw tool name with the gateway's
// configurable separator (spec §4.7; hyphen is the default and the
// separator chosen here, so server IDs must not themselves contain one).
func namespacedName(serverID, rawName string) string {
	return serverID + "-" + rawName
}

func schemaToMap(s mcp.ToolInputSchema) map[string]any {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if json.Unmarshal(b, &m) != nil {
		return nil
	}
	return m
}

func contentToResult(content []mcp.Content) map[string]any {
	texts := make([]string, 0, len(content))
	for _, c := range content {
		if tc, ok := mcp.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}
	return map[string]any{"content": texts}
}
