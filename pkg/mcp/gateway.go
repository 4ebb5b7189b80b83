package mcp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/litellm-go/gateway/pkg/apierrors"
)

// McpAccessDenied is returned when a caller's access groups don't intersect
// a server's configured AccessGroups (spec §4.7 step 2).
type McpAccessDenied struct {
	ServerID string
	Reason   string
}

func (e *McpAccessDenied) Error() string {
	return fmt.Sprintf("access denied to mcp server %s: %s", e.ServerID, e.Reason)
}

func (e *McpAccessDenied) ToAPIError() *apierrors.Error {
	return apierrors.New(apierrors.PermissionDenied, "%s", e.Error())
}

// Caller identifies who's asking, for access-group filtering and header
// projection (spec §4.7).
type Caller struct {
	KeyID        string
	TeamID       string
	AccessGroups []string

	// AllowedTools / DisallowedTools are the caller's key/team-level tool
	// filters, applied on top of per-server access control.
	AllowedTools    []string
	DisallowedTools []string
}

// allows reports whether name passes the caller's allow/deny lists. An
// empty AllowedTools means "all tools the access groups permit."
func (c Caller) allows(name string) bool {
	for _, d := range c.DisallowedTools {
		if d == name {
			return false
		}
	}
	if len(c.AllowedTools) == 0 {
		return true
	}
	for _, a := range c.AllowedTools {
		if a == name {
			return true
		}
	}
	return false
}

func (c Caller) groupsIntersect(serverGroups []string) bool {
	if len(serverGroups) == 0 {
		return true // ungated server
	}
	for _, want := range serverGroups {
		for _, have := range c.AccessGroups {
			if want == have {
				return true
			}
		}
	}
	return false
}

// Gateway aggregates tool discovery and invocation across every configured
// MCP server (spec §4.7).
type Gateway struct {
	mu      sync.RWMutex
	servers map[string]*Server
}

// NewGateway builds an empty Gateway; servers are added with AddServer.
func NewGateway() *Gateway {
	return &Gateway{servers: make(map[string]*Server)}
}

// AddServer registers a configured server under its ID.
func (g *Gateway) AddServer(cfg ServerConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.servers[cfg.ID] = NewServer(cfg)
}

// Server returns the registered server by ID, or nil.
func (g *Gateway) Server(id string) *Server {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.servers[id]
}

// selectedServers narrows the registered servers to those named in
// requestedServers (the x-mcp-servers header, spec §4.7), or every server
// the caller's access groups permit when requestedServers is empty.
func (g *Gateway) selectedServers(caller Caller, requestedServers []string) []*Server {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var candidates []*Server
	if len(requestedServers) > 0 {
		wanted := make(map[string]bool, len(requestedServers))
		for _, s := range requestedServers {
			wanted[s] = true
		}
		for id, s := range g.servers {
			if wanted[id] {
				candidates = append(candidates, s)
			}
		}
	} else {
		for _, s := range g.servers {
			candidates = append(candidates, s)
		}
	}

	out := make([]*Server, 0, len(candidates))
	for _, s := range candidates {
		if caller.groupsIntersect(s.cfg.AccessGroups) {
			out = append(out, s)
		}
	}
	return out
}

// ListTools aggregates tools across every server the caller may see,
// querying the servers concurrently and applying the caller's allow/deny
// filters on top (spec §4.7). It returns only after every server's query
// has finished, and an error from any one server fails the whole listing.
func (g *Gateway) ListTools(ctx context.Context, caller Caller, requestedServers []string) ([]ToolInfo, error) {
	servers := g.selectedServers(caller, requestedServers)
	perServer := make([][]ToolInfo, len(servers))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, s := range servers {
		i, s := i, s
		eg.Go(func() error {
			tools, err := s.ListTools(egCtx)
			if err != nil {
				return fmt.Errorf("mcp: list tools on %s: %w", s.ID(), err)
			}
			perServer[i] = tools
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var all []ToolInfo
	for _, tools := range perServer {
		for _, t := range tools {
			if caller.allows(t.Name) {
				all = append(all, t)
			}
		}
	}
	return all, nil
}

// Invocation is the result of a successful CallTool, carrying what the cost
// engine and logging pipeline need (spec §4.7 steps 5-6).
type Invocation struct {
	ServerID string
	ToolName string // namespaced
	RawName  string
	Result   map[string]any
}

// CallTool resolves name's server by prefix, enforces access control,
// projects forwardedHeaders, and dispatches the call (spec §4.7).
func (g *Gateway) CallTool(ctx context.Context, caller Caller, name string, args map[string]any, forwardedHeaders http.Header) (*Invocation, error) {
	server, rawName, err := g.resolve(name)
	if err != nil {
		return nil, err
	}

	if !caller.groupsIntersect(server.cfg.AccessGroups) {
		return nil, &McpAccessDenied{ServerID: server.ID(), Reason: "caller access groups do not match server access groups"}
	}
	if !caller.allows(name) {
		return nil, &McpAccessDenied{ServerID: server.ID(), Reason: "tool disallowed for caller"}
	}

	result, err := server.CallTool(ctx, rawName, args, forwardedHeaders)
	if err != nil {
		return nil, err
	}

	return &Invocation{ServerID: server.ID(), ToolName: name, RawName: rawName, Result: result}, nil
}

// resolve splits a namespaced tool name into its owning server and raw tool
// name, per spec §4.7's "resolve server by name prefix."
func (g *Gateway) resolve(namespacedTool string) (*Server, string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for id, s := range g.servers {
		prefix := id + "-"
		if strings.HasPrefix(namespacedTool, prefix) {
			return s, strings.TrimPrefix(namespacedTool, prefix), nil
		}
	}
	return nil, "", apierrors.New(apierrors.NotFound, "no mcp server owns tool %q", namespacedTool)
}
