package mcp

import (
	"context"
	"testing"
)

func TestCallerAllowsRespectsAllowAndDenyLists(t *testing.T) {
	c := Caller{AllowedTools: []string{"search-a", "search-b"}, DisallowedTools: []string{"search-b"}}

	if !c.allows("search-a") {
		t.Error("search-a should be allowed")
	}
	if c.allows("search-b") {
		t.Error("search-b is on the deny list and should be blocked even though allowed")
	}
	if c.allows("search-c") {
		t.Error("search-c is not on the allow list and should be blocked")
	}
}

func TestCallerAllowsAllWhenAllowListEmpty(t *testing.T) {
	c := Caller{}
	if !c.allows("anything") {
		t.Error("empty AllowedTools should permit every tool not explicitly denied")
	}
}

func TestGroupsIntersectUngatedServerAllowsEveryCaller(t *testing.T) {
	c := Caller{AccessGroups: []string{"team-a"}}
	if !c.groupsIntersect(nil) {
		t.Error("a server with no AccessGroups should be visible to any caller")
	}
}

func TestGroupsIntersectRequiresOverlap(t *testing.T) {
	c := Caller{AccessGroups: []string{"team-a"}}
	if c.groupsIntersect([]string{"team-b"}) {
		t.Error("disjoint access groups should not intersect")
	}
	if !c.groupsIntersect([]string{"team-a", "team-c"}) {
		t.Error("overlapping access groups should intersect")
	}
}

func TestGatewayResolveSplitsNamespacedToolName(t *testing.T) {
	g := NewGateway()
	g.AddServer(ServerConfig{ID: "deepwiki", Transport: TransportStreamableHTTP, URL: "http://example.invalid"})

	server, raw, err := g.resolve("deepwiki-ask_question")
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if server.ID() != "deepwiki" || raw != "ask_question" {
		t.Errorf("resolve() = (%s, %s), want (deepwiki, ask_question)", server.ID(), raw)
	}
}

func TestGatewayResolveUnknownToolReturnsNotFound(t *testing.T) {
	g := NewGateway()
	_, _, err := g.resolve("nosuchserver-tool")
	if err == nil {
		t.Fatal("expected error for unknown server prefix")
	}
}

func TestGatewayCallToolDeniesOnAccessGroupMismatch(t *testing.T) {
	g := NewGateway()
	g.AddServer(ServerConfig{ID: "internal", AccessGroups: []string{"admins"}})

	caller := Caller{AccessGroups: []string{"engineers"}}
	_, err := g.CallTool(context.Background(), caller, "internal-do_thing", nil, nil)

	var denied *McpAccessDenied
	if !asAccessDenied(err, &denied) {
		t.Fatalf("CallTool() error = %v, want *McpAccessDenied", err)
	}
}

func TestGatewayCallToolDeniesDisallowedTool(t *testing.T) {
	g := NewGateway()
	g.AddServer(ServerConfig{ID: "deepwiki"})

	caller := Caller{DisallowedTools: []string{"deepwiki-ask_question"}}
	_, err := g.CallTool(context.Background(), caller, "deepwiki-ask_question", nil, nil)

	var denied *McpAccessDenied
	if !asAccessDenied(err, &denied) {
		t.Fatalf("CallTool() error = %v, want *McpAccessDenied", err)
	}
}

func asAccessDenied(err error, target **McpAccessDenied) bool {
	d, ok := err.(*McpAccessDenied)
	if ok {
		*target = d
	}
	return ok
}
