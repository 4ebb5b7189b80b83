// Package mcp implements the MCP Gateway (spec §4.7): tool discovery across
// configured MCP servers, access-controlled invocation, header forwarding,
// OAuth2 client-credentials token exchange, and the per-server session
// state machine. Transport handling is grounded on kadirpekel/hector's
// pkg/tool/mcptoolset.Toolset: mark3labs/mcp-go's client for stdio,
// pkg/httpclient's retrying Client for sse/streamable-http.
package mcp

import "sync"

// SessionState is one state in an MCP server connection's lifecycle (spec
// §4.7: "Idle → Connecting → Ready → {Invoking ↔ Ready} → Closed").
type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateConnecting SessionState = "connecting"
	StateReady      SessionState = "ready"
	StateInvoking   SessionState = "invoking"
	StateClosed     SessionState = "closed"
)

// transitions enumerates every state the state machine may move to from a
// given state; a move not listed is rejected.
var transitions = map[SessionState]map[SessionState]bool{
	StateIdle:       {StateConnecting: true},
	StateConnecting: {StateReady: true, StateClosed: true},
	StateReady:      {StateInvoking: true, StateClosed: true},
	StateInvoking:   {StateReady: true, StateClosed: true},
	StateClosed:     {}, // terminal
}

// Session tracks one MCP server connection's lifecycle state. Closed is
// terminal: once reached, the next invocation must open a fresh Session
// rather than reconnect this one (spec §4.7: "reconnection is handled by
// the next invocation").
type Session struct {
	mu    sync.Mutex
	state SessionState
}

// NewSession starts a Session in StateIdle.
func NewSession() *Session {
	return &Session{state: StateIdle}
}

// State returns the current state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Closed reports whether the session has reached its terminal state.
func (s *Session) Closed() bool {
	return s.State() == StateClosed
}

// transition moves the session to next, returning false if the move isn't
// a legal edge from the current state.
func (s *Session) transition(next SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !transitions[s.state][next] {
		return false
	}
	s.state = next
	return true
}

// BeginConnect moves Idle -> Connecting.
func (s *Session) BeginConnect() bool { return s.transition(StateConnecting) }

// ConnectSucceeded moves Connecting -> Ready.
func (s *Session) ConnectSucceeded() bool { return s.transition(StateReady) }

// BeginInvoke moves Ready -> Invoking.
func (s *Session) BeginInvoke() bool { return s.transition(StateInvoking) }

// InvokeSucceeded moves Invoking -> Ready.
func (s *Session) InvokeSucceeded() bool { return s.transition(StateReady) }

// Fail moves the session to Closed from any non-terminal state, per the
// spec's "transitions on transport error go to Closed" rule. Unlike the
// other transitions this one is unconditional: Closed is reachable from
// every non-terminal state.
func (s *Session) Fail() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
