package mcp

import "testing"

func TestSessionLifecycleHappyPath(t *testing.T) {
	s := NewSession()
	if s.State() != StateIdle {
		t.Fatalf("initial state = %v, want Idle", s.State())
	}
	if !s.BeginConnect() || s.State() != StateConnecting {
		t.Fatal("BeginConnect() failed")
	}
	if !s.ConnectSucceeded() || s.State() != StateReady {
		t.Fatal("ConnectSucceeded() failed")
	}
	if !s.BeginInvoke() || s.State() != StateInvoking {
		t.Fatal("BeginInvoke() failed")
	}
	if !s.InvokeSucceeded() || s.State() != StateReady {
		t.Fatal("InvokeSucceeded() failed")
	}
}

func TestSessionFailMovesToClosedFromAnyState(t *testing.T) {
	s := NewSession()
	s.BeginConnect()
	s.Fail()
	if s.State() != StateClosed {
		t.Fatalf("State() = %v, want Closed", s.State())
	}
	if !s.Closed() {
		t.Error("Closed() = false, want true")
	}
}

func TestSessionClosedIsTerminal(t *testing.T) {
	s := NewSession()
	s.BeginConnect()
	s.Fail()

	if s.BeginConnect() {
		t.Error("BeginConnect() succeeded from Closed, want rejection")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want still Closed", s.State())
	}
}

func TestSessionRejectsIllegalTransition(t *testing.T) {
	s := NewSession()
	// Idle -> Ready is not a legal direct edge.
	if s.ConnectSucceeded() {
		t.Error("ConnectSucceeded() from Idle should be rejected")
	}
	if s.State() != StateIdle {
		t.Errorf("State() = %v, want unchanged Idle", s.State())
	}
}
