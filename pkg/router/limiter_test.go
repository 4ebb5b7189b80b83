package router

import (
	"context"
	"testing"
	"time"
)

func TestParallelLimiterRejectsOverCap(t *testing.T) {
	l := NewParallelLimiter()
	l.SetCap(ScopeKey, "key-1", 1)
	cc := CallContext{KeyID: "key-1"}

	d1, err := l.Admit(context.Background(), cc, 0)
	if err != nil || !d1.Allowed {
		t.Fatalf("first Admit() = %+v, %v, want allowed", d1, err)
	}
	d2, err := l.Admit(context.Background(), cc, 0)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if d2.Allowed {
		t.Error("second Admit() should be rejected at cap 1")
	}

	l.Release(cc)
	d3, err := l.Admit(context.Background(), cc, 0)
	if err != nil || !d3.Allowed {
		t.Fatalf("Admit() after Release = %+v, %v, want allowed", d3, err)
	}
}

func TestBudgetLimiterRejectsOnceSpendReachesBudget(t *testing.T) {
	l := NewBudgetLimiter(time.Hour)
	l.SetBudget(ScopeKey, "key-1", 1.0)
	cc := CallContext{KeyID: "key-1"}

	l.RecordUsage(cc, 0, 1.0)
	d, err := l.Admit(context.Background(), cc, 0)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if d.Allowed {
		t.Error("expected rejection once spend reaches budget")
	}
}

func TestDynamicLimiterAdmitsBelowSaturationThreshold(t *testing.T) {
	l := NewDynamicLimiter()
	l.SetModelGroupRPM("gpt-4o", 100)
	cc := CallContext{ModelGroup: "gpt-4o"}

	for i := 0; i < 50; i++ {
		d, err := l.Admit(context.Background(), cc, 0)
		if err != nil {
			t.Fatalf("Admit() error = %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d rejected below saturation threshold", i)
		}
	}
}

func TestCompositeLimiterReleasesAlreadyAdmittedOnRejection(t *testing.T) {
	first := NewParallelLimiter()
	first.SetCap(ScopeKey, "key-1", 10)

	rejecting := NewParallelLimiter()
	rejecting.SetCap(ScopeKey, "key-1", 1)
	rejecting.inFlight[usageKey{ScopeKey, "key-1"}] = 1 // already at cap

	composite := NewCompositeLimiter(first, rejecting)
	cc := CallContext{KeyID: "key-1"}

	d, err := composite.Admit(context.Background(), cc, 0)
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if d.Allowed {
		t.Fatal("expected composite rejection")
	}

	// first limiter must have been released despite admitting successfully.
	d2, err := first.Admit(context.Background(), CallContext{KeyID: "key-1"}, 0)
	if err != nil || !d2.Allowed {
		t.Fatalf("first limiter state leaked after composite rejection: %+v, %v", d2, err)
	}
}
