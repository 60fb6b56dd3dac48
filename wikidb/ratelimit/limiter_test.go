package ratelimit

import (
	"testing"
	"time"
)

func TestAllowUnderLimit(t *testing.T) {
	l := New(10, time.Minute, 3)
	for i := 0; i < 3; i++ {
		allowed, _, _ := l.Allow("key-a")
		if !allowed {
			t.Fatalf("expected request %d to be allowed", i)
		}
	}
}

func TestRejectsOverLimit(t *testing.T) {
	l := New(10, time.Minute, 2)
	l.Allow("key-a")
	l.Allow("key-a")
	allowed, remaining, _ := l.Allow("key-a")
	if allowed {
		t.Fatal("expected third request to be rejected")
	}
	if remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", remaining)
	}
}

func TestDistinctKeysHaveIndependentBudgets(t *testing.T) {
	l := New(10, time.Minute, 1)
	a1, _, _ := l.Allow("key-a")
	b1, _, _ := l.Allow("key-b")
	if !a1 || !b1 {
		t.Fatal("expected both distinct keys' first requests to be allowed")
	}
	a2, _, _ := l.Allow("key-a")
	if a2 {
		t.Fatal("expected key-a's second request to be rejected")
	}
}

func TestWindowResetsAfterExpiry(t *testing.T) {
	l := New(10, 10*time.Millisecond, 1)
	allowed1, _, _ := l.Allow("key-a")
	if !allowed1 {
		t.Fatal("expected first request to be allowed")
	}
	time.Sleep(20 * time.Millisecond)
	allowed2, _, _ := l.Allow("key-a")
	if !allowed2 {
		t.Fatal("expected request after window expiry to be allowed again")
	}
}

func TestCapacityEvictsOldestCredential(t *testing.T) {
	l := New(2, time.Minute, 1)
	l.Allow("key-a")
	l.Allow("key-b")
	l.Allow("key-c") // evicts key-a

	if len(l.entries) != 2 {
		t.Fatalf("expected capacity to be enforced at 2 entries, got %d", len(l.entries))
	}
	// key-a was evicted, so its budget resets: it should be allowed again.
	allowed, _, _ := l.Allow("key-a")
	if !allowed {
		t.Fatal("expected evicted key-a to be treated as a fresh credential")
	}
}
