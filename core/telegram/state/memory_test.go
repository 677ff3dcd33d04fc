package state

import (
	"testing"
	"time"
)

const testState State = "test_step"

func TestMemoryManagerStateRoundTrip(t *testing.T) {
	mgr := NewMemoryManager()

	if got := mgr.GetState(1); got != StateIdle {
		t.Fatalf("expected idle state, got %q", got)
	}

	mgr.SetState(1, testState)
	if got := mgr.GetState(1); got != testState {
		t.Fatalf("expected %q, got %q", testState, got)
	}
	if !mgr.InProgress(1) {
		t.Fatal("expected user to be in progress")
	}

	mgr.SetTemp(1, "code", "123456")
	if v, ok := mgr.GetTemp(1, "code"); !ok || v != "123456" {
		t.Fatalf("temp value mismatch: %v %v", v, ok)
	}

	mgr.Clear(1)
	if mgr.InProgress(1) {
		t.Fatal("expected session to be cleared")
	}
}

func TestMemoryManagerTTLExpiresSessions(t *testing.T) {
	current := time.Unix(1000, 0)
	mgr := NewMemoryManagerTTL(300 * time.Second).(*memoryManager)
	mgr.now = func() time.Time { return current }

	mgr.SetState(7, testState)
	mgr.SetTemp(7, "code", "654321")

	current = current.Add(299 * time.Second)
	if got := mgr.GetState(7); got != testState {
		t.Fatalf("session expired too early, state %q", got)
	}

	// Reading the state refreshes nothing; only writes extend the deadline.
	current = current.Add(2 * time.Second)
	if got := mgr.GetState(7); got != StateIdle {
		t.Fatalf("expected idle after expiry, got %q", got)
	}
	if _, ok := mgr.GetTemp(7, "code"); ok {
		t.Fatal("expected temp data to be dropped with the session")
	}
	if mgr.InProgress(7) {
		t.Fatal("expected no active session after expiry")
	}
}

func TestMemoryManagerTTLWriteExtendsDeadline(t *testing.T) {
	current := time.Unix(2000, 0)
	mgr := NewMemoryManagerTTL(300 * time.Second).(*memoryManager)
	mgr.now = func() time.Time { return current }

	mgr.SetState(9, testState)
	current = current.Add(200 * time.Second)
	mgr.SetTemp(9, "code", "111111")

	current = current.Add(200 * time.Second)
	if got := mgr.GetState(9); got != testState {
		t.Fatalf("expected deadline to be extended by write, got %q", got)
	}
}
