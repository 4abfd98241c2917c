package session

import (
	"context"
	"testing"
	"time"
)

func TestManagerGetOrCreateReusesSession(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close()

	first, err := m.GetOrCreate("alpha")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	second, err := m.GetOrCreate("alpha")
	if err != nil {
		t.Fatalf("get or create again: %v", err)
	}
	if first != second {
		t.Fatalf("expected same session instance on repeated GetOrCreate")
	}
}

func TestManagerGetOrCreateRejectsEmptyID(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close()

	if _, err := m.GetOrCreate("   "); err != ErrInvalidSessionID {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestManagerDestroyRemovesSession(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close()

	if _, err := m.GetOrCreate("beta"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if err := m.Destroy("beta"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := m.Destroy("beta"); err == nil {
		t.Fatalf("expected error destroying already-destroyed session")
	}
}

func TestManagerListReturnsLiveSessions(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close()

	if _, err := m.GetOrCreate("s1"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if _, err := m.GetOrCreate("s2"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	ids := m.List()
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %v", len(ids), ids)
	}
}

func TestManagerExecuteSerializesAgainstSession(t *testing.T) {
	m, err := NewManager(4)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close()

	var observed int
	err = m.Execute(context.Background(), "gamma", func(s *Session) error {
		observed++
		return nil
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if observed != 1 {
		t.Fatalf("expected fn invoked once, got %d", observed)
	}
}

func TestManagerCapacityEviction(t *testing.T) {
	m, err := NewManager(1)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close()

	if _, err := m.GetOrCreate("one"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if _, err := m.GetOrCreate("two"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	ids := m.List()
	if len(ids) != 1 || ids[0] != "two" {
		t.Fatalf("expected only the most recent session to survive, got %v", ids)
	}
}

func TestManagerIdleSweep(t *testing.T) {
	m, err := NewManager(4, WithTTL(time.Millisecond))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	defer m.Close()

	if _, err := m.GetOrCreate("idle"); err != nil {
		t.Fatalf("get or create: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	m.sweepIdle()

	if len(m.List()) != 0 {
		t.Fatalf("expected idle session to be swept")
	}
}
