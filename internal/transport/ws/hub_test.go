package ws

import (
	"log"
	"os"
	"testing"

	"idlerealm.gg/internal/protocol"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", log.LstdFlags)
}

func TestHub_SupersededSessionLosesOwnership(t *testing.T) {
	h := NewHub(testLogger())

	s1 := h.Attach("u1", 4)
	s2 := h.Attach("u1", 4)

	if _, ok := <-s1.out; ok {
		t.Fatalf("superseded queue should be closed")
	}
	if h.Detach(s1) {
		t.Fatalf("superseded session must not own the logout")
	}
	if !h.Detach(s2) {
		t.Fatalf("current session owns the logout")
	}
	if h.Detach(s2) {
		t.Fatalf("second detach must not claim ownership again")
	}
}

func TestHub_EmitRoutesByUser(t *testing.T) {
	h := NewHub(testLogger())

	s := h.Attach("u1", 4)
	h.Emit("u1", protocol.Event{"type": "farming-start"})
	h.Emit("ghost", protocol.Event{"type": "farming-start"})

	select {
	case b := <-s.out:
		if len(b) == 0 {
			t.Fatalf("empty frame")
		}
	default:
		t.Fatalf("no frame queued for u1")
	}
	select {
	case <-s.out:
		t.Fatalf("ghost event leaked into u1's queue")
	default:
	}
}

func TestHub_EmitDropsWhenQueueFull(t *testing.T) {
	h := NewHub(testLogger())

	s := h.Attach("u1", 1)
	h.Emit("u1", protocol.Event{"type": "first"})
	h.Emit("u1", protocol.Event{"type": "second"})

	if got := len(s.out); got != 1 {
		t.Fatalf("queued frames = %d, want 1", got)
	}
	if h.dropped.Load() != 1 {
		t.Fatalf("dropped = %d, want 1", h.dropped.Load())
	}
}

func TestHub_CloseAllKeepsOwnership(t *testing.T) {
	h := NewHub(testLogger())

	s := h.Attach("u1", 4)
	h.CloseAll()

	if _, ok := <-s.out; ok {
		t.Fatalf("queue should be closed")
	}
	// Emit after the kick must neither panic nor revive the queue.
	h.Emit("u1", protocol.Event{"type": "late"})

	if !h.Detach(s) {
		t.Fatalf("kicked session still owns its logout")
	}
}
