package ws

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"sync/atomic"

	"idlerealm.gg/internal/game/idle"
	"idlerealm.gg/internal/protocol"
)

var _ idle.Notifier = (*Hub)(nil)

// Hub routes server-push events to the one connection a user currently
// holds. A reconnect supersedes the previous session; delivery is
// best-effort and a slow consumer loses events rather than stalling
// the engine.
type Hub struct {
	logger *log.Logger

	mu    sync.RWMutex
	seq   uint64
	conns map[string]*session

	dropped atomic.Int64
}

// session is one connection's outbound queue. closed is guarded by the
// hub mutex and flips before out closes, so senders holding the read
// lock never hit a closed channel.
type session struct {
	userID string
	seq    uint64
	out    chan []byte
	closed bool
}

func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger: logger,
		conns:  map[string]*session{},
	}
}

// Attach registers a fresh session for the user, kicking any previous
// one. The superseded session's queue closes so its writer unwinds and
// closes the old connection.
func (h *Hub) Attach(userID string, queueSize int) *session {
	if queueSize <= 0 {
		queueSize = 1
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	s := &session{userID: userID, seq: h.seq, out: make(chan []byte, queueSize)}
	if old, ok := h.conns[userID]; ok {
		h.closeSessionLocked(old)
	}
	h.conns[userID] = s
	return s
}

// Detach removes the session if it is still the user's current one and
// reports whether the caller owns the logout. A superseded session
// returns false: the replacement connection carries the user now.
func (h *Hub) Detach(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.conns[s.userID]
	if !ok || cur.seq != s.seq {
		return false
	}
	h.closeSessionLocked(cur)
	delete(h.conns, s.userID)
	return true
}

// Users lists the ids with an open session, sorted.
func (h *Hub) Users() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.conns))
	for id, s := range h.conns {
		if !s.closed {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// CloseAll kicks every connection. Sessions stay registered so each
// handler still claims its own logout through Detach.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.conns {
		h.closeSessionLocked(s)
	}
}

func (h *Hub) closeSessionLocked(s *session) {
	if !s.closed {
		s.closed = true
		close(s.out)
	}
}

// Emit implements idle.Notifier. Events for users with no connection
// vanish; reconciliation already journals what mattered.
func (h *Hub) Emit(userID string, ev protocol.Event) {
	b, err := json.Marshal(protocol.EventMsg{Type: protocol.TypeEvent, Event: ev})
	if err != nil {
		if h.logger != nil {
			h.logger.Printf("[ws] %s: marshal event: %v", userID, err)
		}
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.conns[userID]
	if !ok {
		return
	}
	h.sendLocked(s, b)
}

// send queues an already-marshaled frame on a known session.
func (h *Hub) send(s *session, b []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.sendLocked(s, b)
}

func (h *Hub) sendLocked(s *session, b []byte) {
	if s.closed {
		return
	}
	select {
	case s.out <- b:
	default:
		if n := h.dropped.Add(1); h.logger != nil && (n == 1 || n%128 == 0) {
			h.logger.Printf("[ws] %s: outbound queue full, frames dropped: %d", s.userID, n)
		}
	}
}
