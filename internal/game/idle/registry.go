package idle

import (
	"log"
	"sync"

	"idlerealm.gg/internal/observability"
)

// Registry owns the authoritative per-user activity lists and their
// timer tokens. Its mutex makes every structural change (register,
// remove, logout snapshot) atomic with respect to both user commands
// and scheduler callbacks.
type Registry struct {
	mu     sync.Mutex
	store  ActivityStore
	sched  *Scheduler
	bridge Bridge
	cap    int
	logger *log.Logger
	nowMs  func() int64
}

func NewRegistry(store ActivityStore, sched *Scheduler, bridge Bridge, cap int, logger *log.Logger, nowMs func() int64) *Registry {
	return &Registry{
		store:  store,
		sched:  sched,
		bridge: bridge,
		cap:    cap,
		logger: logger,
		nowMs:  nowMs,
	}
}

// Register appends the activity, evicting the oldest entries first
// when the user is at capacity (cancel plus stop callback, once each).
// The repeating timer is armed before the record is published, so the
// stored record always carries its own token.
func (r *Registry) Register(a *Activity, fire func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.store.Get(a.UserID)
	for len(list) >= r.cap {
		old := list[0]
		list = list[1:]
		old.token.Cancel()
		r.runStop(old)
		observability.ActivityUnregistered()
		r.logger.Printf("[idle] %s: evicted %s %s at capacity", a.UserID, old.Kind, old.Key())
	}

	a.token = r.sched.ScheduleRepeatingAt(a.StartMs+a.DurationMs, a.DurationMs, fire)
	list = append(list, a)
	r.store.Set(a.UserID, list)
	observability.ActivityRegistered()
}

// Remove cancels and stop-calls every activity of the kind matching m,
// returning how many were removed.
func (r *Registry) Remove(userID string, kind Kind, m Matcher) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.store.Get(userID)
	kept := make([]*Activity, 0, len(list))
	removed := 0
	for _, a := range list {
		if a.Kind == kind && m(a) {
			a.token.Cancel()
			r.runStop(a)
			observability.ActivityUnregistered()
			removed++
			continue
		}
		kept = append(kept, a)
	}
	if removed > 0 {
		r.store.Set(userID, kept)
	}
	return removed
}

// RemoveActivity tears down one specific record, for callback failure
// paths that hold the *Activity itself.
func (r *Registry) RemoveActivity(a *Activity) bool {
	return r.Remove(a.UserID, a.Kind, matchIdentity(a)) > 0
}

// SnapshotAndClearForLogout stamps every activity with the logout
// timestamp, hands the records to the persistence bridge, cancels the
// timers and clears the user's entry. Stop callbacks do not run: the
// activities are suspended, not stopped. Calling it with no activities
// is a no-op.
func (r *Registry) SnapshotAndClearForLogout(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.store.Get(userID)
	if len(list) == 0 {
		r.store.Delete(userID)
		return 0
	}

	now := r.nowMs()
	recs := make([]RecordV1, 0, len(list))
	for _, a := range list {
		a.token.Cancel()
		a.LogoutMs = now
		observability.ActivityUnregistered()
		rec, err := a.Record()
		if err != nil {
			r.logger.Printf("[idle] %s: snapshot %s: %v", userID, a.Kind, err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := r.bridge.Store(userID, recs); err != nil {
		r.logger.Printf("[idle] %s: persist %d activities: %v", userID, len(recs), err)
	}
	r.store.Delete(userID)
	return len(recs)
}

// Count reports the user's live activity total.
func (r *Registry) Count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.store.Get(userID))
}

// Info is a read-only view of one registered activity.
type Info struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	Key        string `json:"key,omitempty"`
	StartMs    int64  `json:"start_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// List snapshots the user's activities for read-only surfaces.
func (r *Registry) List(userID string) []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.store.Get(userID)
	out := make([]Info, 0, len(list))
	for _, a := range list {
		out = append(out, Info{
			ID:         a.ID.String(),
			Kind:       a.Kind,
			Key:        a.Key(),
			StartMs:    a.StartMs,
			DurationMs: a.DurationMs,
		})
	}
	return out
}

func (r *Registry) runStop(a *Activity) {
	if a.OnStop == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("[idle] %s: stop callback panic: %v", a.UserID, rec)
		}
	}()
	a.OnStop()
}
