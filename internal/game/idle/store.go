package idle

import "sync"

// ActivityStore is the keyed storage behind the registry. The memory
// implementation is the default; the interface exists so a sharded or
// externally-backed store can replace it without touching the
// scheduling logic.
type ActivityStore interface {
	Get(userID string) []*Activity
	Set(userID string, acts []*Activity)
	Delete(userID string)
}

type MemoryStore struct {
	mu sync.RWMutex
	m  map[string][]*Activity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string][]*Activity{}}
}

func (s *MemoryStore) Get(userID string) []*Activity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m[userID]
}

func (s *MemoryStore) Set(userID string, acts []*Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(acts) == 0 {
		delete(s.m, userID)
		return
	}
	s.m[userID] = acts
}

func (s *MemoryStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
