package p2p

import (
	"sync"
	"time"
)

// requestTTL is how long a getdata for a vector blocks requesting the same
// vector from another peer.
const requestTTL = time.Minute

type seenCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]time.Time
}

func newSeenCache(ttl time.Duration) *seenCache {
	return &seenCache{
		ttl:   ttl,
		items: make(map[string]time.Time),
	}
}

// Seen returns true if id was seen recently. If not, it records it and returns false.
func (s *seenCache) Seen(id string) bool {
	if id == "" {
		return true
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.items[id]; ok && now.Sub(t) <= s.ttl {
		return true
	}
	s.items[id] = now
	return false
}

// Forget drops id so the next Seen reports it as new.
func (s *seenCache) Forget(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// gc drops expired entries.
func (s *seenCache) gc() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, t := range s.items {
		if now.Sub(t) > s.ttl {
			delete(s.items, k)
		}
	}
}
