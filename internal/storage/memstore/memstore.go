// Package memstore is an in-memory storage.Store.
package memstore

import (
	"cmp"
	"slices"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

// Store keeps objects in a map and known nodes in a bounded LRU, so the
// least recently refreshed nodes fall out first.
type Store struct {
	opts storage.Options

	mu      sync.Mutex
	objects map[wire.InventoryVector]storage.Object
	nodes   *lru.Cache
}

// New returns an empty store.
func New(opts storage.Options) (*Store, error) {
	opts = opts.WithDefaults()
	nodes, err := lru.New(opts.MaxNodes)
	if err != nil {
		return nil, err
	}
	return &Store{
		opts:    opts,
		objects: make(map[wire.InventoryVector]storage.Object),
		nodes:   nodes,
	}, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) GetNodes(streams wire.StreamSet) ([]wire.NetworkAddress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := s.nodes.Keys()
	out := make([]wire.NetworkAddress, 0, len(keys))
	// Keys is oldest first; ties in Time keep the most recently added first
	for i := len(keys) - 1; i >= 0; i-- {
		v, ok := s.nodes.Peek(keys[i])
		if !ok {
			continue
		}
		a := v.(wire.NetworkAddress)
		if streams == nil || wire.StreamsOverlap(a.Streams, streams) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b wire.NetworkAddress) int {
		return cmp.Compare(b.Time, a.Time)
	})
	return out, nil
}

func (s *Store) AddNodes(nodes []wire.NetworkAddress) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	added := 0
	for _, a := range nodes {
		k := a.Key()
		if v, ok := s.nodes.Peek(k); ok {
			if v.(wire.NetworkAddress).Time >= a.Time {
				continue
			}
		} else {
			added++
		}
		s.nodes.Add(k, a)
	}
	return added, nil
}

func (s *Store) FilterNew(vectors []wire.InventoryVector) ([]wire.InventoryVector, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]wire.InventoryVector, 0, len(vectors))
	for _, v := range vectors {
		if _, ok := s.objects[v]; !ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) PutObject(o storage.Object) (bool, error) {
	if err := s.opts.CheckExpiry(o.ExpiresTime); err != nil {
		return false, err
	}
	o.Payload = slices.Clone(o.Payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[o.Vector]; ok {
		return false, nil
	}
	s.objects[o.Vector] = o
	return true, nil
}

func (s *Store) GetObject(v wire.InventoryVector) (storage.Object, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[v]
	return o, ok, nil
}

func (s *Store) Inventory(streams wire.StreamSet) ([]wire.InventoryVector, error) {
	now := s.opts.Now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]wire.InventoryVector, 0, len(s.objects))
	for v, o := range s.objects {
		if o.ExpiresTime <= now {
			continue
		}
		if streams == nil || streams.Contains(o.Stream) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *Store) Cleanup(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for v, o := range s.objects {
		if o.ExpiresTime <= now.Unix() {
			delete(s.objects, v)
			removed++
		}
	}

	cutoff := now.Add(-s.opts.NodeMaxAge).Unix()
	for _, k := range s.nodes.Keys() {
		if v, ok := s.nodes.Peek(k); ok && v.(wire.NetworkAddress).Time < cutoff {
			s.nodes.Remove(k)
		}
	}
	return removed, nil
}

var _ storage.Store = (*Store)(nil)
