// Package boltstore is a storage.Store persisted in a bbolt file.
package boltstore

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"

	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

const (
	bObjects  = "objects"
	bByExpiry = "objects_by_expiry"
	bNodes    = "nodes"

	defaultTO = 2 * time.Second
)

// Store keeps objects keyed by inventory vector with a secondary
// expiry-ordered index, and known nodes keyed by ip:port.
type Store struct {
	db   *bolt.DB
	opts storage.Options
}

// Open opens (or creates) a BoltDB database at path.
func Open(path string, opts storage.Options) (*Store, error) {
	if path == "" {
		return nil, errors.New("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, opts: opts.WithDefaults()}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bObjects, bByExpiry, bNodes} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) GetNodes(streams wire.StreamSet) ([]wire.NetworkAddress, error) {
	var out []wire.NetworkAddress
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bNodes)).ForEach(func(_, v []byte) error {
			a, err := wire.DecodeNetworkAddress(v)
			if err != nil {
				// skip corrupt entries
				return nil
			}
			if streams == nil || wire.StreamsOverlap(a.Streams, streams) {
				out = append(out, a)
			}
			return nil
		})
	})
	slices.SortStableFunc(out, func(a, b wire.NetworkAddress) int {
		return cmp.Compare(b.Time, a.Time)
	})
	return out, err
}

func (s *Store) AddNodes(nodes []wire.NetworkAddress) (int, error) {
	var added int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bNodes))
		for _, a := range nodes {
			k := []byte(a.Key())
			if cur := b.Get(k); cur != nil {
				old, err := wire.DecodeNetworkAddress(cur)
				if err == nil && old.Time >= a.Time {
					continue
				}
			} else {
				added++
			}
			if err := b.Put(k, wire.AppendNetworkAddress(nil, a)); err != nil {
				return err
			}
		}
		return s.trimNodes(b)
	})
	return added, err
}

// trimNodes drops the oldest nodes beyond MaxNodes.
func (s *Store) trimNodes(b *bolt.Bucket) error {
	n := b.Stats().KeyN
	if n <= s.opts.MaxNodes {
		return nil
	}
	type entry struct {
		key  []byte
		time int64
	}
	all := make([]entry, 0, n)
	if err := b.ForEach(func(k, v []byte) error {
		a, err := wire.DecodeNetworkAddress(v)
		if err != nil {
			all = append(all, entry{key: slices.Clone(k)})
			return nil
		}
		all = append(all, entry{key: slices.Clone(k), time: a.Time})
		return nil
	}); err != nil {
		return err
	}
	slices.SortFunc(all, func(x, y entry) int {
		if c := cmp.Compare(x.time, y.time); c != 0 {
			return c
		}
		return bytes.Compare(x.key, y.key)
	})
	for _, e := range all[:len(all)-s.opts.MaxNodes] {
		if err := b.Delete(e.key); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) FilterNew(vectors []wire.InventoryVector) ([]wire.InventoryVector, error) {
	out := make([]wire.InventoryVector, 0, len(vectors))
	err := s.db.View(func(tx *bolt.Tx) error {
		objects := tx.Bucket([]byte(bObjects))
		for _, v := range vectors {
			if objects.Get(v[:]) == nil {
				out = append(out, v)
			}
		}
		return nil
	})
	return out, err
}

func (s *Store) PutObject(o storage.Object) (bool, error) {
	if err := s.opts.CheckExpiry(o.ExpiresTime); err != nil {
		return false, err
	}
	val, err := json.Marshal(o)
	if err != nil {
		return false, err
	}

	var inserted bool
	err = s.db.Update(func(tx *bolt.Tx) error {
		objects := tx.Bucket([]byte(bObjects))
		byExpiry := tx.Bucket([]byte(bByExpiry))

		if objects.Get(o.Vector[:]) != nil {
			return nil
		}
		if err := objects.Put(o.Vector[:], val); err != nil {
			return err
		}
		if err := byExpiry.Put(expiryKey(o.ExpiresTime, o.Vector), nil); err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *Store) GetObject(v wire.InventoryVector) (storage.Object, bool, error) {
	var (
		o  storage.Object
		ok bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket([]byte(bObjects)).Get(v[:])
		if raw == nil {
			return nil
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return o, ok, err
}

func (s *Store) Inventory(streams wire.StreamSet) ([]wire.InventoryVector, error) {
	now := s.opts.Now().Unix()
	var out []wire.InventoryVector
	err := s.db.View(func(tx *bolt.Tx) error {
		objects := tx.Bucket([]byte(bObjects))
		c := tx.Bucket([]byte(bByExpiry)).Cursor()
		// entries expiring at or before now are skipped
		for k, _ := c.Seek(expiryKey(now+1, wire.InventoryVector{})); k != nil; k, _ = c.Next() {
			_, v, ok := splitExpiryKey(k)
			if !ok {
				continue
			}
			if streams != nil {
				raw := objects.Get(v[:])
				if raw == nil {
					continue
				}
				var o storage.Object
				if err := json.Unmarshal(raw, &o); err != nil || !streams.Contains(o.Stream) {
					continue
				}
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

func (s *Store) Cleanup(now time.Time) (int, error) {
	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		objects := tx.Bucket([]byte(bObjects))
		byExpiry := tx.Bucket([]byte(bByExpiry))

		var stale [][]byte
		c := byExpiry.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			exp, _, ok := splitExpiryKey(k)
			if ok && exp > now.Unix() {
				break
			}
			stale = append(stale, slices.Clone(k))
		}
		for _, k := range stale {
			if _, v, ok := splitExpiryKey(k); ok {
				if err := objects.Delete(v[:]); err != nil {
					return err
				}
				removed++
			}
			if err := byExpiry.Delete(k); err != nil {
				return err
			}
		}

		nodes := tx.Bucket([]byte(bNodes))
		cutoff := now.Add(-s.opts.NodeMaxAge).Unix()
		var old [][]byte
		if err := nodes.ForEach(func(k, v []byte) error {
			a, err := wire.DecodeNetworkAddress(v)
			if err != nil || a.Time < cutoff {
				old = append(old, slices.Clone(k))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range old {
			if err := nodes.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return removed, err
}

// expiryKey orders by expiry time; the sign bit is flipped so negative
// times sort before positive ones.
func expiryKey(expires int64, v wire.InventoryVector) []byte {
	b := make([]byte, 8+wire.InventoryVectorSize)
	binary.BigEndian.PutUint64(b[:8], uint64(expires)^(1<<63))
	copy(b[8:], v[:])
	return b
}

func splitExpiryKey(k []byte) (int64, wire.InventoryVector, bool) {
	var v wire.InventoryVector
	if len(k) != 8+wire.InventoryVectorSize {
		return 0, v, false
	}
	copy(v[:], k[8:])
	return int64(binary.BigEndian.Uint64(k[:8]) ^ (1 << 63)), v, true
}

// Compile-time check that Store satisfies the interface.
var _ storage.Store = (*Store)(nil)
