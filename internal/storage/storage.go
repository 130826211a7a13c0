// Package storage defines the store shared by every connection of a node:
// known peers and the objects the node holds.
package storage

import (
	"errors"
	"fmt"
	"time"

	"bmnode/internal/wire"
)

var (
	ErrExpired    = errors.New("storage: object expired")
	ErrTTLTooLong = errors.New("storage: object expires too far in the future")
)

const (
	DefaultMaxObjectTTL = 28*24*time.Hour + 3*time.Hour
	DefaultNodeMaxAge   = 28 * 24 * time.Hour
	DefaultMaxNodes     = 20000
)

// Object is a stored, already verified object payload.
type Object struct {
	Vector      wire.InventoryVector
	Command     string
	Stream      uint64
	ExpiresTime int64
	Payload     []byte
}

// NewObject wraps the serialized payload of o.
func NewObject(o wire.Object) (Object, error) {
	payload, err := wire.Serialize(o)
	if err != nil {
		return Object{}, err
	}
	return Object{
		Vector:      wire.InventoryHash(payload),
		Command:     o.Command(),
		Stream:      o.StreamNumber(),
		ExpiresTime: o.Header().ExpiresTime,
		Payload:     payload,
	}, nil
}

// Options are shared by the store implementations.
type Options struct {
	MaxObjectTTL time.Duration
	NodeMaxAge   time.Duration
	MaxNodes     int

	// Now is the clock used for insert checks; nil means time.Now.
	Now func() time.Time
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.MaxObjectTTL <= 0 {
		o.MaxObjectTTL = DefaultMaxObjectTTL
	}
	if o.NodeMaxAge <= 0 {
		o.NodeMaxAge = DefaultNodeMaxAge
	}
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// CheckExpiry rejects objects that are already expired or that claim to
// live longer than MaxObjectTTL.
func (o Options) CheckExpiry(expires int64) error {
	now := o.Now()
	ttl := time.Unix(expires, 0).Sub(now)
	switch {
	case ttl <= 0:
		return fmt.Errorf("%w: %s ago", ErrExpired, -ttl)
	case ttl > o.MaxObjectTTL:
		return fmt.Errorf("%w: ttl %s", ErrTTLTooLong, ttl)
	}
	return nil
}

// Store is safe for concurrent use. FilterNew and PutObject are atomic with
// respect to each other, so two connections announcing the same object can
// never both insert it.
type Store interface {
	// Close releases underlying resources.
	Close() error

	// GetNodes returns known nodes serving at least one of streams, most
	// recently seen first. A nil set matches every node.
	GetNodes(streams wire.StreamSet) ([]wire.NetworkAddress, error)

	// AddNodes records nodes, keeping the newest Time per address. It
	// returns how many were previously unknown.
	AddNodes(nodes []wire.NetworkAddress) (int, error)

	// FilterNew returns, in order, every vector of the input not held by
	// the store. Repeated input vectors are repeated in the result.
	FilterNew(vectors []wire.InventoryVector) ([]wire.InventoryVector, error)

	// PutObject stores o if it is not already held.
	// Returns true if it was newly inserted.
	PutObject(o Object) (bool, error)

	// GetObject looks an object up by vector.
	GetObject(v wire.InventoryVector) (Object, bool, error)

	// Inventory lists the unexpired vectors in streams.
	Inventory(streams wire.StreamSet) ([]wire.InventoryVector, error)

	// Cleanup purges expired objects and stale nodes and reports how many
	// objects were removed.
	Cleanup(now time.Time) (int, error)
}
