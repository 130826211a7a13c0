package pow

import (
	"crypto/rand"
	"crypto/sha512"
	"encoding/binary"
)

// Seed is an immutable pseudo-random state. Each draw returns the value and
// a fresh successor seed; the receiver is never modified.
type Seed [sha512.Size]byte

// NewSeed returns a seed from the system random source.
func NewSeed() (Seed, error) {
	var s Seed
	if _, err := rand.Read(s[:]); err != nil {
		return Seed{}, err
	}
	return s, nil
}

// Next returns a 64-bit value and the seed to use for the following draw.
func (s Seed) Next() (uint64, Seed) {
	out := sha512.Sum512(s[:])
	return binary.BigEndian.Uint64(out[:8]), Seed(sha512.Sum512(out[:]))
}
