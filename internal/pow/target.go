// Package pow implements the object proof-of-work: the difficulty target,
// the trial value of a nonce, and a cancellable parallel nonce search.
package pow

import (
	"crypto/sha512"
	"encoding/binary"
	"math/big"
	"time"
)

const (
	DefaultTrialsPerByte = 1000
	DefaultExtraBytes    = 1000

	// MinTTL is the smallest time-to-live the target formula is evaluated
	// with, so objects about to expire are not made cheaper than this.
	MinTTL = 300 * time.Second

	nonceSize = 8
)

var two64 = new(big.Int).Lsh(big.NewInt(1), 64)

// Difficulty holds the per-byte work parameters.
type Difficulty struct {
	TrialsPerByte uint64
	ExtraBytes    uint64
}

// DefaultDifficulty is the network minimum.
func DefaultDifficulty() Difficulty {
	return Difficulty{TrialsPerByte: DefaultTrialsPerByte, ExtraBytes: DefaultExtraBytes}
}

// Target returns the largest acceptable trial value for an object whose
// serialized length (nonce included) is payloadLen and which lives for ttl.
//
//	target = 2^64 / (trials * (L + extra + ttl*(L + extra)/2^16))
func Target(payloadLen int, ttl time.Duration, d Difficulty) uint64 {
	if ttl < MinTTL {
		ttl = MinTTL
	}
	trials := d.TrialsPerByte
	if trials == 0 {
		trials = 1
	}
	length := new(big.Int).SetUint64(uint64(payloadLen))
	length.Add(length, new(big.Int).SetUint64(d.ExtraBytes))

	ageTerm := new(big.Int).Mul(big.NewInt(int64(ttl/time.Second)), length)
	ageTerm.Rsh(ageTerm, 16)

	denom := new(big.Int).Add(length, ageTerm)
	denom.Mul(denom, new(big.Int).SetUint64(trials))
	if denom.Sign() == 0 {
		return ^uint64(0)
	}
	q := new(big.Int).Quo(two64, denom)
	if !q.IsUint64() {
		return ^uint64(0)
	}
	return q.Uint64()
}

// InitialHash is SHA-512 over the object body (everything after the nonce).
func InitialHash(body []byte) [sha512.Size]byte {
	return sha512.Sum512(body)
}

// TrialValue is the leading eight bytes, big-endian, of
// SHA-512(SHA-512(nonce ‖ initialHash)).
func TrialValue(nonce uint64, initialHash [sha512.Size]byte) uint64 {
	var buf [nonceSize + sha512.Size]byte
	binary.BigEndian.PutUint64(buf[:nonceSize], nonce)
	copy(buf[nonceSize:], initialHash[:])
	first := sha512.Sum512(buf[:])
	second := sha512.Sum512(first[:])
	return binary.BigEndian.Uint64(second[:8])
}

// Check verifies the nonce carried in the first eight bytes of payload
// against the target for payload's length and ttl.
func Check(payload []byte, ttl time.Duration, d Difficulty) bool {
	if len(payload) < nonceSize {
		return false
	}
	nonce := binary.BigEndian.Uint64(payload[:nonceSize])
	trial := TrialValue(nonce, InitialHash(payload[nonceSize:]))
	return trial <= Target(len(payload), ttl, d)
}
