package wire

import (
	"crypto/sha512"
	"encoding/hex"

	"golang.org/x/crypto/ripemd160"
)

const (
	InventoryVectorSize = 32
	RipeHashSize        = 20
	RawKeySize          = 64
)

// InventoryVector identifies an object on the network.
type InventoryVector [InventoryVectorSize]byte

func (v InventoryVector) String() string { return hex.EncodeToString(v[:]) }

// InventoryHash derives the inventory vector of a serialized object
// payload: the first 32 bytes of a double SHA-512.
func InventoryHash(payload []byte) InventoryVector {
	first := sha512.Sum512(payload)
	second := sha512.Sum512(first[:])
	var v InventoryVector
	copy(v[:], second[:InventoryVectorSize])
	return v
}

// RipeHash is the address hash of a signing/encryption key pair given as
// raw X||Y coordinates.
func RipeHash(signingKey, encryptionKey [RawKeySize]byte) [RipeHashSize]byte {
	buf := make([]byte, 0, 2*(RawKeySize+1))
	buf = append(buf, 0x04)
	buf = append(buf, signingKey[:]...)
	buf = append(buf, 0x04)
	buf = append(buf, encryptionKey[:]...)
	sha := sha512.Sum512(buf)

	h := ripemd160.New()
	h.Write(sha[:])
	var out [RipeHashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
