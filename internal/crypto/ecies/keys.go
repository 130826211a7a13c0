package ecies

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"bmnode/internal/wire"
)

// ErrInvalidPublicKey is returned for points that are not on secp256k1 or
// are not in the tagged wire form.
var ErrInvalidPublicKey = errors.New("ecies: invalid public key")

const privateKeySize = 32

// GenerateKey returns a fresh secp256k1 key pair.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey()
}

// PrivateKeyHex encodes the scalar of k for config files.
func PrivateKeyHex(k *btcec.PrivateKey) string {
	return hex.EncodeToString(k.Serialize())
}

// ParsePrivateKeyHex parses a 32-byte hex scalar.
func ParsePrivateKeyHex(s string) (*btcec.PrivateKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != privateKeySize {
		return nil, fmt.Errorf("expected %d-byte private key, got %d", privateKeySize, len(b))
	}
	k, _ := btcec.PrivKeyFromBytes(b)
	return k, nil
}

// RawPublicKey returns X ‖ Y, the form carried in pubkey objects.
func RawPublicKey(pub *btcec.PublicKey) [wire.RawKeySize]byte {
	var out [wire.RawKeySize]byte
	// uncompressed is 0x04 ‖ X ‖ Y
	copy(out[:], pub.SerializeUncompressed()[1:])
	return out
}

// PublicKeyFromRaw parses X ‖ Y and checks the point is on the curve.
func PublicKeyFromRaw(raw [wire.RawKeySize]byte) (*btcec.PublicKey, error) {
	buf := make([]byte, 0, 1+wire.RawKeySize)
	buf = append(buf, 0x04)
	buf = append(buf, raw[:]...)
	pub, err := btcec.ParsePubKey(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// MarshalPublicKey returns the 70-byte tagged wire form of pub.
func MarshalPublicKey(pub *btcec.PublicKey) [wire.PublicKeySize]byte {
	raw := RawPublicKey(pub)
	var x, y [32]byte
	copy(x[:], raw[:32])
	copy(y[:], raw[32:])
	return wire.EncodePublicKey(x, y)
}

// ParsePublicKey is the inverse of MarshalPublicKey.
func ParsePublicKey(b []byte) (*btcec.PublicKey, error) {
	x, y, err := wire.SplitPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	var raw [wire.RawKeySize]byte
	copy(raw[:32], x[:])
	copy(raw[32:], y[:])
	return PublicKeyFromRaw(raw)
}
