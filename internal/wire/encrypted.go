package wire

import (
	"encoding/binary"
	"fmt"
)

const (
	IVSize  = 16
	MACSize = 32

	// CurveSecp256k1 tags an EC point in its wire form.
	CurveSecp256k1 uint16 = 0x02ca

	coordSize = 32

	// PublicKeySize is curve(2) ‖ len(2) ‖ X ‖ len(2) ‖ Y.
	PublicKeySize = 2 + 2 + coordSize + 2 + coordSize

	minEncryptedSize = IVSize + PublicKeySize + MACSize
)

// EncryptedObject is the ECIES envelope around an object body.
type EncryptedObject struct {
	IV                 [IVSize]byte
	EphemeralPublicKey [PublicKeySize]byte
	Ciphertext         []byte
	MAC                [MACSize]byte
}

func (e *EncryptedObject) Command() string { return CmdEncrypted }

func (e *EncryptedObject) AppendWire(dst []byte) ([]byte, error) {
	dst = append(dst, e.IV[:]...)
	dst = append(dst, e.EphemeralPublicKey[:]...)
	dst = append(dst, e.Ciphertext...)
	return append(dst, e.MAC[:]...), nil
}

// AuthenticatedData returns iv ‖ ephemeral key ‖ ciphertext, the bytes
// covered by the MAC.
func (e *EncryptedObject) AuthenticatedData() []byte {
	out := make([]byte, 0, IVSize+PublicKeySize+len(e.Ciphertext))
	out = append(out, e.IV[:]...)
	out = append(out, e.EphemeralPublicKey[:]...)
	return append(out, e.Ciphertext...)
}

// ParseEncryptedObject splits b into its fixed-size parts; the ciphertext
// is whatever lies between the public key and the trailing MAC.
func ParseEncryptedObject(b []byte) (*EncryptedObject, error) {
	if len(b) < minEncryptedSize {
		return nil, fmt.Errorf("%w: encrypted object of %d bytes", ErrTruncated, len(b))
	}
	e := &EncryptedObject{}
	copy(e.IV[:], b[:IVSize])
	copy(e.EphemeralPublicKey[:], b[IVSize:IVSize+PublicKeySize])
	if _, _, err := SplitPublicKey(e.EphemeralPublicKey[:]); err != nil {
		return nil, err
	}
	e.Ciphertext = append([]byte(nil), b[IVSize+PublicKeySize:len(b)-MACSize]...)
	copy(e.MAC[:], b[len(b)-MACSize:])
	return e, nil
}

// EncodePublicKey lays out X and Y in the tagged wire form.
func EncodePublicKey(x, y [coordSize]byte) [PublicKeySize]byte {
	var out [PublicKeySize]byte
	binary.BigEndian.PutUint16(out[0:2], CurveSecp256k1)
	binary.BigEndian.PutUint16(out[2:4], coordSize)
	copy(out[4:36], x[:])
	binary.BigEndian.PutUint16(out[36:38], coordSize)
	copy(out[38:70], y[:])
	return out
}

// SplitPublicKey checks the curve tag and coordinate lengths and returns
// X and Y.
func SplitPublicKey(b []byte) (x, y [coordSize]byte, err error) {
	if len(b) != PublicKeySize {
		return x, y, fmt.Errorf("%w: public key of %d bytes", ErrInvalidField, len(b))
	}
	if curve := binary.BigEndian.Uint16(b[0:2]); curve != CurveSecp256k1 {
		return x, y, fmt.Errorf("%w: curve 0x%04x", ErrInvalidField, curve)
	}
	if binary.BigEndian.Uint16(b[2:4]) != coordSize || binary.BigEndian.Uint16(b[36:38]) != coordSize {
		return x, y, fmt.Errorf("%w: coordinate length", ErrInvalidField)
	}
	copy(x[:], b[4:36])
	copy(y[:], b[38:70])
	return x, y, nil
}
