// Package ecies encrypts object bodies to a secp256k1 public key: an
// ephemeral ECDH exchange, SHA-512 key derivation, AES-256-CBC and an
// HMAC-SHA256 tag over iv ‖ ephemeral key ‖ ciphertext.
package ecies

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"

	"bmnode/internal/wire"
)

// ErrIntegrity means the tag did not verify, or the authenticated
// plaintext was not validly padded. No plaintext is returned with it.
var ErrIntegrity = errors.New("ecies: integrity check failed")

const keySize = 32

// deriveKeys splits SHA-512 of the shared X coordinate into the cipher key
// and the MAC key.
func deriveKeys(shared []byte) (encKey, macKey []byte) {
	h := sha512.Sum512(shared)
	return h[:keySize], h[keySize:]
}

func mac(key []byte, obj *wire.EncryptedObject) []byte {
	m := hmac.New(sha256.New, key)
	m.Write(obj.AuthenticatedData())
	return m.Sum(nil)
}

// Encrypt seals plaintext for pub using a fresh ephemeral key and IV.
func Encrypt(plaintext []byte, pub *btcec.PublicKey) (*wire.EncryptedObject, error) {
	return encrypt(rand.Reader, plaintext, pub)
}

func encrypt(rnd io.Reader, plaintext []byte, pub *btcec.PublicKey) (*wire.EncryptedObject, error) {
	if pub == nil {
		return nil, ErrInvalidPublicKey
	}
	var seed [privateKeySize]byte
	if _, err := io.ReadFull(rnd, seed[:]); err != nil {
		return nil, err
	}
	eph, _ := btcec.PrivKeyFromBytes(seed[:])
	if eph.Key.IsZero() {
		return nil, errors.New("ecies: zero ephemeral key")
	}

	obj := &wire.EncryptedObject{EphemeralPublicKey: MarshalPublicKey(eph.PubKey())}
	if _, err := io.ReadFull(rnd, obj.IV[:]); err != nil {
		return nil, err
	}

	encKey, macKey := deriveKeys(btcec.GenerateSharedSecret(eph, pub))
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	obj.Ciphertext = pkcs7Pad(plaintext, aes.BlockSize)
	cipher.NewCBCEncrypter(block, obj.IV[:]).CryptBlocks(obj.Ciphertext, obj.Ciphertext)

	copy(obj.MAC[:], mac(macKey, obj))
	return obj, nil
}

// Decrypt verifies the tag of obj under priv and only then decrypts it.
func Decrypt(obj *wire.EncryptedObject, priv *btcec.PrivateKey) ([]byte, error) {
	eph, err := ParsePublicKey(obj.EphemeralPublicKey[:])
	if err != nil {
		return nil, err
	}
	encKey, macKey := deriveKeys(btcec.GenerateSharedSecret(priv, eph))
	if !hmac.Equal(mac(macKey, obj), obj.MAC[:]) {
		return nil, ErrIntegrity
	}

	if len(obj.Ciphertext) == 0 || len(obj.Ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d", ErrIntegrity, len(obj.Ciphertext))
	}
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}
	pt := make([]byte, len(obj.Ciphertext))
	cipher.NewCBCDecrypter(block, obj.IV[:]).CryptBlocks(pt, obj.Ciphertext)
	return pkcs7Unpad(pt, aes.BlockSize)
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	out := make([]byte, len(b), len(b)+n)
	copy(out, b)
	return append(out, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty plaintext", ErrIntegrity)
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, fmt.Errorf("%w: bad padding", ErrIntegrity)
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, fmt.Errorf("%w: bad padding", ErrIntegrity)
		}
	}
	return b[:len(b)-n], nil
}
