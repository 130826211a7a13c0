package wire

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	NonceSize        = 8
	ObjectHeaderSize = NonceSize + 8

	// MaxSignatureLength bounds the pubkey signature field.
	MaxSignatureLength = 1000
)

// ObjectHeader leads every proof-of-work protected object.
type ObjectHeader struct {
	Nonce       uint64
	ExpiresTime int64
}

// Header returns a copy of the header.
func (h ObjectHeader) Header() ObjectHeader { return h }

// SetNonce stores the proof-of-work nonce.
func (h *ObjectHeader) SetNonce(nonce uint64) { h.Nonce = nonce }

// Expires returns the expiry as a time.
func (h ObjectHeader) Expires() time.Time { return time.Unix(h.ExpiresTime, 0) }

// TTL returns the time left until expiry, which may be negative.
func (h ObjectHeader) TTL(now time.Time) time.Duration {
	return h.Expires().Sub(now)
}

func appendObjectHeader(dst []byte, h ObjectHeader) []byte {
	dst = binary.BigEndian.AppendUint64(dst, h.Nonce)
	return binary.BigEndian.AppendUint64(dst, uint64(h.ExpiresTime))
}

func readObjectHeader(r *reader) ObjectHeader {
	return ObjectHeader{
		Nonce:       r.uint64("nonce"),
		ExpiresTime: int64(r.uint64("expires time")),
	}
}

// Object is a payload variant that is relayed, stored and protected by
// proof-of-work.
type Object interface {
	Payload
	Header() ObjectHeader
	SetNonce(nonce uint64)
	StreamNumber() uint64
}

// ObjectBody returns the serialized object without its leading nonce; this
// is what the proof-of-work commits to.
func ObjectBody(o Object) ([]byte, error) {
	b, err := Serialize(o)
	if err != nil {
		return nil, err
	}
	return b[NonceSize:], nil
}

// GetPubkey requests the public keys behind an address hash.
type GetPubkey struct {
	ObjectHeader
	AddressVersion uint64
	Stream         uint64
	RipeHash       [RipeHashSize]byte
}

func (g *GetPubkey) Command() string      { return CmdGetPubkey }
func (g *GetPubkey) StreamNumber() uint64 { return g.Stream }

func (g *GetPubkey) AppendWire(dst []byte) ([]byte, error) {
	dst = appendObjectHeader(dst, g.ObjectHeader)
	dst = AppendVarInt(dst, g.AddressVersion)
	dst = AppendVarInt(dst, g.Stream)
	return append(dst, g.RipeHash[:]...), nil
}

func parseGetPubkey(b []byte, _ Limits) (Payload, error) {
	r := newReader(b)
	g := &GetPubkey{
		ObjectHeader:   readObjectHeader(r),
		AddressVersion: r.varInt("address version"),
		Stream:         r.varInt("stream"),
	}
	copy(g.RipeHash[:], r.take(RipeHashSize, "ripe hash"))
	if err := r.done(); err != nil {
		return nil, err
	}
	return g, nil
}

// Pubkey publishes the keys of an address. Address versions from 3 on also
// carry the owner's difficulty demands and a signature.
type Pubkey struct {
	ObjectHeader
	AddressVersion     uint64
	Stream             uint64
	Behavior           uint32
	SigningKey         [RawKeySize]byte
	EncryptionKey      [RawKeySize]byte
	NonceTrialsPerByte uint64
	ExtraBytes         uint64
	Signature          []byte
}

func (p *Pubkey) Command() string      { return CmdPubkey }
func (p *Pubkey) StreamNumber() uint64 { return p.Stream }

// RipeHash returns the address hash of the published keys.
func (p *Pubkey) RipeHash() [RipeHashSize]byte {
	return RipeHash(p.SigningKey, p.EncryptionKey)
}

func (p *Pubkey) AppendWire(dst []byte) ([]byte, error) {
	if len(p.Signature) > MaxSignatureLength {
		return nil, fmt.Errorf("signature of %d bytes: %w", len(p.Signature), ErrInvalidField)
	}
	dst = appendObjectHeader(dst, p.ObjectHeader)
	dst = AppendVarInt(dst, p.AddressVersion)
	dst = AppendVarInt(dst, p.Stream)
	dst = binary.BigEndian.AppendUint32(dst, p.Behavior)
	dst = append(dst, p.SigningKey[:]...)
	dst = append(dst, p.EncryptionKey[:]...)
	if p.AddressVersion >= 3 {
		dst = AppendVarInt(dst, p.NonceTrialsPerByte)
		dst = AppendVarInt(dst, p.ExtraBytes)
		dst = appendVarBytes(dst, p.Signature)
	}
	return dst, nil
}

func parsePubkey(b []byte, _ Limits) (Payload, error) {
	r := newReader(b)
	p := &Pubkey{
		ObjectHeader:   readObjectHeader(r),
		AddressVersion: r.varInt("address version"),
		Stream:         r.varInt("stream"),
		Behavior:       r.uint32("behavior"),
	}
	copy(p.SigningKey[:], r.take(RawKeySize, "signing key"))
	copy(p.EncryptionKey[:], r.take(RawKeySize, "encryption key"))
	if p.AddressVersion >= 3 {
		p.NonceTrialsPerByte = r.varInt("nonce trials per byte")
		p.ExtraBytes = r.varInt("extra bytes")
		p.Signature = r.varBytes("signature", MaxSignatureLength)
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return p, nil
}

// Msg is a person-to-person message encrypted to the recipient's key.
type Msg struct {
	ObjectHeader
	Stream    uint64
	Encrypted EncryptedObject
}

func (m *Msg) Command() string      { return CmdMsg }
func (m *Msg) StreamNumber() uint64 { return m.Stream }

func (m *Msg) AppendWire(dst []byte) ([]byte, error) {
	dst = appendObjectHeader(dst, m.ObjectHeader)
	dst = AppendVarInt(dst, m.Stream)
	return m.Encrypted.AppendWire(dst)
}

func parseMsg(b []byte, _ Limits) (Payload, error) {
	r := newReader(b)
	m := &Msg{
		ObjectHeader: readObjectHeader(r),
		Stream:       r.varInt("stream"),
	}
	if r.err != nil {
		return nil, r.err
	}
	enc, err := ParseEncryptedObject(r.rest())
	if err != nil {
		return nil, err
	}
	m.Encrypted = *enc
	return m, nil
}

// Broadcast is a one-to-many message encrypted to a key derived from the
// sender's address.
type Broadcast struct {
	ObjectHeader
	BroadcastVersion uint64
	Stream           uint64
	Encrypted        EncryptedObject
}

func (b *Broadcast) Command() string      { return CmdBroadcast }
func (b *Broadcast) StreamNumber() uint64 { return b.Stream }

func (b *Broadcast) AppendWire(dst []byte) ([]byte, error) {
	dst = appendObjectHeader(dst, b.ObjectHeader)
	dst = AppendVarInt(dst, b.BroadcastVersion)
	dst = AppendVarInt(dst, b.Stream)
	return b.Encrypted.AppendWire(dst)
}

func parseBroadcast(raw []byte, _ Limits) (Payload, error) {
	r := newReader(raw)
	b := &Broadcast{
		ObjectHeader:     readObjectHeader(r),
		BroadcastVersion: r.varInt("broadcast version"),
		Stream:           r.varInt("stream"),
	}
	if r.err != nil {
		return nil, r.err
	}
	enc, err := ParseEncryptedObject(r.rest())
	if err != nil {
		return nil, err
	}
	b.Encrypted = *enc
	return b, nil
}
