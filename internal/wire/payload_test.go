package wire

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func testEncrypted() EncryptedObject {
	var x, y [32]byte
	x[0], y[31] = 1, 2
	e := EncryptedObject{
		EphemeralPublicKey: EncodePublicKey(x, y),
		Ciphertext:         bytes.Repeat([]byte{0x5a}, 32),
	}
	e.IV[0] = 9
	e.MAC[31] = 7
	return e
}

func roundTrip(t *testing.T, reg *Registry, p Payload) Payload {
	t.Helper()
	b, err := Serialize(p)
	require.NoError(t, err)
	got, err := reg.Parse(p.Command(), b)
	require.NoError(t, err)
	again, err := Serialize(got)
	require.NoError(t, err)
	require.Equal(t, b, again, "serialize(parse(b)) != b for %s", p.Command())
	return got
}

func TestRegistryVariants(t *testing.T) {
	reg := NewRegistry(DefaultLimits())

	v := roundTrip(t, reg, &Version{
		ProtocolVersion: 3,
		Services:        ServiceNetwork,
		Timestamp:       1700000000,
		AddrFrom:        ServiceAddr{Services: 1, Port: 8444},
		Nonce:           0xdeadbeef,
		UserAgent:       "/bmnode:0.1.0/",
		Streams:         NewStreamSet(1, 2),
	}).(*Version)
	require.Equal(t, []uint64{1, 2}, SortedStreams(v.Streams))
	require.Equal(t, uint16(8444), v.AddrFrom.Port)

	na := NewNetworkAddress(netip.MustParseAddrPort("10.0.0.1:8444"), ServiceNetwork, 1, 3)
	a := roundTrip(t, reg, &Addr{Addresses: []NetworkAddress{na}}).(*Addr)
	require.Len(t, a.Addresses, 1)
	require.Equal(t, "10.0.0.1:8444", a.Addresses[0].Key())
	require.True(t, a.Addresses[0].Streams.Equal(na.Streams))

	inv := roundTrip(t, reg, &Inv{Vectors: []InventoryVector{{1}, {2}}}).(*Inv)
	require.Len(t, inv.Vectors, 2)
	roundTrip(t, reg, &GetData{Vectors: []InventoryVector{{3}}})
	roundTrip(t, reg, &Verack{})
	roundTrip(t, reg, &Ping{})

	pk := &Pubkey{
		ObjectHeader:       ObjectHeader{Nonce: 5, ExpiresTime: 1700000100},
		AddressVersion:     4,
		Stream:             1,
		Behavior:           1,
		NonceTrialsPerByte: 1000,
		ExtraBytes:         1000,
		Signature:          []byte{1, 2, 3},
	}
	pk.SigningKey[0] = 0xaa
	gotPk := roundTrip(t, reg, pk).(*Pubkey)
	require.Equal(t, pk.Signature, gotPk.Signature)
	require.Equal(t, pk.RipeHash(), gotPk.RipeHash())

	legacy := roundTrip(t, reg, &Pubkey{AddressVersion: 2, Stream: 1}).(*Pubkey)
	require.Nil(t, legacy.Signature)

	m := roundTrip(t, reg, &Msg{ObjectHeader: ObjectHeader{ExpiresTime: 10}, Stream: 1, Encrypted: testEncrypted()}).(*Msg)
	require.Equal(t, testEncrypted().Ciphertext, m.Encrypted.Ciphertext)

	bc := roundTrip(t, reg, &Broadcast{BroadcastVersion: 4, Stream: 2, Encrypted: testEncrypted()}).(*Broadcast)
	require.Equal(t, uint64(2), bc.StreamNumber())

	enc := testEncrypted()
	roundTrip(t, reg, &enc)
}

func TestRegistryRejectsUnknownCommand(t *testing.T) {
	_, err := NewRegistry(DefaultLimits()).Parse("nosuch", nil)
	require.ErrorIs(t, err, ErrUnknownCommand)
	require.ErrorIs(t, err, ErrMalformed)
}

func TestRegistryListBounds(t *testing.T) {
	lim := DefaultLimits()
	lim.MaxInventoryLength = 2
	lim.MaxAddrLength = 1
	reg := NewRegistry(lim)

	b, err := Serialize(&Inv{Vectors: make([]InventoryVector, 3)})
	require.NoError(t, err)
	_, err = reg.Parse(CmdInv, b)
	require.ErrorIs(t, err, ErrTooManyElements)

	na := NewNetworkAddress(netip.MustParseAddrPort("127.0.0.1:1"), 0, 1)
	b, err = Serialize(&Addr{Addresses: []NetworkAddress{na, na}})
	require.NoError(t, err)
	_, err = reg.Parse(CmdAddr, b)
	require.ErrorIs(t, err, ErrTooManyElements)

	// a count of two with a single vector's worth of bytes
	short := append(EncodeVarInt(2), make([]byte, InventoryVectorSize)...)
	_, err = reg.Parse(CmdGetData, short)
	require.ErrorIs(t, err, ErrTruncated)
}

func TestRegistryStructuralErrors(t *testing.T) {
	reg := NewRegistry(DefaultLimits())

	b, err := Serialize(&GetPubkey{AddressVersion: 4, Stream: 1})
	require.NoError(t, err)

	_, err = reg.Parse(CmdGetPubkey, b[:len(b)-1])
	require.ErrorIs(t, err, ErrTruncated)
	_, err = reg.Parse(CmdGetPubkey, append(b, 0))
	require.ErrorIs(t, err, ErrTrailingBytes)
	_, err = reg.Parse(CmdVerack, []byte{0})
	require.ErrorIs(t, err, ErrTrailingBytes)

	// varint marker promising more bytes than the payload holds
	_, err = reg.Parse(CmdGetPubkey, append(make([]byte, ObjectHeaderSize), 0xff, 0x01))
	require.ErrorIs(t, err, ErrTruncated)

	_, err = reg.Parse(CmdMsg, append(make([]byte, ObjectHeaderSize), 0x01, 0x02))
	require.ErrorIs(t, err, ErrTruncated)

	enc := testEncrypted()
	raw, err := Serialize(&enc)
	require.NoError(t, err)
	raw[IVSize] = 0x00 // curve tag
	_, err = reg.Parse(CmdEncrypted, raw)
	require.ErrorIs(t, err, ErrInvalidField)
}

type noteVariant struct{ Text string }

func (n *noteVariant) Command() string { return "note" }

func (n *noteVariant) AppendWire(dst []byte) ([]byte, error) {
	return appendVarBytes(dst, []byte(n.Text)), nil
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry(DefaultLimits())
	err := reg.Register("note", func(b []byte, _ Limits) (Payload, error) {
		r := newReader(b)
		n := &noteVariant{Text: r.varString("text", 64)}
		return n, r.done()
	})
	require.NoError(t, err)
	require.Contains(t, reg.Commands(), "note")

	got := roundTrip(t, reg, &noteVariant{Text: "hi"}).(*noteVariant)
	require.Equal(t, "hi", got.Text)

	require.ErrorIs(t, reg.Register("note", nil), ErrDuplicateCommand)
	require.ErrorIs(t, reg.Register("", nil), ErrBadCommand)
}

func TestObjectBodyAndInventoryHash(t *testing.T) {
	g := &GetPubkey{ObjectHeader: ObjectHeader{Nonce: 1, ExpiresTime: 99}, AddressVersion: 4, Stream: 1}
	full, err := Serialize(g)
	require.NoError(t, err)
	body, err := ObjectBody(g)
	require.NoError(t, err)
	require.Equal(t, full[NonceSize:], body)

	v1 := InventoryHash(full)
	g.SetNonce(2)
	full2, err := Serialize(g)
	require.NoError(t, err)
	require.NotEqual(t, v1, InventoryHash(full2))
}
