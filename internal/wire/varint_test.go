package wire

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVarIntMinimalForms(t *testing.T) {
	cases := []struct {
		v    uint64
		want []byte
	}{
		{0, []byte{0x00}},
		{0xfc, []byte{0xfc}},
		{0xfd, []byte{0xfd, 0x00, 0xfd}},
		{0xffff, []byte{0xfd, 0xff, 0xff}},
		{0x10000, []byte{0xfe, 0x00, 0x01, 0x00, 0x00}},
		{0xffffffff, []byte{0xfe, 0xff, 0xff, 0xff, 0xff}},
		{0x100000000, []byte{0xff, 0, 0, 0, 1, 0, 0, 0, 0}},
		{math.MaxUint64, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}},
	}
	for _, tc := range cases {
		got := EncodeVarInt(tc.v)
		require.Equal(t, tc.want, got, "encode %#x", tc.v)
		require.Equal(t, len(tc.want), VarIntSize(tc.v))

		v, n, err := DecodeVarInt(got)
		require.NoError(t, err)
		require.Equal(t, tc.v, v)
		require.Equal(t, len(got), n)
	}
}

func TestVarIntSignedBitPattern(t *testing.T) {
	for _, v := range []int64{-1, math.MinInt64, math.MaxInt64, -253, 0, 42} {
		enc := EncodeVarIntSigned(v)
		got, n, err := DecodeVarIntSigned(enc)
		require.NoError(t, err)
		require.Equal(t, v, got)
		require.Equal(t, len(enc), n)
	}
	require.Len(t, EncodeVarIntSigned(-1), 9)
}

func TestVarIntAcceptsNonMinimal(t *testing.T) {
	v, n, err := DecodeVarInt([]byte{0xfe, 0, 0, 0, 5, 0xaa})
	require.NoError(t, err)
	require.Equal(t, uint64(5), v)
	require.Equal(t, 5, n)
}

func TestVarIntTruncated(t *testing.T) {
	for _, b := range [][]byte{
		{},
		{0xfd, 0x01},
		{0xfe, 0, 0, 1},
		{0xff, 0, 0, 0, 0, 0, 0, 1},
	} {
		_, _, err := DecodeVarInt(b)
		require.ErrorIs(t, err, ErrTruncated, "input %x", b)
		require.ErrorIs(t, err, ErrMalformed)
	}

	_, _, err := ReadVarInt(bytes.NewReader([]byte{0xfe, 0, 0}))
	require.ErrorIs(t, err, ErrTruncated)
}

func TestReadVarIntStream(t *testing.T) {
	r := bytes.NewReader(append(EncodeVarInt(70000), 0x07))
	v, n, err := ReadVarInt(r)
	require.NoError(t, err)
	require.Equal(t, uint64(70000), v)
	require.Equal(t, 5, n)

	v, n, err = ReadVarInt(r)
	require.NoError(t, err)
	require.Equal(t, uint64(7), v)
	require.Equal(t, 1, n)
}

func TestVarIntList(t *testing.T) {
	vals := []uint64{1, 0xfd, 0x1_0000_0000, 0}
	enc := AppendVarIntList(nil, vals)

	got, n, err := DecodeVarIntList(enc, 10)
	require.NoError(t, err)
	require.Equal(t, vals, got)
	require.Equal(t, len(enc), n)

	_, _, err = DecodeVarIntList(enc, 3)
	require.ErrorIs(t, err, ErrTooManyElements)

	// count claims more elements than bytes remain
	_, _, err = DecodeVarIntList([]byte{0x05, 0x01, 0x02}, 100)
	require.ErrorIs(t, err, ErrTruncated)
}
