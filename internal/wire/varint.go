package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	varIntMarker16 = 0xfd
	varIntMarker32 = 0xfe
	varIntMarker64 = 0xff

	// MaxVarIntSize is the longest VarInt encoding.
	MaxVarIntSize = 9
)

// VarIntSize returns the number of bytes EncodeVarInt uses for v.
func VarIntSize(v uint64) int {
	switch {
	case v < varIntMarker16:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// AppendVarInt appends the minimal encoding of v to dst.
func AppendVarInt(dst []byte, v uint64) []byte {
	switch {
	case v < varIntMarker16:
		return append(dst, byte(v))
	case v <= 0xffff:
		dst = append(dst, varIntMarker16)
		return binary.BigEndian.AppendUint16(dst, uint16(v))
	case v <= 0xffffffff:
		dst = append(dst, varIntMarker32)
		return binary.BigEndian.AppendUint32(dst, uint32(v))
	default:
		dst = append(dst, varIntMarker64)
		return binary.BigEndian.AppendUint64(dst, v)
	}
}

// EncodeVarInt returns the minimal encoding of v.
func EncodeVarInt(v uint64) []byte {
	return AppendVarInt(make([]byte, 0, VarIntSize(v)), v)
}

// EncodeVarIntSigned encodes the two's complement bit pattern of v.
// DecodeVarIntSigned reverses it exactly.
func EncodeVarIntSigned(v int64) []byte {
	return EncodeVarInt(uint64(v))
}

// DecodeVarInt decodes a VarInt from the front of b and reports how many
// bytes were consumed. Non-minimal encodings are accepted.
func DecodeVarInt(b []byte) (uint64, int, error) {
	if len(b) == 0 {
		return 0, 0, fmt.Errorf("%w: empty varint", ErrTruncated)
	}
	size := varIntBodySize(b[0])
	if size == 0 {
		return uint64(b[0]), 1, nil
	}
	if len(b) < 1+size {
		return 0, 0, fmt.Errorf("%w: varint needs %d bytes, have %d", ErrTruncated, 1+size, len(b))
	}
	return varIntBody(b[1 : 1+size]), 1 + size, nil
}

// DecodeVarIntSigned is DecodeVarInt reinterpreted as a signed value.
func DecodeVarIntSigned(b []byte) (int64, int, error) {
	v, n, err := DecodeVarInt(b)
	return int64(v), n, err
}

// ReadVarInt reads one VarInt from a stream.
func ReadVarInt(r io.Reader) (uint64, int, error) {
	var buf [MaxVarIntSize]byte
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		return 0, 0, err
	}
	size := varIntBodySize(buf[0])
	if size == 0 {
		return uint64(buf[0]), 1, nil
	}
	if _, err := io.ReadFull(r, buf[1:1+size]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return 0, 0, fmt.Errorf("%w: varint body", ErrTruncated)
		}
		return 0, 0, err
	}
	return varIntBody(buf[1 : 1+size]), 1 + size, nil
}

func varIntBodySize(marker byte) int {
	switch marker {
	case varIntMarker16:
		return 2
	case varIntMarker32:
		return 4
	case varIntMarker64:
		return 8
	default:
		return 0
	}
}

func varIntBody(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(binary.BigEndian.Uint16(b))
	case 4:
		return uint64(binary.BigEndian.Uint32(b))
	default:
		return binary.BigEndian.Uint64(b)
	}
}

// AppendVarIntList appends a VarInt count followed by each element.
func AppendVarIntList(dst []byte, vals []uint64) []byte {
	dst = AppendVarInt(dst, uint64(len(vals)))
	for _, v := range vals {
		dst = AppendVarInt(dst, v)
	}
	return dst
}

// DecodeVarIntList decodes a count-prefixed VarInt list. A count above max
// is rejected before any element is read.
func DecodeVarIntList(b []byte, max int) ([]uint64, int, error) {
	r := newReader(b)
	vals := r.varIntList(max)
	if r.err != nil {
		return nil, 0, r.err
	}
	return vals, r.off, nil
}
