package wire

import (
	"encoding/binary"
	"fmt"
)

// reader walks a payload with a sticky error so variant parsers can read
// field after field and check once at the end.
type reader struct {
	b   []byte
	off int
	err error
}

func newReader(b []byte) *reader { return &reader{b: b} }

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *reader) remaining() int {
	if r.err != nil {
		return 0
	}
	return len(r.b) - r.off
}

func (r *reader) take(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.remaining() < n {
		r.fail(fmt.Errorf("%w: %s needs %d bytes, have %d", ErrTruncated, what, n, r.remaining()))
		return nil
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out
}

func (r *reader) uint16(what string) uint16 {
	b := r.take(2, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) uint32(what string) uint32 {
	b := r.take(4, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (r *reader) uint64(what string) uint64 {
	b := r.take(8, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (r *reader) varInt(what string) uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := DecodeVarInt(r.b[r.off:])
	if err != nil {
		r.fail(fmt.Errorf("%s: %w", what, err))
		return 0
	}
	r.off += n
	return v
}

// count reads an element count and rejects it when it exceeds max or when
// the remaining bytes cannot hold count elements of at least minSize bytes.
func (r *reader) count(what string, max, minSize int) int {
	c := r.varInt(what)
	if r.err != nil {
		return 0
	}
	if max >= 0 && c > uint64(max) {
		r.fail(fmt.Errorf("%w: %s count %d > %d", ErrTooManyElements, what, c, max))
		return 0
	}
	if minSize > 0 && c > uint64(r.remaining()/minSize) {
		r.fail(fmt.Errorf("%w: %s count %d overruns payload", ErrTruncated, what, c))
		return 0
	}
	return int(c)
}

func (r *reader) varIntList(max int) []uint64 {
	n := r.count("varint list", max, 1)
	if r.err != nil {
		return nil
	}
	vals := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		vals = append(vals, r.varInt("varint list element"))
	}
	if r.err != nil {
		return nil
	}
	return vals
}

func (r *reader) varBytes(what string, max int) []byte {
	n := r.count(what, max, 1)
	b := r.take(n, what)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *reader) varString(what string, max int) string {
	return string(r.varBytes(what, max))
}

func (r *reader) rest() []byte {
	if r.err != nil {
		return nil
	}
	out := append([]byte(nil), r.b[r.off:]...)
	r.off = len(r.b)
	return out
}

// done reports the sticky error, or ErrTrailingBytes when input is left.
func (r *reader) done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.b) {
		return fmt.Errorf("%w: %d unread", ErrTrailingBytes, len(r.b)-r.off)
	}
	return nil
}

func appendVarBytes(dst, b []byte) []byte {
	dst = AppendVarInt(dst, uint64(len(b)))
	return append(dst, b...)
}
