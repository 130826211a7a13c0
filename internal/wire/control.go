package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxUserAgentLength bounds the user agent string in version.
const MaxUserAgentLength = 5000

// Version opens the handshake.
type Version struct {
	ProtocolVersion uint32
	Services        uint64
	Timestamp       int64
	AddrRecv        ServiceAddr
	AddrFrom        ServiceAddr
	Nonce           uint64
	UserAgent       string
	Streams         StreamSet
}

func (v *Version) Command() string { return CmdVersion }

func (v *Version) AppendWire(dst []byte) ([]byte, error) {
	if len(v.UserAgent) > MaxUserAgentLength {
		return nil, fmt.Errorf("user agent of %d bytes: %w", len(v.UserAgent), ErrInvalidField)
	}
	dst = binary.BigEndian.AppendUint32(dst, v.ProtocolVersion)
	dst = binary.BigEndian.AppendUint64(dst, v.Services)
	dst = binary.BigEndian.AppendUint64(dst, uint64(v.Timestamp))
	dst = appendServiceAddr(dst, v.AddrRecv)
	dst = appendServiceAddr(dst, v.AddrFrom)
	dst = binary.BigEndian.AppendUint64(dst, v.Nonce)
	dst = appendVarBytes(dst, []byte(v.UserAgent))
	return AppendVarIntList(dst, SortedStreams(v.Streams)), nil
}

func parseVersion(b []byte, _ Limits) (Payload, error) {
	r := newReader(b)
	v := &Version{
		ProtocolVersion: r.uint32("protocol version"),
		Services:        r.uint64("services"),
		Timestamp:       int64(r.uint64("timestamp")),
		AddrRecv:        readServiceAddr(r),
		AddrFrom:        readServiceAddr(r),
		Nonce:           r.uint64("nonce"),
		UserAgent:       r.varString("user agent", MaxUserAgentLength),
	}
	v.Streams = NewStreamSet(r.varIntList(MaxStreamsPerList)...)
	if err := r.done(); err != nil {
		return nil, err
	}
	return v, nil
}

// Verack acknowledges a version.
type Verack struct{}

func (*Verack) Command() string                       { return CmdVerack }
func (*Verack) AppendWire(dst []byte) ([]byte, error) { return dst, nil }

// Ping is sent on otherwise idle connections.
type Ping struct{}

func (*Ping) Command() string                       { return CmdPing }
func (*Ping) AppendWire(dst []byte) ([]byte, error) { return dst, nil }

// Pong answers a Ping.
type Pong struct{}

func (*Pong) Command() string                       { return CmdPong }
func (*Pong) AppendWire(dst []byte) ([]byte, error) { return dst, nil }
