package p2p

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"bmnode/internal/wire"
)

var (
	// ErrProtocolMismatch covers every handshake or sequencing violation
	// that ends a connection in an orderly way.
	ErrProtocolMismatch = errors.New("p2p: protocol mismatch")

	ErrVersionTooOld     = fmt.Errorf("%w: protocol version too old", ErrProtocolMismatch)
	ErrNoCommonStream    = fmt.Errorf("%w: no common stream", ErrProtocolMismatch)
	ErrClockSkew         = fmt.Errorf("%w: clock skew", ErrProtocolMismatch)
	ErrUnexpectedMessage = fmt.Errorf("%w: unexpected message", ErrProtocolMismatch)
	ErrSelfConnection    = errors.New("p2p: connected to self")

	ErrAdmission         = errors.New("p2p: admission refused")
	ErrInvalidTransition = errors.New("p2p: invalid state transition")
	ErrSendBufferFull    = errors.New("p2p: send buffer full")
	ErrNodeStopped       = errors.New("p2p: node stopped")

	// ErrSuperseded ends a local proof-of-work search because the same
	// object arrived from the network first.
	ErrSuperseded = errors.New("p2p: object already received from the network")
	ErrStream     = errors.New("p2p: stream not served")
)

// disconnectReason labels why a connection ended, for logs and metrics.
func disconnectReason(err error) string {
	var ne net.Error
	switch {
	case err == nil:
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, ErrNodeStopped):
		return "shutdown"
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		return "eof"
	case errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	case errors.Is(err, wire.ErrChecksum):
		return "checksum"
	case errors.Is(err, wire.ErrMalformed):
		return "parse"
	case errors.Is(err, ErrSelfConnection):
		return "self"
	case errors.Is(err, ErrProtocolMismatch):
		return "protocol"
	case errors.Is(err, ErrSendBufferFull):
		return "slow_peer"
	}
	return "io"
}

// parseFailureKind names a wire error for the parse failure counter.
func parseFailureKind(err error) string {
	for _, k := range []struct {
		err  error
		name string
	}{
		{wire.ErrBadMagic, "magic"},
		{wire.ErrBadCommand, "command"},
		{wire.ErrPayloadTooLarge, "too_large"},
		{wire.ErrChecksum, "checksum"},
		{wire.ErrUnknownCommand, "unknown_command"},
		{wire.ErrTruncated, "truncated"},
		{wire.ErrTooManyElements, "too_many"},
		{wire.ErrTrailingBytes, "trailing"},
		{wire.ErrInvalidField, "field"},
	} {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}
