package wire

import (
	"errors"
	"fmt"
)

// ErrMalformed is the parent of every parsing failure reported by this
// package. Callers match it with errors.Is to decide on a disconnect.
var ErrMalformed = errors.New("wire: malformed message")

var (
	ErrBadMagic         = fmt.Errorf("%w: magic mismatch", ErrMalformed)
	ErrBadCommand       = fmt.Errorf("%w: invalid command", ErrMalformed)
	ErrPayloadTooLarge  = fmt.Errorf("%w: payload too large", ErrMalformed)
	ErrChecksum         = fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	ErrUnknownCommand   = fmt.Errorf("%w: unknown command", ErrMalformed)
	ErrTruncated        = fmt.Errorf("%w: truncated", ErrMalformed)
	ErrTooManyElements  = fmt.Errorf("%w: element count exceeds limit", ErrMalformed)
	ErrTrailingBytes    = fmt.Errorf("%w: trailing bytes", ErrMalformed)
	ErrInvalidField     = fmt.Errorf("%w: invalid field", ErrMalformed)
	ErrCommandMismatch  = errors.New("wire: payload does not match command")
	ErrDuplicateCommand = errors.New("wire: command already registered")
)
