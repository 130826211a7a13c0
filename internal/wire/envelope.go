package wire

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	MagicSize    = 4
	CommandSize  = 12
	ChecksumSize = 4
	HeaderSize   = MagicSize + CommandSize + 4 + ChecksumSize

	// DefaultMaxPayloadLength bounds a single envelope payload.
	DefaultMaxPayloadLength = 1600003
)

// Magic identifies the network an envelope belongs to.
type Magic [MagicSize]byte

// DefaultMagic is the main network magic.
var DefaultMagic = Magic{0xe9, 0xbe, 0xb4, 0xd9}

// Envelope is one framed wire message.
type Envelope struct {
	Magic    Magic
	Command  string
	Length   uint32
	Checksum [ChecksumSize]byte
	Payload  []byte
}

// Checksum returns the first four bytes of SHA-512 over payload.
func Checksum(payload []byte) [ChecksumSize]byte {
	sum := sha512.Sum512(payload)
	var out [ChecksumSize]byte
	copy(out[:], sum[:ChecksumSize])
	return out
}

// EncodeEnvelope frames payload under magic and command.
func EncodeEnvelope(magic Magic, command string, payload []byte) ([]byte, error) {
	if err := validCommand(command); err != nil {
		return nil, err
	}
	if uint64(len(payload)) > 0xffffffff {
		return nil, ErrPayloadTooLarge
	}
	out := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(out[0:MagicSize], magic[:])
	copy(out[MagicSize:MagicSize+CommandSize], command)
	binary.BigEndian.PutUint32(out[16:20], uint32(len(payload)))
	sum := Checksum(payload)
	copy(out[20:HeaderSize], sum[:])
	return append(out, payload...), nil
}

// DecodeEnvelope reads exactly one envelope from r. The header is checked
// before the payload buffer is allocated, so at most maxPayload bytes are
// ever buffered. io.EOF is returned unwrapped when r ends cleanly between
// envelopes.
func DecodeEnvelope(r io.Reader, magic Magic, maxPayload uint32) (Envelope, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Envelope{}, fmt.Errorf("%w: short header", ErrTruncated)
		}
		return Envelope{}, err
	}

	env, err := decodeHeader(hdr[:], magic, maxPayload)
	if err != nil {
		return Envelope{}, err
	}

	payload := make([]byte, env.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Envelope{}, fmt.Errorf("%w: payload of %q", ErrTruncated, env.Command)
		}
		return Envelope{}, err
	}
	if Checksum(payload) != env.Checksum {
		return Envelope{}, fmt.Errorf("%w: command %q", ErrChecksum, env.Command)
	}
	env.Payload = payload
	return env, nil
}

func decodeHeader(b []byte, magic Magic, maxPayload uint32) (Envelope, error) {
	var env Envelope
	copy(env.Magic[:], b[0:MagicSize])
	if env.Magic != magic {
		return Envelope{}, fmt.Errorf("%w: got %x", ErrBadMagic, env.Magic[:])
	}
	cmd, err := parseCommand(b[MagicSize : MagicSize+CommandSize])
	if err != nil {
		return Envelope{}, err
	}
	env.Command = cmd
	env.Length = binary.BigEndian.Uint32(b[16:20])
	if env.Length > maxPayload {
		return Envelope{}, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, env.Length, maxPayload)
	}
	copy(env.Checksum[:], b[20:HeaderSize])
	return env, nil
}

// parseCommand accepts printable ASCII followed only by NUL padding.
func parseCommand(field []byte) (string, error) {
	end := bytes.IndexByte(field, 0)
	if end == -1 {
		end = len(field)
	}
	for _, c := range field[end:] {
		if c != 0 {
			return "", fmt.Errorf("%w: bad padding", ErrBadCommand)
		}
	}
	cmd := string(field[:end])
	if err := validCommand(cmd); err != nil {
		return "", err
	}
	return cmd, nil
}

func validCommand(cmd string) error {
	if cmd == "" || len(cmd) > CommandSize {
		return fmt.Errorf("%w: length %d", ErrBadCommand, len(cmd))
	}
	for i := 0; i < len(cmd); i++ {
		if cmd[i] < 0x21 || cmd[i] > 0x7e {
			return fmt.Errorf("%w: byte 0x%02x", ErrBadCommand, cmd[i])
		}
	}
	return nil
}
