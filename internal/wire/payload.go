package wire

import (
	"fmt"
	"slices"
	"sync"
)

// Commands understood by the default registry.
const (
	CmdVersion   = "version"
	CmdVerack    = "verack"
	CmdAddr      = "addr"
	CmdInv       = "inv"
	CmdGetData   = "getdata"
	CmdPing      = "ping"
	CmdPong      = "pong"
	CmdGetPubkey = "getpubkey"
	CmdPubkey    = "pubkey"
	CmdMsg       = "msg"
	CmdBroadcast = "broadcast"
	CmdEncrypted = "encrypted"
)

// Payload is one typed variant of an envelope payload.
type Payload interface {
	Command() string
	AppendWire(dst []byte) ([]byte, error)
}

// Serialize returns the payload bytes of p.
func Serialize(p Payload) ([]byte, error) {
	return p.AppendWire(nil)
}

// Limits bounds what a registry is willing to parse.
type Limits struct {
	MaxPayloadLength   uint32
	MaxInventoryLength int
	MaxAddrLength      int
}

const (
	DefaultMaxInventoryLength = 50000
	DefaultMaxAddrLength      = 1000
)

func DefaultLimits() Limits {
	return Limits{
		MaxPayloadLength:   DefaultMaxPayloadLength,
		MaxInventoryLength: DefaultMaxInventoryLength,
		MaxAddrLength:      DefaultMaxAddrLength,
	}
}

// ParseFunc decodes the payload bytes of one command.
type ParseFunc func(b []byte, lim Limits) (Payload, error)

var builtin = map[string]ParseFunc{
	CmdVersion:   parseVersion,
	CmdVerack:    parseEmpty(func() Payload { return &Verack{} }),
	CmdPing:      parseEmpty(func() Payload { return &Ping{} }),
	CmdPong:      parseEmpty(func() Payload { return &Pong{} }),
	CmdAddr:      parseAddr,
	CmdInv:       parseInv,
	CmdGetData:   parseGetData,
	CmdGetPubkey: parseGetPubkey,
	CmdPubkey:    parsePubkey,
	CmdMsg:       parseMsg,
	CmdBroadcast: parseBroadcast,
	CmdEncrypted: func(b []byte, _ Limits) (Payload, error) { return ParseEncryptedObject(b) },
}

// Registry maps commands to their parsers. It is safe for concurrent use.
type Registry struct {
	limits Limits

	mu      sync.RWMutex
	parsers map[string]ParseFunc
}

// NewRegistry returns a registry holding every built-in variant.
func NewRegistry(lim Limits) *Registry {
	r := &Registry{
		limits:  lim,
		parsers: make(map[string]ParseFunc, len(builtin)),
	}
	for cmd, fn := range builtin {
		r.parsers[cmd] = fn
	}
	return r
}

// Register adds a variant. Commands cannot be registered twice.
func (r *Registry) Register(command string, fn ParseFunc) error {
	if err := validCommand(command); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.parsers[command]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateCommand, command)
	}
	r.parsers[command] = fn
	return nil
}

// Limits returns the bounds the registry parses with.
func (r *Registry) Limits() Limits { return r.limits }

// Commands lists the registered commands in sorted order.
func (r *Registry) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.parsers))
	for cmd := range r.parsers {
		out = append(out, cmd)
	}
	slices.Sort(out)
	return out
}

// Parse decodes payload as the variant registered for command.
func (r *Registry) Parse(command string, payload []byte) (Payload, error) {
	r.mu.RLock()
	fn, ok := r.parsers[command]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	p, err := fn(payload, r.limits)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", command, err)
	}
	return p, nil
}

// Decode parses the payload of an already verified envelope.
func (r *Registry) Decode(env Envelope) (Payload, error) {
	return r.Parse(env.Command, env.Payload)
}

// Frame serializes p and wraps it in an envelope.
func Frame(magic Magic, p Payload) ([]byte, error) {
	b, err := Serialize(p)
	if err != nil {
		return nil, err
	}
	return EncodeEnvelope(magic, p.Command(), b)
}

// RawPayload carries already serialized bytes under a command. It is used
// to relay stored objects without re-encoding them.
type RawPayload struct {
	Cmd  string
	Data []byte
}

func (p *RawPayload) Command() string { return p.Cmd }

func (p *RawPayload) AppendWire(dst []byte) ([]byte, error) {
	return append(dst, p.Data...), nil
}

func parseEmpty(mk func() Payload) ParseFunc {
	return func(b []byte, _ Limits) (Payload, error) {
		if len(b) != 0 {
			return nil, fmt.Errorf("%w: %d unread", ErrTrailingBytes, len(b))
		}
		return mk(), nil
	}
}
