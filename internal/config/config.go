// Package config holds the node configuration: protocol constants, limits,
// timeouts and admission policy. A Config is passed explicitly to every
// component that needs it.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"bmnode/internal/paths"
	"bmnode/internal/pow"
	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

// Mode selects the admission policy.
type Mode string

const (
	// ModePassive only accepts inbound connections, up to
	// MaxPassiveConnections.
	ModePassive Mode = "passive"
	// ModeActive dials out up to MaxActiveConnections and stops accepting
	// inbound connections at HighWaterMark.
	ModeActive Mode = "active"
)

// Storage backends.
const (
	StorageBolt   = "bolt"
	StorageMemory = "memory"
)

const (
	DefaultProtocolVersion = 3
	DefaultUserAgent       = "/bmnode:0.1.0/"
	DefaultPort            = 8444
)

type Config struct {
	DataDir   string   `toml:"data_dir"`
	Listen    string   `toml:"listen"`
	Mode      Mode     `toml:"mode"`
	Bootstrap []string `toml:"bootstrap"`
	Storage   string   `toml:"storage"`

	// Magic is the network magic as 8 hex digits.
	Magic           string   `toml:"magic"`
	ProtocolVersion uint32   `toml:"protocol_version"`
	Services        uint64   `toml:"services"`
	UserAgent       string   `toml:"user_agent"`
	Streams         []uint64 `toml:"streams"`

	MaxMessageLength   uint32 `toml:"max_message_length"`
	MaxInventoryLength int    `toml:"max_inventory_length"`
	MaxAddrLength      int    `toml:"max_addr_length"`

	TrialsPerByte uint64        `toml:"trials_per_byte"`
	ExtraBytes    uint64        `toml:"extra_bytes"`
	PoWWorkers    int           `toml:"pow_workers"`
	MaxObjectTTL  time.Duration `toml:"max_object_ttl"`

	ConnectTimeout time.Duration `toml:"connect_timeout"`
	IdleTimeout    time.Duration `toml:"idle_timeout"`
	PingInterval   time.Duration `toml:"ping_interval"`

	MaxPassiveConnections int           `toml:"max_passive_connections"`
	MaxActiveConnections  int           `toml:"max_active_connections"`
	HighWaterMark         int           `toml:"high_water_mark"`
	AcceptRate            float64       `toml:"accept_rate"`
	AcceptBurst           int           `toml:"accept_burst"`
	DialInterval          time.Duration `toml:"dial_interval"`

	CleanupInterval time.Duration `toml:"cleanup_interval"`

	// Keys are hex secp256k1 private keys; encrypted objects that open
	// under one of them are delivered locally.
	Keys []string `toml:"keys"`

	Debug       bool   `toml:"debug"`
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns a passive node on the default network and stream 1.
func Default() Config {
	return Config{
		DataDir: paths.DefaultDataDir(),
		Listen:  fmt.Sprintf(":%d", DefaultPort),
		Mode:    ModePassive,
		Storage: StorageBolt,

		Magic:           hex.EncodeToString(wire.DefaultMagic[:]),
		ProtocolVersion: DefaultProtocolVersion,
		Services:        wire.ServiceNetwork,
		UserAgent:       DefaultUserAgent,
		Streams:         []uint64{1},

		MaxMessageLength:   wire.DefaultMaxPayloadLength,
		MaxInventoryLength: wire.DefaultMaxInventoryLength,
		MaxAddrLength:      wire.DefaultMaxAddrLength,

		TrialsPerByte: pow.DefaultTrialsPerByte,
		ExtraBytes:    pow.DefaultExtraBytes,
		MaxObjectTTL:  storage.DefaultMaxObjectTTL,

		ConnectTimeout: 20 * time.Second,
		IdleTimeout:    10 * time.Minute,
		PingInterval:   5 * time.Minute,

		MaxPassiveConnections: 200,
		MaxActiveConnections:  8,
		HighWaterMark:         64,
		AcceptRate:            20,
		AcceptBurst:           40,
		DialInterval:          10 * time.Second,

		CleanupInterval: 5 * time.Minute,

		LogLevel: "info",
	}
}

// Load reads a TOML file over the defaults. Keys not present in the file
// keep their default; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.MagicBytes(); err != nil {
		errs = append(errs, err)
	}
	switch c.Mode {
	case ModePassive, ModeActive:
	default:
		errs = append(errs, fmt.Errorf("mode %q: want %q or %q", c.Mode, ModePassive, ModeActive))
	}
	switch c.Storage {
	case StorageBolt, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("storage %q: want %q or %q", c.Storage, StorageBolt, StorageMemory))
	}
	if len(c.Streams) == 0 {
		errs = append(errs, errors.New("at least one stream is required"))
	}
	for _, s := range c.Streams {
		if s == 0 {
			errs = append(errs, errors.New("stream 0 is not a valid stream"))
		}
	}
	if c.ProtocolVersion == 0 {
		errs = append(errs, errors.New("protocol_version must be positive"))
	}
	if len(c.UserAgent) > wire.MaxUserAgentLength {
		errs = append(errs, fmt.Errorf("user_agent longer than %d bytes", wire.MaxUserAgentLength))
	}
	if c.MaxMessageLength == 0 {
		errs = append(errs, errors.New("max_message_length must be positive"))
	}
	if c.MaxInventoryLength <= 0 || c.MaxAddrLength <= 0 {
		errs = append(errs, errors.New("list limits must be positive"))
	}
	if c.TrialsPerByte == 0 {
		errs = append(errs, errors.New("trials_per_byte must be positive"))
	}
	if c.ConnectTimeout <= 0 || c.IdleTimeout <= 0 || c.CleanupInterval <= 0 {
		errs = append(errs, errors.New("timeouts must be positive"))
	}
	if c.Mode == ModeActive && c.DialInterval <= 0 {
		errs = append(errs, errors.New("dial_interval must be positive in active mode"))
	}
	if c.MaxObjectTTL <= 0 {
		errs = append(errs, errors.New("max_object_ttl must be positive"))
	}
	if c.MaxPassiveConnections < 0 || c.MaxActiveConnections < 0 || c.HighWaterMark < 0 {
		errs = append(errs, errors.New("connection limits must not be negative"))
	}
	if c.Mode == ModeActive && c.HighWaterMark < c.MaxActiveConnections {
		errs = append(errs, errors.New("high_water_mark below max_active_connections"))
	}
	for _, b := range c.Bootstrap {
		if _, err := netip.ParseAddrPort(b); err != nil {
			errs = append(errs, fmt.Errorf("bootstrap %q: %w", b, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// MagicBytes decodes Magic.
func (c Config) MagicBytes() (wire.Magic, error) {
	var m wire.Magic
	b, err := hex.DecodeString(strings.TrimPrefix(c.Magic, "0x"))
	if err != nil {
		return m, fmt.Errorf("magic %q: %w", c.Magic, err)
	}
	if len(b) != wire.MagicSize {
		return m, fmt.Errorf("magic %q: want %d bytes", c.Magic, wire.MagicSize)
	}
	copy(m[:], b)
	return m, nil
}

// Limits returns the wire decoding limits.
func (c Config) Limits() wire.Limits {
	return wire.Limits{
		MaxPayloadLength:   c.MaxMessageLength,
		MaxInventoryLength: c.MaxInventoryLength,
		MaxAddrLength:      c.MaxAddrLength,
	}
}

// Difficulty returns the minimum proof-of-work parameters.
func (c Config) Difficulty() pow.Difficulty {
	return pow.Difficulty{TrialsPerByte: c.TrialsPerByte, ExtraBytes: c.ExtraBytes}
}

// StreamSet returns the streams this node serves.
func (c Config) StreamSet() wire.StreamSet {
	return wire.NewStreamSet(c.Streams...)
}

// StorageOptions returns the store settings.
func (c Config) StorageOptions() storage.Options {
	return storage.Options{MaxObjectTTL: c.MaxObjectTTL}.WithDefaults()
}

// DBPath is the bbolt file inside DataDir.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "objects.db")
}
