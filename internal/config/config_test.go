package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bmnode/internal/wire"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bmnode.toml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	m, err := cfg.MagicBytes()
	require.NoError(t, err)
	require.Equal(t, wire.DefaultMagic, m)
	require.Equal(t, wire.DefaultLimits(), cfg.Limits())
	require.True(t, cfg.StreamSet().Contains(1))
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
mode = "active"
magic = "04ff0005"
streams = [1, 2]
idle_timeout = "90s"
max_active_connections = 4
high_water_mark = 10
bootstrap = ["127.0.0.1:8444", "[::1]:8445"]
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, ModeActive, cfg.Mode)
	require.Equal(t, 90*time.Second, cfg.IdleTimeout)
	require.Equal(t, []uint64{1, 2}, cfg.Streams)
	require.Len(t, cfg.Bootstrap, 2)

	m, err := cfg.MagicBytes()
	require.NoError(t, err)
	require.Equal(t, wire.Magic{4, 255, 0, 5}, m)

	// untouched keys keep their default
	require.Equal(t, Default().ConnectTimeout, cfg.ConnectTimeout)
	require.Equal(t, Default().UserAgent, cfg.UserAgent)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeFile(t, "no_such_key = 1\n"))
	require.ErrorContains(t, err, "no_such_key")
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"bad magic":      func(c *Config) { c.Magic = "e9be" },
		"bad mode":       func(c *Config) { c.Mode = "both" },
		"no streams":     func(c *Config) { c.Streams = nil },
		"stream zero":    func(c *Config) { c.Streams = []uint64{0} },
		"bad storage":    func(c *Config) { c.Storage = "sqlite" },
		"bad bootstrap":  func(c *Config) { c.Bootstrap = []string{"example.org"} },
		"zero timeout":   func(c *Config) { c.IdleTimeout = 0 },
		"low high water": func(c *Config) { c.Mode = ModeActive; c.HighWaterMark = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
