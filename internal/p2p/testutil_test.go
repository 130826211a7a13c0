package p2p

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/rs/zerolog"

	"bmnode/internal/config"
	"bmnode/internal/crypto/ecies"
	"bmnode/internal/netx"
	"bmnode/internal/storage/memstore"
	"bmnode/internal/wire"
)

type nodeTestOpt func(*NodeConfig)

// WithConfig edits the node config before the node is built.
func WithConfig(edit func(*config.Config)) nodeTestOpt {
	return func(cfg *NodeConfig) { edit(&cfg.Config) }
}

// WithStreams overrides the served streams (default 1).
func WithStreams(streams ...uint64) nodeTestOpt {
	return WithConfig(func(c *config.Config) { c.Streams = streams })
}

// WithKeys sets the recipient keys.
func WithKeys(keys ...*btcec.PrivateKey) nodeTestOpt {
	return func(cfg *NodeConfig) { cfg.Keys = keys }
}

func testConfig() config.Config {
	c := config.Default()
	c.Listen = "127.0.0.1:0"
	c.Storage = config.StorageMemory
	c.DataDir = ""
	c.TrialsPerByte = 1
	c.ExtraBytes = 1
	c.PoWWorkers = 2
	c.ConnectTimeout = 2 * time.Second
	c.IdleTimeout = 10 * time.Second
	c.PingInterval = time.Second
	c.CleanupInterval = time.Second
	c.AcceptRate = 0
	c.Debug = true
	return c
}

// newTestNode spins up a node bound to an ephemeral localhost port and auto-stops it.
func newTestNode(t *testing.T, name string, opts ...nodeTestOpt) *Node {
	t.Helper()

	cfg := NodeConfig{
		Name:    name,
		Config:  testConfig(),
		Network: netx.NewTCPNetwork(),
		Logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		st, err := memstore.New(cfg.Config.StorageOptions())
		if err != nil {
			t.Fatalf("memstore.New: %v", err)
		}
		cfg.Store = st
	}

	n, err := NewNode(cfg)
	if err != nil {
		t.Fatalf("NewNode(%s) error: %v", name, err)
	}
	if err := n.Start(); err != nil {
		t.Fatalf("Start(%s) error: %v", name, err)
	}

	t.Cleanup(func() { _ = n.Stop() })
	return n
}

// eventually polls cond until it holds or timeout passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool, format string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf(format, args...)
}

func waitPeers(t *testing.T, n *Node, want int, timeout time.Duration) {
	t.Helper()
	eventually(t, timeout, func() bool { return n.PeerCount() >= want },
		"timed out waiting for peers: node=%s have=%d want=%d", n.Name(), n.PeerCount(), want)
}

// waitNoConnections waits until n has no open connection in any state.
func waitNoConnections(t *testing.T, n *Node, timeout time.Duration) {
	t.Helper()
	eventually(t, timeout, func() bool { return len(n.SnapshotPeers()) == 0 },
		"node=%s still has connections: %+v", n.Name(), n.SnapshotPeers())
}

func connect(t *testing.T, from, to *Node) {
	t.Helper()
	if err := from.ConnectTo(testContext(t), to.ListenAddr()); err != nil {
		t.Fatalf("%s.ConnectTo(%s) error: %v", from.Name(), to.Name(), err)
	}
}

// connectTriangle connects b->a, c->b, a->c and waits for each to have 2 peers.
func connectTriangle(t *testing.T, a, b, c *Node) {
	t.Helper()
	connect(t, b, a)
	connect(t, c, b)
	connect(t, a, c)

	waitPeers(t, a, 2, 3*time.Second)
	waitPeers(t, b, 2, 3*time.Second)
	waitPeers(t, c, 2, 3*time.Second)
}

func drainIncomingForever(t *testing.T, n *Node, done <-chan struct{}) {
	t.Helper()
	go func() {
		for {
			select {
			case <-done:
				return
			case _, ok := <-n.Incoming():
				if !ok {
					return
				}
			}
		}
	}()
}

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	k, err := ecies.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return k
}

// newMsg encrypts text to pub as an unsolved msg object on stream 1.
func newMsg(t *testing.T, pub *btcec.PublicKey, text string, ttl time.Duration) *wire.Msg {
	t.Helper()
	enc, err := ecies.Encrypt([]byte(text), pub)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	return &wire.Msg{
		ObjectHeader: wire.ObjectHeader{ExpiresTime: time.Now().Add(ttl).Unix()},
		Stream:       1,
		Encrypted:    *enc,
	}
}

func hasObject(n *Node, v wire.InventoryVector) bool {
	_, ok, err := n.cfg.Store.GetObject(v)
	return err == nil && ok
}
