package p2p

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/rs/zerolog"

	"bmnode/internal/bootstrap"
	"bmnode/internal/config"
	"bmnode/internal/logging"
	"bmnode/internal/netx"
	"bmnode/internal/pow"
	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

type NodeConfig struct {
	Name     string                 // label used in logs
	Config   config.Config          // protocol constants, limits, timeouts, admission
	Network  netx.Network           // transport implementation
	Store    storage.Store          // objects and known nodes shared by all connections
	Logger   zerolog.Logger         // system logger
	Keys     []*btcec.PrivateKey    // recipient keys tried on msg and broadcast
	Registry *wire.Registry         // nil means the built-in variants under Config limits
	Engine   *pow.Engine            // nil means one sized by Config.PoWWorkers
	Sources  []bootstrap.PeerSource // extra dial candidates for active mode
}

// Delivery is an object addressed to one of the node's keys.
type Delivery struct {
	Vector    wire.InventoryVector
	Command   string
	Object    wire.Object
	Plaintext []byte
	Key       *btcec.PrivateKey
}

type Node struct {
	cfg      NodeConfig
	magic    wire.Magic
	streams  wire.StreamSet
	registry *wire.Registry
	engine   *pow.Engine
	nonce    uint64
	addr     netx.Addr
	log      zerolog.Logger

	mu       sync.RWMutex
	peers    map[string]*peer
	seq      uint64
	stopping bool // set by Stop before it waits; no goroutine may join after

	admit     *admission
	requested *seenCache
	jobs      *powJobs

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	incoming chan Delivery
	events   chan Event
}

func NewNode(cfg NodeConfig) (*Node, error) {
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.Network == nil {
		return nil, errors.New("p2p: no network")
	}
	if cfg.Store == nil {
		return nil, errors.New("p2p: no store")
	}
	magic, err := cfg.Config.MagicBytes()
	if err != nil {
		return nil, err
	}
	reg := cfg.Registry
	if reg == nil {
		reg = wire.NewRegistry(cfg.Config.Limits())
	}
	engine := cfg.Engine
	if engine == nil {
		if engine, err = pow.NewEngine(cfg.Config.PoWWorkers); err != nil {
			return nil, err
		}
	}
	var nb [8]byte
	if _, err := rand.Read(nb[:]); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Node{
		cfg:       cfg,
		magic:     magic,
		streams:   cfg.Config.StreamSet(),
		registry:  reg,
		engine:    engine,
		nonce:     binary.BigEndian.Uint64(nb[:]),
		log:       logging.Component(cfg.Logger, "p2p").With().Str("node", cfg.Name).Logger(),
		peers:     make(map[string]*peer),
		admit:     newAdmission(cfg.Config),
		requested: newSeenCache(requestTTL),
		jobs:      newPowJobs(),
		ctx:       ctx,
		cancel:    cancel,
		incoming:  make(chan Delivery, 128),
		events:    make(chan Event, 128),
	}
	return n, nil
}

// ListenAddr returns where this node is listening.
func (n *Node) ListenAddr() netx.Addr { return n.addr }

// Incoming returns objects that decrypted under one of the node's keys.
func (n *Node) Incoming() <-chan Delivery { return n.incoming }

// Name returns this node's name
func (n *Node) Name() string { return n.cfg.Name }

// Events return a channel of events for logging
func (n *Node) Events() <-chan Event { return n.events }

// Streams returns the streams this node serves.
func (n *Node) Streams() []uint64 { return wire.SortedStreams(n.streams) }

// Start brings the node online.
func (n *Node) Start() error {
	addr, err := n.cfg.Network.Listen(n.cfg.Config.Listen)
	if err != nil {
		return err
	}
	n.addr = addr
	n.log.Info().
		Str("addr", string(addr)).
		Str("mode", string(n.cfg.Config.Mode)).
		Uints64("streams", n.Streams()).
		Msg("listening")

	n.wg.Add(2)
	go n.acceptLoop()
	go n.maintenanceLoop()

	return nil
}

// Stop shuts down the node: it stops accepting, cancels running
// proof-of-work searches, closes every connection and waits for their
// goroutines. The store is left open for the caller.
func (n *Node) Stop() error {
	var err error
	n.once.Do(func() {
		n.mu.Lock()
		n.stopping = true
		all := make([]*peer, 0, len(n.peers))
		for _, p := range n.peers {
			all = append(all, p)
		}
		n.mu.Unlock()

		n.cancel()
		err = n.cfg.Network.Close()
		for _, p := range all {
			n.removePeer(p, ErrNodeStopped)
		}

		n.wg.Wait()
	})
	return err
}

// track registers one more goroutine with Stop's wait group. It reports
// false once Stop has begun.
func (n *Node) track() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopping {
		return false
	}
	n.wg.Add(1)
	return true
}

func (n *Node) emit(e Event) {
	select {
	case n.events <- e:
	default:
		// drop to avoid deadlock
	}
}

func (n *Node) deliver(d Delivery) {
	select {
	case n.incoming <- d:
	default:
		n.log.Warn().Str("vector", d.Vector.String()).Msg("incoming buffer full, dropping delivery")
	}
}
