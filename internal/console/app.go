// Package console is the interactive front end of a running node: it prints
// connection events and decrypted messages, and reads slash commands.
package console

import (
	"context"
	"encoding/hex"
	"io"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/rs/zerolog"

	"bmnode/internal/crypto/ecies"
	"bmnode/internal/discovery"
	"bmnode/internal/p2p"
	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

// DefaultMessageTTL is how long objects created with /send live.
const DefaultMessageTTL = 4 * 24 * time.Hour

type Options struct {
	Node   *p2p.Node
	Store  storage.Store
	Keys   []*btcec.PrivateKey
	Logger zerolog.Logger

	MessageTTL time.Duration

	// LAN, when set, answers local discovery probes for this node.
	LAN *discovery.LANConfig

	In  io.Reader
	Out io.Writer
}

type App struct {
	opts Options
	ui   Printer
	log  zerolog.Logger

	Node *p2p.Node

	stopLAN context.CancelFunc

	// pending /send proof-of-work searches
	sends sync.WaitGroup

	quit     chan struct{}
	quitOnce sync.Once
}

func New(opts Options) *App {
	if opts.MessageTTL <= 0 {
		opts.MessageTTL = DefaultMessageTTL
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &App{
		opts:    opts,
		ui:      NewStdPrinter(opts.Out),
		log:     opts.Logger.With().Str("component", "console").Logger(),
		Node:    opts.Node,
		stopLAN: func() {},
		quit:    make(chan struct{}),
	}
}

func (a *App) Start() error {
	if err := a.Node.Start(); err != nil {
		return err
	}
	if a.opts.LAN != nil {
		ap, err := netip.ParseAddrPort(string(a.Node.ListenAddr()))
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		a.stopLAN = cancel
		streams := wire.NewStreamSet(a.Node.Streams()...)
		if err := discovery.StartLANResponder(ctx, *a.opts.LAN, ap.Port(), streams); err != nil {
			a.log.Warn().Err(err).Msg("LAN responder failed")
		}
	}
	return nil
}

// Run prints events and deliveries and reads commands until ctx is done
// or /quit is entered.
func (a *App) Run(ctx context.Context) error {
	PrintBanner(a.ui, a.Node, a.publicKeys())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go a.readInput(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-a.Node.Events():
				a.printEvent(ev)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-a.quit:
			return nil
		case d := <-a.Node.Incoming():
			a.handleDelivery(d)
		}
	}
}

// StopAll stops discovery, waits for pending sends to give up and stops
// the node.
func (a *App) StopAll() error {
	a.stopLAN()
	err := a.Node.Stop()
	a.sends.Wait()
	return err
}

func (a *App) requestQuit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// publicKeys returns the 70-byte public key form of every key, in hex.
func (a *App) publicKeys() []string {
	out := make([]string, 0, len(a.opts.Keys))
	for _, k := range a.opts.Keys {
		pub := ecies.MarshalPublicKey(k.PubKey())
		out = append(out, hex.EncodeToString(pub[:]))
	}
	return out
}
