package console

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"bmnode/internal/crypto/ecies"
	"bmnode/internal/netx"
	"bmnode/internal/wire"
)

func (a *App) readInput(ctx context.Context) {
	sc := bufio.NewScanner(a.opts.In)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := sc.Text()
		if line == "" {
			continue
		}
		a.handleCommand(ctx, line)
	}
}

func (a *App) handleCommand(ctx context.Context, line string) {
	cmd, rest := splitCommand(line)
	switch cmd {
	case "/quit", "/exit":
		a.ui.Println("quitting...")
		a.requestQuit()

	case "/me":
		a.ui.Println()
		a.ui.Println("== You ==")
		a.ui.Printf("  Name:       %s\n", a.Node.Name())
		a.ui.Printf("  Listen on:  %s\n", a.Node.ListenAddr())
		a.ui.Printf("  Streams:    %v\n", a.Node.Streams())
		a.ui.Printf("  Peers:      %d\n", a.Node.PeerCount())
		for _, k := range a.publicKeys() {
			a.ui.Printf("  Key:        %s\n", k)
		}
		a.ui.Println()

	case "/peers":
		peers := a.Node.SnapshotPeers()
		if len(peers) == 0 {
			a.ui.Println("no peers connected")
			return
		}

		a.ui.Println()
		a.ui.Println("Connections:")
		a.ui.Printf("%-24s  %-8s  %-12s  %-8s  %s\n", "ADDR", "DIR", "STATE", "STREAMS", "USER AGENT")
		a.ui.Printf("%-24s  %-8s  %-12s  %-8s  %s\n", "----", "---", "-----", "-------", "----------")
		for _, p := range peers {
			dir := "out"
			if p.Inbound {
				dir = "in"
			}
			a.ui.Printf("%-24s  %-8s  %-12s  %-8s  %s\n",
				p.Addr, dir, p.State, fmt.Sprint(p.Streams), p.UserAgent)
		}
		a.ui.Println()

	case "/connect":
		if rest == "" {
			a.ui.Println("usage: /connect <host:port>")
			return
		}
		if err := a.Node.ConnectTo(ctx, netx.Addr(rest)); err != nil {
			a.ui.Printf("connect: %v\n", err)
			return
		}
		a.ui.Printf("[NET] dialing %s\n", rest)

	case "/send":
		to, text := splitCommand(rest)
		if to == "" || text == "" {
			a.ui.Println("usage: /send <pubkey> <message>")
			return
		}
		pub, err := parsePublicKeyHex(to)
		if err != nil {
			a.ui.Printf("send: %v\n", err)
			return
		}
		a.send(ctx, pub, text)

	case "/inv":
		for _, s := range a.Node.Streams() {
			inv, err := a.opts.Store.Inventory(wire.NewStreamSet(s))
			if err != nil {
				a.ui.Printf("inv: %v\n", err)
				return
			}
			a.ui.Printf("stream %d: %d objects\n", s, len(inv))
		}

	default:
		a.ui.Println("unknown command")
		PrintCommands(a.ui)
	}
}

// send encrypts text to pub and solves the proof-of-work in the
// background; the result is printed when it is relayed.
func (a *App) send(ctx context.Context, pub *btcec.PublicKey, text string) {
	enc, err := ecies.Encrypt([]byte(text), pub)
	if err != nil {
		a.ui.Printf("encrypt failed: %v\n", err)
		return
	}
	msg := &wire.Msg{
		ObjectHeader: wire.ObjectHeader{ExpiresTime: time.Now().Add(a.opts.MessageTTL).Unix()},
		Stream:       a.Node.Streams()[0],
		Encrypted:    *enc,
	}
	a.ui.Printf("[SEND] solving proof of work...\n")

	a.sends.Add(1)
	go func() {
		defer a.sends.Done()
		start := time.Now()
		vec, err := a.Node.Submit(ctx, msg)
		if err != nil {
			a.ui.Printf("[SEND] failed: %v\n", err)
			return
		}
		a.ui.Printf("[SEND] relayed %s after %s\n", colored(shortHex(vec.String())), time.Since(start).Round(time.Millisecond))
	}()
}

// parsePublicKeyHex accepts the 70-byte tagged form or the raw 64-byte
// X‖Y form.
func parsePublicKeyHex(s string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	switch len(b) {
	case wire.PublicKeySize:
		return ecies.ParsePublicKey(b)
	case wire.RawKeySize:
		var raw [wire.RawKeySize]byte
		copy(raw[:], b)
		return ecies.PublicKeyFromRaw(raw)
	}
	return nil, errors.New("public key: want 70 or 64 bytes of hex")
}
