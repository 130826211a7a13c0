package bootstrap

import (
	"context"
	"math/rand"
	"time"

	"bmnode/internal/netx"
)

// Dialer is the part of a node the bootstrap round needs.
type Dialer interface {
	ConnectTo(ctx context.Context, addr netx.Addr) error
	Logf(format string, args ...any)
}

type Config struct {
	MaxConnectPerRound int
	PerAddrTimeout     time.Duration

	// Skip reports candidates that must not be dialed, such as peers
	// already connected or the node's own address.
	Skip func(netx.Addr) bool
}

func DefaultConfig() Config {
	return Config{
		MaxConnectPerRound: 8,
		PerAddrTimeout:     5 * time.Second,
	}
}

// RunOnce gathers candidates from sources and dials up to
// cfg.MaxConnectPerRound of them. It returns how many dials succeeded.
func RunOnce(ctx context.Context, d Dialer, cfg Config, sources ...PeerSource) int {
	cands := make([]netx.Addr, 0, 64)

	for _, s := range sources {
		addrs, err := s.Discover(ctx)
		if err != nil {
			d.Logf("[bootstrap] %s discover error: %v", s.Name(), err)
			continue
		}
		cands = append(cands, addrs...)
	}

	// Shuffle to avoid everyone hitting the same bootstrap in the same order.
	rand.Shuffle(len(cands), func(i, j int) { cands[i], cands[j] = cands[j], cands[i] })

	seen := make(map[netx.Addr]struct{}, len(cands))
	attempted, connected := 0, 0

	for _, a := range cands {
		if attempted >= cfg.MaxConnectPerRound || ctx.Err() != nil {
			break
		}
		if _, ok := seen[a]; ok || a == "" {
			continue
		}
		seen[a] = struct{}{}
		if cfg.Skip != nil && cfg.Skip(a) {
			continue
		}

		attempted++
		dctx, cancel := context.WithTimeout(ctx, cfg.PerAddrTimeout)
		err := d.ConnectTo(dctx, a)
		cancel()
		if err != nil {
			d.Logf("[bootstrap] dial %s: %v", a, err)
			continue
		}
		connected++
	}
	return connected
}
