package bootstrap

import (
	"context"

	"bmnode/internal/discovery"
	"bmnode/internal/netx"
)

// LANSource asks nodes on the local network for their listen address.
type LANSource struct {
	Cfg discovery.LANConfig
}

func (s LANSource) Name() string { return "lan" }

func (s LANSource) Discover(ctx context.Context) ([]netx.Addr, error) {
	addrs, err := discovery.DiscoverLANPeers(ctx, s.Cfg)
	if err != nil {
		return nil, err
	}
	out := make([]netx.Addr, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, netx.Addr(a.Key()))
	}
	return out, nil
}
