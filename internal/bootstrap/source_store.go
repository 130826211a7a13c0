package bootstrap

import (
	"context"

	"bmnode/internal/netx"
	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

// StoreSource offers the known nodes that share a stream with the node,
// most recently seen first.
type StoreSource struct {
	Store   storage.Store
	Streams wire.StreamSet
	Limit   int
}

func (s StoreSource) Name() string { return "store" }

func (s StoreSource) Discover(ctx context.Context) ([]netx.Addr, error) {
	nodes, err := s.Store.GetNodes(s.Streams)
	if err != nil {
		return nil, err
	}
	if s.Limit > 0 && len(nodes) > s.Limit {
		nodes = nodes[:s.Limit]
	}
	out := make([]netx.Addr, 0, len(nodes))
	for _, a := range nodes {
		out = append(out, netx.Addr(a.Key()))
	}
	return out, nil
}
