package bootstrap

import (
	"context"

	"bmnode/internal/netx"
)

type PeerSource interface {
	// Discover returns candidate peers to connect to.
	Discover(ctx context.Context) ([]netx.Addr, error)
	Name() string
}
