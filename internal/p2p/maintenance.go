package p2p

import (
	"time"

	"bmnode/internal/bootstrap"
	"bmnode/internal/config"
	"bmnode/internal/netx"
)

// maintenanceLoop purges expired objects and stale nodes, and in active
// mode keeps the outbound connection count topped up.
func (n *Node) maintenanceLoop() {
	defer n.wg.Done()

	cleanup := time.NewTicker(n.cfg.Config.CleanupInterval)
	defer cleanup.Stop()

	var dial <-chan time.Time
	if n.admit.mode == config.ModeActive {
		t := time.NewTicker(n.cfg.Config.DialInterval)
		defer t.Stop()
		dial = t.C
		n.dialRound()
	}

	for {
		select {
		case <-n.ctx.Done():
			return
		case now := <-cleanup.C:
			purged, err := n.cfg.Store.Cleanup(now)
			if err != nil {
				n.log.Warn().Err(err).Msg("cleanup failed")
			} else if purged > 0 {
				n.Logf("cleanup removed %d entries", purged)
			}
			n.requested.gc()
		case <-dial:
			n.dialRound()
		}
	}
}

// dialRound connects to candidates from the bootstrap list, the known
// node table and any extra sources until the outbound target is reached.
func (n *Node) dialRound() {
	deficit := n.admit.outboundDeficit()
	if deficit == 0 {
		return
	}

	static := make([]netx.Addr, 0, len(n.cfg.Config.Bootstrap))
	for _, a := range n.cfg.Config.Bootstrap {
		static = append(static, netx.Addr(a))
	}
	sources := []bootstrap.PeerSource{
		bootstrap.StaticSource{Addrs: static, Label: "config"},
		bootstrap.StoreSource{Store: n.cfg.Store, Streams: n.streams, Limit: 4 * deficit},
	}
	sources = append(sources, n.cfg.Sources...)

	bcfg := bootstrap.DefaultConfig()
	bcfg.MaxConnectPerRound = deficit
	bcfg.PerAddrTimeout = n.cfg.Config.ConnectTimeout
	bcfg.Skip = n.connectedTo

	if got := bootstrap.RunOnce(n.ctx, n, bcfg, sources...); got > 0 {
		n.Logf("dial round connected %d of %d", got, deficit)
	}
}
