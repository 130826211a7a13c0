package p2p

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"bmnode/internal/config"
)

type direction string

const (
	dirInbound  direction = "inbound"
	dirOutbound direction = "outbound"
)

func dirOf(inbound bool) direction {
	if inbound {
		return dirInbound
	}
	return dirOutbound
}

// admission counts slots per direction. A slot is taken before a
// connection's goroutines start and given back exactly once when it closes.
type admission struct {
	mode       config.Mode
	maxPassive int
	maxActive  int
	highWater  int
	limiter    *rate.Limiter

	mu       sync.Mutex
	inbound  int
	outbound int
}

func newAdmission(cfg config.Config) *admission {
	limit := rate.Inf
	if cfg.AcceptRate > 0 {
		limit = rate.Limit(cfg.AcceptRate)
	}
	burst := cfg.AcceptBurst
	if burst <= 0 {
		burst = 1
	}
	return &admission{
		mode:       cfg.Mode,
		maxPassive: cfg.MaxPassiveConnections,
		maxActive:  cfg.MaxActiveConnections,
		highWater:  cfg.HighWaterMark,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// admitInbound takes an inbound slot, or reports why it cannot.
func (a *admission) admitInbound() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.mode {
	case config.ModeActive:
		if a.inbound+a.outbound >= a.highWater {
			return false, "high_water"
		}
	default:
		if a.inbound >= a.maxPassive {
			return false, "passive_cap"
		}
	}
	a.inbound++
	return true, ""
}

// admitOutbound takes an outbound slot. Outbound connections are bounded
// by MaxActiveConnections in either mode.
func (a *admission) admitOutbound() (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outbound >= a.maxActive {
		return false, "active_cap"
	}
	if a.mode == config.ModeActive && a.inbound+a.outbound >= a.highWater {
		return false, "high_water"
	}
	a.outbound++
	return true, ""
}

func (a *admission) release(d direction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch d {
	case dirInbound:
		if a.inbound > 0 {
			a.inbound--
		}
	case dirOutbound:
		if a.outbound > 0 {
			a.outbound--
		}
	}
}

func (a *admission) counts() (inbound, outbound int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inbound, a.outbound
}

// outboundDeficit is how many more connections an active node should dial.
func (a *admission) outboundDeficit() int {
	if a.mode != config.ModeActive {
		return 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	want := a.maxActive - a.outbound
	if room := a.highWater - a.inbound - a.outbound; room < want {
		want = room
	}
	return max(want, 0)
}

// waitAccept paces the accept loop.
func (a *admission) waitAccept(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}
