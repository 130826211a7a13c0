package p2p

import (
	"time"

	"bmnode/internal/metrics"
	"bmnode/internal/wire"
)

// writeLoop owns all writes to the socket. It also sends a ping when an
// active connection has been quiet for PingInterval.
func (p *peer) writeLoop(n *Node) {
	defer n.wg.Done()

	var tick <-chan time.Time
	if iv := n.cfg.Config.PingInterval; iv > 0 {
		t := time.NewTicker(iv / 2)
		defer t.Stop()
		tick = t.C
	}

	for {
		var msg wire.Payload
		select {
		case <-p.ctx.Done():
			return
		case msg = <-p.sendCh:
		case <-p.reqReady:
			var err error
			if msg, err = n.nextRequested(p); err != nil {
				n.log.Warn().Err(err).Str("peer", p.id).Msg("getdata reply")
				go n.removePeer(p, err)
				return
			}
			if msg == nil {
				continue
			}
		case <-tick:
			idle := time.Since(time.Unix(0, p.lastWrite.Load()))
			if !p.active() || idle < n.cfg.Config.PingInterval {
				continue
			}
			msg = &wire.Ping{}
		}

		frame, err := wire.Frame(n.magic, msg)
		if err != nil {
			n.log.Error().Err(err).Str("command", msg.Command()).Msg("encode failed")
			continue
		}
		_ = p.conn.SetWriteDeadline(time.Now().Add(n.cfg.Config.IdleTimeout))
		if _, err := p.conn.Write(frame); err != nil {
			n.Logf("write to %s failed: %v", p.id, err)
			go n.removePeer(p, err)
			return
		}
		p.lastWrite.Store(time.Now().UnixNano())
		metrics.Envelope("out", msg.Command())
	}
}
