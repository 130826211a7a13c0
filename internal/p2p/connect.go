package p2p

import (
	"context"
	"fmt"

	"bmnode/internal/metrics"
	"bmnode/internal/netx"
)

// ConnectTo dials addr and runs the connection in the background. It
// returns once the transport is connected; the handshake happens later.
func (n *Node) ConnectTo(ctx context.Context, addr netx.Addr) error {
	if n.ctx.Err() != nil {
		return ErrNodeStopped
	}
	if ok, reason := n.admit.admitOutbound(); !ok {
		metrics.AdmissionRejected(string(dirOutbound), reason)
		return fmt.Errorf("%w: %s", ErrAdmission, reason)
	}

	dctx, cancel := context.WithTimeout(ctx, n.cfg.Config.ConnectTimeout)
	conn, err := n.cfg.Network.Dial(dctx, addr)
	cancel()
	if err != nil {
		n.admit.release(dirOutbound)
		n.Logf("dial %s failed: %v", addr, err)
		return err
	}

	if !n.track() {
		_ = conn.Close()
		n.admit.release(dirOutbound)
		return ErrNodeStopped
	}
	go n.handleConn(conn, false)
	return nil
}

func (n *Node) handleConn(conn netx.Conn, inbound bool) {
	defer n.wg.Done()

	p := n.newPeer(conn, inbound)
	n.addPeer(p)
	if n.ctx.Err() != nil {
		// raced with Stop
		n.removePeer(p, ErrNodeStopped)
		return
	}

	n.wg.Add(1)
	go p.writeLoop(n)

	err := n.runPeer(p)
	n.removePeer(p, err)
}
