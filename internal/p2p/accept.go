package p2p

import "bmnode/internal/metrics"

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		if err := n.admit.waitAccept(n.ctx); err != nil {
			return
		}

		conn, err := n.cfg.Network.Accept()
		if err != nil {
			if n.ctx.Err() == nil {
				n.log.Warn().Err(err).Msg("accept failed")
			}
			return
		}

		if ok, reason := n.admit.admitInbound(); !ok {
			metrics.AdmissionRejected(string(dirInbound), reason)
			n.Logf("refusing inbound %s: %s", conn.RemoteAddr(), reason)
			_ = conn.Close()
			continue
		}
		if !n.track() {
			_ = conn.Close()
			n.admit.release(dirInbound)
			return
		}
		go n.handleConn(conn, true)
	}
}
