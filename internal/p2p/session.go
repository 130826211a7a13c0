package p2p

import (
	"bufio"
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"bmnode/internal/metrics"
	"bmnode/internal/wire"
)

// maxClockSkew bounds the difference between a peer's version timestamp
// and the local clock.
const maxClockSkew = time.Hour

// runPeer drives one connection from HANDSHAKING until it fails. Every
// return is a reason to close.
func (n *Node) runPeer(p *peer) error {
	if err := p.setState(StateHandshaking); err != nil {
		return err
	}
	p.handshakeEnd = time.Now().Add(n.cfg.Config.ConnectTimeout)
	n.sendAsync(p, n.versionFor(p))
	return n.runPeerReadLoop(p)
}

func (n *Node) runPeerReadLoop(p *peer) error {
	r := bufio.NewReader(p.conn)
	maxPayload := n.registry.Limits().MaxPayloadLength

	for {
		if n.ctx.Err() != nil {
			return ErrNodeStopped
		}
		deadline := time.Now().Add(n.cfg.Config.IdleTimeout)
		if !p.active() {
			deadline = p.handshakeEnd
		}
		_ = p.conn.SetReadDeadline(deadline)

		env, err := wire.DecodeEnvelope(r, n.magic, maxPayload)
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				metrics.ParseFailure(parseFailureKind(err))
			}
			return err
		}
		p.lastRead.Store(time.Now().UnixNano())
		metrics.Envelope("in", env.Command)

		msg, err := n.registry.Decode(env)
		if err != nil {
			metrics.ParseFailure(parseFailureKind(err))
			return err
		}
		if p.active() {
			err = n.handleMessage(p, env, msg)
		} else {
			err = n.handleHandshake(p, msg)
		}
		if err != nil {
			return err
		}
	}
}

// versionFor builds the version announcing this node to p.
func (n *Node) versionFor(p *peer) *wire.Version {
	v := &wire.Version{
		ProtocolVersion: n.cfg.Config.ProtocolVersion,
		Services:        n.cfg.Config.Services,
		Timestamp:       time.Now().Unix(),
		Nonce:           n.nonce,
		UserAgent:       n.cfg.Config.UserAgent,
		Streams:         n.streams,
	}
	if ap, err := netip.ParseAddrPort(string(p.addr)); err == nil {
		v.AddrRecv = wire.ServiceAddr{Services: wire.ServiceNetwork, IP: ap.Addr().As16(), Port: ap.Port()}
	}
	if ap, err := netip.ParseAddrPort(string(n.addr)); err == nil {
		// the listen IP is usually a wildcard; peers use the socket address
		v.AddrFrom = wire.ServiceAddr{
			Services: n.cfg.Config.Services,
			IP:       netip.IPv6Loopback().As16(),
			Port:     ap.Port(),
		}
	}
	return v
}

// handleHandshake processes version and verack. The peer becomes active
// once it has sent an acceptable version and acknowledged ours.
func (n *Node) handleHandshake(p *peer, msg wire.Payload) error {
	switch m := msg.(type) {
	case *wire.Version:
		if p.version != nil {
			return fmt.Errorf("%w: duplicate version", ErrUnexpectedMessage)
		}
		if err := n.checkVersion(m); err != nil {
			return err
		}
		p.version = m
		p.streams = m.Streams.Intersect(n.streams)
		n.sendAsync(p, &wire.Verack{})
	case *wire.Verack:
		if p.verackRecv {
			return fmt.Errorf("%w: duplicate verack", ErrUnexpectedMessage)
		}
		p.verackRecv = true
	default:
		return fmt.Errorf("%w: %s before handshake", ErrUnexpectedMessage, msg.Command())
	}

	if p.version == nil || !p.verackRecv {
		return nil
	}
	if err := p.setState(StateActive); err != nil {
		return err
	}
	n.onActive(p)
	return nil
}

func (n *Node) checkVersion(v *wire.Version) error {
	if v.Nonce == n.nonce {
		return ErrSelfConnection
	}
	if v.ProtocolVersion < n.cfg.Config.ProtocolVersion {
		return fmt.Errorf("%w: %d < %d", ErrVersionTooOld, v.ProtocolVersion, n.cfg.Config.ProtocolVersion)
	}
	if !wire.StreamsOverlap(v.Streams, n.streams) {
		return fmt.Errorf("%w: remote %v, local %v", ErrNoCommonStream,
			wire.SortedStreams(v.Streams), wire.SortedStreams(n.streams))
	}
	skew := time.Since(time.Unix(v.Timestamp, 0))
	if skew > maxClockSkew || skew < -maxClockSkew {
		return fmt.Errorf("%w: %s", ErrClockSkew, skew.Round(time.Second))
	}
	return nil
}

// onActive records the peer as a known node and sends it our addresses
// and inventory for the negotiated streams.
func (n *Node) onActive(p *peer) {
	n.log.Info().
		Str("peer", p.id).
		Bool("inbound", p.inbound).
		Str("user_agent", p.version.UserAgent).
		Uints64("streams", wire.SortedStreams(p.streams)).
		Msg("peer active")
	n.emit(Event{Type: EventPeerConnected, PeerID: p.id, PeerAddr: string(p.addr), Inbound: p.inbound})

	if self, ok := n.advertisedAddr(p); ok {
		if _, err := n.cfg.Store.AddNodes([]wire.NetworkAddress{self}); err != nil {
			n.log.Warn().Err(err).Msg("store peer address")
		}
	}

	nodes, err := n.cfg.Store.GetNodes(p.streams)
	if err != nil {
		n.log.Warn().Err(err).Msg("load known nodes")
	}
	nodes = slices.DeleteFunc(nodes, func(a wire.NetworkAddress) bool {
		return a.Key() == string(p.addr) || !routable(a)
	})
	if limit := n.registry.Limits().MaxAddrLength; len(nodes) > limit {
		nodes = nodes[:limit]
	}
	if len(nodes) > 0 {
		n.sendAsync(p, &wire.Addr{Addresses: nodes})
	}

	inv, err := n.cfg.Store.Inventory(p.streams)
	if err != nil {
		n.log.Warn().Err(err).Msg("load inventory")
		return
	}
	n.sendInv(p, inv)
}

// advertisedAddr is the dialable address of p: the dialed address for
// outbound peers, the socket IP with the announced port for inbound ones.
func (n *Node) advertisedAddr(p *peer) (wire.NetworkAddress, bool) {
	ap, err := netip.ParseAddrPort(string(p.addr))
	if err != nil {
		return wire.NetworkAddress{}, false
	}
	if p.inbound {
		if p.version.AddrFrom.Port == 0 {
			return wire.NetworkAddress{}, false
		}
		ap = netip.AddrPortFrom(ap.Addr(), p.version.AddrFrom.Port)
	}
	a := wire.NewNetworkAddress(ap, p.version.Services, wire.SortedStreams(p.version.Streams)...)
	return a, true
}

func routable(a wire.NetworkAddress) bool {
	ip := netip.AddrFrom16(a.IP).Unmap()
	return a.Port != 0 && ip.IsValid() && !ip.IsUnspecified() && !ip.IsMulticast()
}
