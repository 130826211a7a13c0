package p2p

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"bmnode/internal/metrics"
	"bmnode/internal/netx"
	"bmnode/internal/wire"
)

type peer struct {
	id      string
	addr    netx.Addr
	inbound bool
	conn    netx.Conn

	state connState

	// written by the read goroutine during the handshake, read-only once
	// the peer is active
	version      *wire.Version
	streams      wire.StreamSet
	verackRecv   bool
	handshakeEnd time.Time

	sendCh    chan wire.Payload
	lastWrite atomic.Int64

	// vectors asked for by getdata, served by the write loop
	reqMu     sync.Mutex
	requested []wire.InventoryVector
	reqReady  chan struct{}

	lastRead  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// PeerSnapshot is a read-only view of a connection.
type PeerSnapshot struct {
	ID              string
	Addr            string
	Inbound         bool
	State           State
	ProtocolVersion uint32
	UserAgent       string
	Streams         []uint64
}

func (n *Node) newPeer(conn netx.Conn, inbound bool) *peer {
	pctx, cancel := context.WithCancel(n.ctx)
	n.mu.Lock()
	n.seq++
	id := fmt.Sprintf("%s#%d", conn.RemoteAddr(), n.seq)
	n.mu.Unlock()

	p := &peer{
		id:       id,
		addr:     conn.RemoteAddr(),
		inbound:  inbound,
		conn:     conn,
		sendCh:   make(chan wire.Payload, sendBuffer),
		reqReady: make(chan struct{}, 1),
		ctx:      pctx,
		cancel:   cancel,
	}
	now := time.Now().UnixNano()
	p.lastRead.Store(now)
	p.lastWrite.Store(now)
	metrics.ConnectionTransition(string(dirOf(inbound)), "", StateConnecting.String())
	return p
}

func (p *peer) direction() direction { return dirOf(p.inbound) }

func (p *peer) active() bool { return p.state.Load() == StateActive }

// setState moves p to next and keeps the connection gauges in step.
func (p *peer) setState(next State) error {
	prev, err := p.state.To(next)
	if err != nil {
		return err
	}
	to := next.String()
	if next == StateClosed {
		to = ""
	}
	metrics.ConnectionTransition(string(p.direction()), prev.String(), to)
	return nil
}

// servesStream reports whether stream was negotiated with p.
func (p *peer) servesStream(stream uint64) bool {
	return p.streams != nil && p.streams.Contains(stream)
}

func (n *Node) addPeer(p *peer) {
	n.mu.Lock()
	n.peers[p.id] = p
	n.mu.Unlock()
}

// removePeer closes p and gives its admission slot back. Safe to call
// more than once and from any goroutine.
func (n *Node) removePeer(p *peer, cause error) {
	p.once.Do(func() {
		wasActive := p.active()
		_ = p.setState(StateClosing)

		n.mu.Lock()
		delete(n.peers, p.id)
		n.mu.Unlock()

		p.cancel()
		_ = p.conn.Close()
		_ = p.setState(StateClosed)
		n.admit.release(p.direction())

		reason := disconnectReason(cause)
		metrics.Disconnect(reason)
		n.Logf("peer %s closed: %s (%v)", p.id, reason, cause)

		if wasActive {
			e := Event{Type: EventPeerDisconnected, PeerID: p.id, PeerAddr: string(p.addr), Inbound: p.inbound}
			if cause != nil {
				e.Err = cause.Error()
			}
			n.emit(e)
		}
	})
}

// activePeers returns the active peers serving stream, except skip.
func (n *Node) activePeers(stream uint64, skip *peer) []*peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*peer, 0, len(n.peers))
	for _, p := range n.peers {
		if p == skip || !p.active() || !p.servesStream(stream) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// connectedTo reports whether a connection to addr exists or addr is the
// node's own listen address.
func (n *Node) connectedTo(addr netx.Addr) bool {
	if addr == n.addr {
		return true
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, p := range n.peers {
		if p.addr == addr {
			return true
		}
	}
	return false
}

// PeerCount returns the number of active peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c := 0
	for _, p := range n.peers {
		if p.active() {
			c++
		}
	}
	return c
}

// SnapshotPeers returns every open connection, sorted by id.
func (n *Node) SnapshotPeers() []PeerSnapshot {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]PeerSnapshot, 0, len(n.peers))
	for _, p := range n.peers {
		ps := PeerSnapshot{
			ID:      p.id,
			Addr:    string(p.addr),
			Inbound: p.inbound,
			State:   p.state.Load(),
		}
		if ps.State == StateActive {
			ps.ProtocolVersion = p.version.ProtocolVersion
			ps.UserAgent = p.version.UserAgent
			ps.Streams = wire.SortedStreams(p.streams)
		}
		out = append(out, ps)
	}
	slices.SortFunc(out, func(a, b PeerSnapshot) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
