package p2p

import (
	"fmt"
	"time"

	"bmnode/internal/wire"
)

// sendBuffer is the per-peer outbound queue length for unsolicited
// messages.
const sendBuffer = 256

// maxRequested bounds the getdata vectors a peer may have outstanding.
func (n *Node) maxRequested() int {
	return 4 * n.registry.Limits().MaxInventoryLength
}

func (n *Node) sendAsync(p *peer, msg wire.Payload) {
	select {
	case p.sendCh <- msg:
		// queued
	default:
		n.Logf("peer %s send buffer full, dropping", p.id)
		go n.removePeer(p, ErrSendBufferFull)
	}
}

// announce sends an inv for vectors to every active peer serving stream
// except origin.
func (n *Node) announce(origin *peer, stream uint64, vectors ...wire.InventoryVector) {
	if len(vectors) == 0 {
		return
	}
	for _, p := range n.activePeers(stream, origin) {
		n.sendInv(p, vectors)
	}
}

// sendInv splits vectors into inv messages no longer than the list limit.
func (n *Node) sendInv(p *peer, vectors []wire.InventoryVector) {
	limit := n.registry.Limits().MaxInventoryLength
	for len(vectors) > 0 {
		k := min(len(vectors), limit)
		n.sendAsync(p, &wire.Inv{Vectors: vectors[:k]})
		vectors = vectors[k:]
	}
}

// queueRequested appends vectors to the getdata backlog of p. The write loop
// drains it one object at a time, so a large request never overruns the
// send queue.
func (n *Node) queueRequested(p *peer, vectors []wire.InventoryVector) error {
	if len(vectors) == 0 {
		return nil
	}
	p.reqMu.Lock()
	if len(p.requested)+len(vectors) > n.maxRequested() {
		pending := len(p.requested)
		p.reqMu.Unlock()
		return fmt.Errorf("%w: %d requested objects pending", ErrSendBufferFull, pending)
	}
	p.requested = append(p.requested, vectors...)
	p.reqMu.Unlock()
	p.signalRequested()
	return nil
}

func (p *peer) signalRequested() {
	select {
	case p.reqReady <- struct{}{}:
	default:
	}
}

// popRequested takes the oldest backlog vector and keeps the write loop
// woken while more remain.
func (p *peer) popRequested() (wire.InventoryVector, bool) {
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	if len(p.requested) == 0 {
		p.requested = nil
		return wire.InventoryVector{}, false
	}
	v := p.requested[0]
	p.requested = p.requested[1:]
	if len(p.requested) > 0 {
		p.signalRequested()
	}
	return v, true
}

// nextRequested returns the next backlog object p may receive, or nil
// when the backlog holds nothing servable. Vectors the store no longer
// holds, expired objects and objects outside the negotiated streams are
// skipped.
func (n *Node) nextRequested(p *peer) (wire.Payload, error) {
	for {
		v, ok := p.popRequested()
		if !ok {
			return nil, nil
		}
		o, found, err := n.cfg.Store.GetObject(v)
		if err != nil {
			return nil, fmt.Errorf("load object: %w", err)
		}
		if !found || !p.servesStream(o.Stream) || o.ExpiresTime <= time.Now().Unix() {
			continue
		}
		return &wire.RawPayload{Cmd: o.Command, Data: o.Payload}, nil
	}
}
