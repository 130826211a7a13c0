package p2p

import (
	"fmt"
	"time"

	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

// maxAddrFuture bounds how far in the future an announced node time may
// be before it is clamped to now.
const maxAddrFuture = 10 * time.Minute

// handleMessage dispatches one message from an active peer. A returned
// error closes the connection.
func (n *Node) handleMessage(p *peer, env wire.Envelope, msg wire.Payload) error {
	switch m := msg.(type) {
	case *wire.Version, *wire.Verack:
		return fmt.Errorf("%w: %s after handshake", ErrUnexpectedMessage, msg.Command())
	case *wire.Ping:
		n.sendAsync(p, &wire.Pong{})
	case *wire.Pong:
	case *wire.Addr:
		n.handleAddr(p, m)
	case *wire.Inv:
		return n.handleInv(p, m)
	case *wire.GetData:
		return n.handleGetData(p, m)
	case wire.Object:
		n.handleObject(p, env.Payload, m)
	default:
		// registered but not relayed, such as a bare encrypted payload
		n.Logf("ignoring %s from %s", msg.Command(), p.id)
	}
	return nil
}

// handleAddr stores the announced nodes that serve a stream negotiated
// with p.
func (n *Node) handleAddr(p *peer, m *wire.Addr) {
	now := time.Now()
	keep := make([]wire.NetworkAddress, 0, len(m.Addresses))
	for _, a := range m.Addresses {
		if !routable(a) || !wire.StreamsOverlap(a.Streams, p.streams) {
			continue
		}
		if time.Unix(a.Time, 0).After(now.Add(maxAddrFuture)) {
			a.Time = now.Unix()
		}
		keep = append(keep, a)
	}
	if len(keep) == 0 {
		return
	}
	added, err := n.cfg.Store.AddNodes(keep)
	if err != nil {
		n.log.Warn().Err(err).Msg("store addr")
		return
	}
	n.Logf("addr from %s: %d nodes, %d new", p.id, len(keep), added)
}

// handleInv requests the announced objects the store does not hold and
// no other peer has been asked for recently.
func (n *Node) handleInv(p *peer, m *wire.Inv) error {
	fresh, err := n.cfg.Store.FilterNew(m.Vectors)
	if err != nil {
		return fmt.Errorf("filter inventory: %w", err)
	}
	want := fresh[:0]
	for _, v := range fresh {
		if n.requested.Seen(v.String()) {
			continue
		}
		want = append(want, v)
	}
	if len(want) > 0 {
		n.sendAsync(p, &wire.GetData{Vectors: want})
	}
	return nil
}

// handleGetData hands the requested vectors to the write loop, which
// answers with the stored objects in the streams negotiated with p.
func (n *Node) handleGetData(p *peer, m *wire.GetData) error {
	return n.queueRequested(p, m.Vectors)
}

// storeObject inserts a verified object and announces it to every other
// active peer on its stream.
func (n *Node) storeObject(origin *peer, payload []byte, obj wire.Object) (wire.InventoryVector, bool, error) {
	so := storage.Object{
		Vector:      wire.InventoryHash(payload),
		Command:     obj.Command(),
		Stream:      obj.StreamNumber(),
		ExpiresTime: obj.Header().ExpiresTime,
		Payload:     payload,
	}
	inserted, err := n.cfg.Store.PutObject(so)
	if err != nil || !inserted {
		return so.Vector, false, err
	}
	n.requested.Forget(so.Vector.String())
	n.announce(origin, so.Stream, so.Vector)
	return so.Vector, true, nil
}
