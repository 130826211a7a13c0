package p2p

import (
	"errors"
	"time"

	"bmnode/internal/crypto/ecies"
	"bmnode/internal/metrics"
	"bmnode/internal/pow"
	"bmnode/internal/wire"
)

// handleObject checks an object received from p and, if it is new, stores
// it, relays it, and tries the node's keys on it. Objects that fail a check
// are dropped without telling the peer.
func (n *Node) handleObject(p *peer, payload []byte, obj wire.Object) {
	cmd := obj.Command()
	if outcome := n.checkObject(p, payload, obj); outcome != "" {
		metrics.Object(cmd, outcome)
		n.Logf("dropping %s from %s: %s", cmd, p.id, outcome)
		return
	}

	// a local search for the same object is now pointless
	n.jobs.supersede(pow.InitialHash(payload[wire.NonceSize:]))

	vec, inserted, err := n.storeObject(p, payload, obj)
	switch {
	case err != nil:
		metrics.Object(cmd, "rejected")
		n.Logf("store %s from %s: %v", cmd, p.id, err)
		return
	case !inserted:
		metrics.Object(cmd, "duplicate")
		return
	}
	metrics.Object(cmd, "accepted")
	n.emit(Event{Type: EventObjectReceived, PeerID: p.id, PeerAddr: string(p.addr), Command: cmd, Vector: vec.String()})
	n.tryDecrypt(vec, obj)
}

// checkObject returns the drop reason for obj, or "" if it is acceptable.
func (n *Node) checkObject(p *peer, payload []byte, obj wire.Object) string {
	if !p.servesStream(obj.StreamNumber()) {
		return "stream"
	}
	opts := n.cfg.Config.StorageOptions()
	if err := opts.CheckExpiry(obj.Header().ExpiresTime); err != nil {
		return "expiry"
	}
	ttl := obj.Header().TTL(time.Now())
	if !pow.Check(payload, ttl, n.cfg.Config.Difficulty()) {
		return "pow"
	}
	return ""
}

// tryDecrypt delivers msg and broadcast objects that open under one of the
// configured keys. Integrity failures only mean the object is for someone
// else.
func (n *Node) tryDecrypt(vec wire.InventoryVector, obj wire.Object) {
	var enc *wire.EncryptedObject
	switch o := obj.(type) {
	case *wire.Msg:
		enc = &o.Encrypted
	case *wire.Broadcast:
		enc = &o.Encrypted
	default:
		return
	}
	for _, k := range n.cfg.Keys {
		pt, err := ecies.Decrypt(enc, k)
		switch {
		case err == nil:
			n.deliver(Delivery{Vector: vec, Command: obj.Command(), Object: obj, Plaintext: pt, Key: k})
			return
		case errors.Is(err, ecies.ErrIntegrity), errors.Is(err, ecies.ErrInvalidPublicKey):
			continue
		default:
			n.log.Warn().Err(err).Str("vector", vec.String()).Msg("decrypt failed")
		}
	}
}
