package p2p

import (
	"context"
	"crypto/sha512"
	"fmt"
	"sync"
	"time"

	"bmnode/internal/metrics"
	"bmnode/internal/pow"
	"bmnode/internal/wire"
)

// powJobs tracks running local searches by the initial hash of the
// object they solve. Each search has its own id so that concurrent
// searches for one object unregister independently.
type powJobs struct {
	mu   sync.Mutex
	seq  uint64
	jobs map[[sha512.Size]byte]map[uint64]context.CancelCauseFunc
}

func newPowJobs() *powJobs {
	return &powJobs{jobs: make(map[[sha512.Size]byte]map[uint64]context.CancelCauseFunc)}
}

func (j *powJobs) add(ih [sha512.Size]byte, cancel context.CancelCauseFunc) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	if j.jobs[ih] == nil {
		j.jobs[ih] = make(map[uint64]context.CancelCauseFunc)
	}
	j.jobs[ih][j.seq] = cancel
	return j.seq
}

func (j *powJobs) done(ih [sha512.Size]byte, id uint64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.jobs[ih], id)
	if len(j.jobs[ih]) == 0 {
		delete(j.jobs, ih)
	}
}

// supersede cancels every search for ih.
func (j *powJobs) supersede(ih [sha512.Size]byte) {
	j.mu.Lock()
	cancels := j.jobs[ih]
	delete(j.jobs, ih)
	j.mu.Unlock()
	for _, c := range cancels {
		c(ErrSuperseded)
	}
}

// len returns the number of running searches.
func (j *powJobs) len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	c := 0
	for _, m := range j.jobs {
		c += len(m)
	}
	return c
}

// Submit solves the proof-of-work for obj, stores it and announces it to
// active peers on its stream. The search stops with ErrSuperseded if the
// same object arrives from the network first, ErrNodeStopped on Stop, or
// ctx's error when ctx ends. On success obj carries its nonce.
func (n *Node) Submit(ctx context.Context, obj wire.Object) (wire.InventoryVector, error) {
	var zero wire.InventoryVector
	if !n.streams.Contains(obj.StreamNumber()) {
		return zero, fmt.Errorf("%w: %d", ErrStream, obj.StreamNumber())
	}
	if err := n.cfg.Config.StorageOptions().CheckExpiry(obj.Header().ExpiresTime); err != nil {
		return zero, err
	}
	body, err := wire.ObjectBody(obj)
	if err != nil {
		return zero, err
	}

	ih := pow.InitialHash(body)
	ttl := obj.Header().TTL(time.Now())
	target := pow.Target(len(body)+wire.NonceSize, ttl, n.cfg.Config.Difficulty())

	jctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(n.ctx, func() { cancel(ErrNodeStopped) })
	defer stop()
	id := n.jobs.add(ih, cancel)
	defer n.jobs.done(ih, id)

	start := time.Now()
	res, err := n.engine.Search(jctx, ih, target)
	if err != nil {
		return zero, context.Cause(jctx)
	}
	metrics.PoWSolved(time.Since(start))
	n.Logf("solved %s after %d trials in %s", obj.Command(), res.Trials, time.Since(start).Round(time.Millisecond))

	obj.SetNonce(res.Nonce)
	payload, err := wire.Serialize(obj)
	if err != nil {
		return zero, err
	}
	vec, _, err := n.storeObject(nil, payload, obj)
	if err != nil {
		return zero, err
	}
	return vec, nil
}
