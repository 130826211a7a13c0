package pow

import (
	"context"
	"crypto/sha512"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// checkEvery is how many trials a worker runs between cancellation checks.
const checkEvery = 1 << 12

var errSolved = errors.New("pow: solved")

// Result describes a finished search.
type Result struct {
	Nonce  uint64
	Trials uint64
}

// Engine runs nonce searches across a fixed number of workers.
type Engine struct {
	workers int

	mu   sync.Mutex
	seed Seed
}

// NewEngine returns an engine using workers goroutines per search; zero or
// less means one per CPU.
func NewEngine(workers int) (*Engine, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return &Engine{workers: workers, seed: seed}, nil
}

// Workers returns the fan-out of each search.
func (e *Engine) Workers() int { return e.workers }

// DoPOW searches for a nonce whose trial value against body is at most
// target. It only fails when ctx is done, in which case ctx.Err() is
// returned and nothing else is observable.
func (e *Engine) DoPOW(ctx context.Context, body []byte, target uint64) (Result, error) {
	return e.Search(ctx, InitialHash(body), target)
}

// Search is DoPOW for a precomputed initial hash. The nonce space is split
// into one contiguous range per worker, all shifted by a random base so
// repeated searches do not start from the same place. The first worker to
// satisfy the target cancels the rest.
func (e *Engine) Search(ctx context.Context, initialHash [sha512.Size]byte, target uint64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	e.mu.Lock()
	base, next := e.seed.Next()
	e.seed = next
	e.mu.Unlock()

	var (
		once   sync.Once
		found  Result
		trials atomic.Uint64
	)
	span := ^uint64(0) / uint64(e.workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < e.workers; w++ {
		start := base + uint64(w)*span
		g.Go(func() error {
			var n uint64
			for i := uint64(0); i < span; i++ {
				if i%checkEvery == 0 {
					if err := gctx.Err(); err != nil {
						trials.Add(n)
						return err
					}
				}
				nonce := start + i
				n++
				if TrialValue(nonce, initialHash) <= target {
					trials.Add(n)
					once.Do(func() { found.Nonce = nonce })
					return errSolved
				}
			}
			trials.Add(n)
			return nil
		})
	}

	err := g.Wait()
	switch {
	case errors.Is(err, errSolved):
		found.Trials = trials.Load()
		return found, nil
	case ctx.Err() != nil:
		return Result{}, ctx.Err()
	case err != nil:
		return Result{}, err
	}
	// Every range exhausted without a hit; only reachable with a target
	// so small that no nonce exists.
	return Result{}, errors.New("pow: nonce space exhausted")
}
