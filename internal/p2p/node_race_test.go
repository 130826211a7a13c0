package p2p

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"bmnode/internal/wire"
)

// TestRelayRaceHarness is a small scenario designed to exercise concurrency
// under `go test -race`, not to assert business logic.
func TestRelayRaceHarness(t *testing.T) {
	n1 := newTestNode(t, "n1")
	n2 := newTestNode(t, "n2")

	connect(t, n2, n1)
	waitPeers(t, n1, 1, 5*time.Second)
	waitPeers(t, n2, 1, 5*time.Second)

	done := make(chan struct{})
	defer close(done)

	drainIncomingForever(t, n1, done)
	drainIncomingForever(t, n2, done)

	key := newKey(t)
	const loops = 10

	var wg sync.WaitGroup

	wg.Add(4)

	for _, n := range []*Node{n1, n2} {
		n := n
		msgs := make([]*wire.Msg, loops)
		for i := range msgs {
			msgs[i] = newMsg(t, key.PubKey(), fmt.Sprintf("%s %d", n.Name(), i), time.Hour)
		}
		go func() {
			defer wg.Done()
			for _, msg := range msgs {
				if _, err := n.Submit(testContext(t), msg); err != nil {
					t.Errorf("%s Submit: %v", n.Name(), err)
					return
				}
			}
		}()
	}

	// Also hammer SnapshotPeers concurrently to exercise the RWMutex.
	for _, n := range []*Node{n1, n2} {
		n := n
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(1 * time.Second)
			for time.Now().Before(deadline) {
				_ = n.SnapshotPeers()
				time.Sleep(5 * time.Millisecond)
			}
		}()
	}

	wg.Wait()

	// Small extra delay to let any in-flight writes finish
	time.Sleep(100 * time.Millisecond)
}
