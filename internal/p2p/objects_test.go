package p2p

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"bmnode/internal/config"
	"bmnode/internal/pow"
	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

func TestSubmitRelaysAcrossTriangle(t *testing.T) {
	a := newTestNode(t, "a")
	b := newTestNode(t, "b")
	c := newTestNode(t, "c")
	connectTriangle(t, a, b, c)

	msg := newMsg(t, newKey(t).PubKey(), "hello", time.Hour)
	vec, err := a.Submit(testContext(t), msg)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if !hasObject(a, vec) {
		t.Fatalf("submitted object not stored")
	}

	for _, n := range []*Node{a, b, c} {
		eventually(t, 3*time.Second, func() bool { return hasObject(n, vec) },
			"%s never received %s", n.Name(), vec)
	}

	payload, err := wire.Serialize(msg)
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if wire.InventoryHash(payload) != vec {
		t.Fatalf("vector does not match the solved payload")
	}
	if !pow.Check(payload, msg.TTL(time.Now()), a.cfg.Config.Difficulty()) {
		t.Fatalf("submitted object fails its own proof-of-work check")
	}
}

func TestInventorySyncOnConnect(t *testing.T) {
	a := newTestNode(t, "a")
	vec, err := a.Submit(testContext(t), newMsg(t, newKey(t).PubKey(), "stored before b exists", time.Hour))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	b := newTestNode(t, "b")
	connect(t, b, a)
	eventually(t, 3*time.Second, func() bool { return hasObject(b, vec) },
		"b did not fetch a's inventory on connect")
	eventually(t, time.Second, func() bool {
		b.requested.mu.Lock()
		defer b.requested.mu.Unlock()
		_, pending := b.requested.items[vec.String()]
		return !pending
	}, "request for a stored object still tracked")
}

func TestObjectOutsideNegotiatedStreamNotRelayed(t *testing.T) {
	a := newTestNode(t, "a", WithStreams(1, 2))
	b := newTestNode(t, "b", WithStreams(1))
	connect(t, b, a)
	waitPeers(t, b, 1, 3*time.Second)

	msg := newMsg(t, newKey(t).PubKey(), "stream two", time.Hour)
	msg.Stream = 2
	vec, err := a.Submit(testContext(t), msg)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if hasObject(b, vec) {
		t.Fatalf("object on stream 2 reached a stream 1 node")
	}
}

func TestEncryptedDelivery(t *testing.T) {
	key := newKey(t)
	other := newKey(t)

	a := newTestNode(t, "a")
	b := newTestNode(t, "b", WithKeys(other))
	c := newTestNode(t, "c", WithKeys(other, key))
	connectTriangle(t, a, b, c)

	msg := newMsg(t, key.PubKey(), "for c only", time.Hour)
	vec, err := a.Submit(testContext(t), msg)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case d := <-c.Incoming():
		if d.Vector != vec || d.Command != wire.CmdMsg {
			t.Fatalf("unexpected delivery %+v", d)
		}
		if !bytes.Equal(d.Plaintext, []byte("for c only")) {
			t.Fatalf("plaintext = %q", d.Plaintext)
		}
		if d.Key != key {
			t.Fatalf("delivered under the wrong key")
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("c got no delivery")
	}

	eventually(t, 3*time.Second, func() bool { return hasObject(b, vec) }, "b never stored the object")
	select {
	case d := <-b.Incoming():
		t.Fatalf("b decrypted an object not addressed to it: %+v", d)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubmitRejectsUnservedStream(t *testing.T) {
	a := newTestNode(t, "a")
	msg := newMsg(t, newKey(t).PubKey(), "x", time.Hour)
	msg.Stream = 7
	if _, err := a.Submit(testContext(t), msg); !errors.Is(err, ErrStream) {
		t.Fatalf("Submit = %v, want ErrStream", err)
	}
}

func TestSubmitRejectsBadExpiry(t *testing.T) {
	a := newTestNode(t, "a")
	cases := map[string]struct {
		ttl  time.Duration
		want error
	}{
		"expired":  {ttl: -time.Minute, want: storage.ErrExpired},
		"too long": {ttl: 60 * 24 * time.Hour, want: storage.ErrTTLTooLong},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			msg := newMsg(t, newKey(t).PubKey(), "x", tc.ttl)
			if _, err := a.Submit(testContext(t), msg); !errors.Is(err, tc.want) {
				t.Fatalf("Submit = %v, want %v", err, tc.want)
			}
		})
	}
}

// hard makes a node whose proof-of-work cannot finish during a test.
func hard() nodeTestOpt {
	return WithConfig(func(c *config.Config) { c.TrialsPerByte = 1 << 40 })
}

func submitAsync(n *Node, ctx context.Context, obj wire.Object) <-chan error {
	errc := make(chan error, 1)
	go func() {
		_, err := n.Submit(ctx, obj)
		errc <- err
	}()
	return errc
}

func waitErr(t *testing.T, errc <-chan error, want error) {
	t.Helper()
	select {
	case err := <-errc:
		if !errors.Is(err, want) {
			t.Fatalf("Submit = %v, want %v", err, want)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Submit did not return")
	}
}

func TestSubmitCancelledByContext(t *testing.T) {
	a := newTestNode(t, "a", hard())
	ctx, cancel := context.WithCancel(testContext(t))
	errc := submitAsync(a, ctx, newMsg(t, newKey(t).PubKey(), "x", time.Hour))

	eventually(t, time.Second, func() bool { return a.jobs.len() == 1 }, "search never started")
	cancel()
	waitErr(t, errc, context.Canceled)
	if a.jobs.len() != 0 {
		t.Fatalf("job not unregistered")
	}
}

func TestSubmitCancelledByStop(t *testing.T) {
	a := newTestNode(t, "a", hard())
	errc := submitAsync(a, testContext(t), newMsg(t, newKey(t).PubKey(), "x", time.Hour))

	eventually(t, time.Second, func() bool { return a.jobs.len() == 1 }, "search never started")
	if err := a.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitErr(t, errc, ErrNodeStopped)
}

func TestSubmitSupersededByNetworkCopy(t *testing.T) {
	a := newTestNode(t, "a", hard())
	msg := newMsg(t, newKey(t).PubKey(), "x", time.Hour)
	body, err := wire.ObjectBody(msg)
	if err != nil {
		t.Fatalf("ObjectBody: %v", err)
	}
	errc := submitAsync(a, testContext(t), msg)

	eventually(t, time.Second, func() bool { return a.jobs.len() == 1 }, "search never started")
	// what handleObject does when the same object arrives solved
	a.jobs.supersede(pow.InitialHash(body))
	waitErr(t, errc, ErrSuperseded)
}

func TestInventorySyncOfManyObjects(t *testing.T) {
	const count = 1200
	a := newTestNode(t, "a")
	pub := newKey(t).PubKey()
	vecs := make([]wire.InventoryVector, 0, count)
	for i := 0; i < count; i++ {
		vec, err := a.Submit(testContext(t), newMsg(t, pub, fmt.Sprintf("object %d", i), 10*time.Minute))
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		vecs = append(vecs, vec)
	}

	b := newTestNode(t, "b")
	connect(t, b, a)
	fetched := func() int {
		c := 0
		for _, v := range vecs {
			if hasObject(b, v) {
				c++
			}
		}
		return c
	}
	eventually(t, 20*time.Second, func() bool { return fetched() == count },
		"b fetched %d/%d objects", fetched(), count)
	if a.PeerCount() != 1 || b.PeerCount() != 1 {
		t.Fatalf("connection dropped during sync: a=%d b=%d", a.PeerCount(), b.PeerCount())
	}
}

func TestInvRequestsEachVectorOnce(t *testing.T) {
	n := newTestNode(t, "n")
	p := &peer{id: "remote", sendCh: make(chan wire.Payload, 4)}
	v1, v2 := wire.InventoryVector{1}, wire.InventoryVector{2}

	if err := n.handleInv(p, &wire.Inv{Vectors: []wire.InventoryVector{v1, v2, v1}}); err != nil {
		t.Fatalf("handleInv: %v", err)
	}
	select {
	case msg := <-p.sendCh:
		gd, ok := msg.(*wire.GetData)
		if !ok {
			t.Fatalf("sent %T, want getdata", msg)
		}
		if len(gd.Vectors) != 2 || gd.Vectors[0] != v1 || gd.Vectors[1] != v2 {
			t.Fatalf("getdata vectors = %v", gd.Vectors)
		}
	default:
		t.Fatalf("no getdata sent")
	}

	// already requested from this peer within the request window
	if err := n.handleInv(p, &wire.Inv{Vectors: []wire.InventoryVector{v2}}); err != nil {
		t.Fatalf("handleInv: %v", err)
	}
	if len(p.sendCh) != 0 {
		t.Fatalf("vector requested twice")
	}
}

func TestGetDataBacklog(t *testing.T) {
	n := newTestNode(t, "n")
	p := &peer{id: "remote", reqReady: make(chan struct{}, 1), streams: wire.NewStreamSet(1)}

	msg := newMsg(t, newKey(t).PubKey(), "stored", time.Hour)
	vec, err := n.Submit(testContext(t), msg)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	unknown := wire.InventoryVector{9}
	if err := n.handleGetData(p, &wire.GetData{Vectors: []wire.InventoryVector{unknown, vec}}); err != nil {
		t.Fatalf("handleGetData: %v", err)
	}
	if len(p.reqReady) != 1 {
		t.Fatalf("write loop not woken")
	}

	got, err := n.nextRequested(p)
	if err != nil {
		t.Fatalf("nextRequested: %v", err)
	}
	raw, ok := got.(*wire.RawPayload)
	if !ok || raw.Cmd != wire.CmdMsg || wire.InventoryHash(raw.Data) != vec {
		t.Fatalf("nextRequested = %#v, want the stored msg", got)
	}
	if got, err := n.nextRequested(p); got != nil || err != nil {
		t.Fatalf("empty backlog returned %v, %v", got, err)
	}

	flood := make([]wire.InventoryVector, n.maxRequested()+1)
	if err := n.handleGetData(p, &wire.GetData{Vectors: flood}); !errors.Is(err, ErrSendBufferFull) {
		t.Fatalf("oversized backlog = %v, want ErrSendBufferFull", err)
	}
}

func TestConcurrentSubmitsOfOneObjectSupersededTogether(t *testing.T) {
	a := newTestNode(t, "a", hard())
	msg := newMsg(t, newKey(t).PubKey(), "x", time.Hour)
	twin := *msg
	body, err := wire.ObjectBody(msg)
	if err != nil {
		t.Fatalf("ObjectBody: %v", err)
	}

	ctx, cancel := context.WithCancel(testContext(t))
	first := submitAsync(a, ctx, msg)
	second := submitAsync(a, testContext(t), &twin)
	eventually(t, time.Second, func() bool { return a.jobs.len() == 2 }, "searches never started")

	cancel()
	waitErr(t, first, context.Canceled)
	if got := a.jobs.len(); got != 1 {
		t.Fatalf("%d searches registered after one ended, want 1", got)
	}

	a.jobs.supersede(pow.InitialHash(body))
	waitErr(t, second, ErrSuperseded)
}
