package bootstrap

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"bmnode/internal/netx"
	"bmnode/internal/storage"
	"bmnode/internal/storage/memstore"
	"bmnode/internal/wire"
)

type fakeDialer struct {
	mu     sync.Mutex
	dialed []netx.Addr
	fail   map[netx.Addr]bool
}

func (f *fakeDialer) ConnectTo(ctx context.Context, addr netx.Addr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialed = append(f.dialed, addr)
	if f.fail[addr] {
		return errors.New("refused")
	}
	return nil
}

func (f *fakeDialer) Logf(string, ...any) {}

type errSource struct{}

func (errSource) Name() string { return "broken" }
func (errSource) Discover(context.Context) ([]netx.Addr, error) {
	return nil, errors.New("unavailable")
}

func TestRunOnceDedupesAndSkips(t *testing.T) {
	d := &fakeDialer{fail: map[netx.Addr]bool{"10.0.0.3:8444": true}}
	cfg := DefaultConfig()
	cfg.Skip = func(a netx.Addr) bool { return a == "10.0.0.2:8444" }

	got := RunOnce(context.Background(), d, cfg,
		StaticSource{Addrs: []netx.Addr{"10.0.0.1:8444", "10.0.0.2:8444", "10.0.0.1:8444"}},
		StaticSource{Addrs: []netx.Addr{"10.0.0.3:8444", ""}, Label: "extra"},
		errSource{},
	)
	if got != 1 {
		t.Fatalf("connected = %d, want 1", got)
	}
	if len(d.dialed) != 2 {
		t.Fatalf("dialed %v, want two distinct addresses", d.dialed)
	}
	for _, a := range d.dialed {
		if a == "10.0.0.2:8444" {
			t.Fatalf("skipped address was dialed")
		}
	}
}

func TestRunOnceCap(t *testing.T) {
	d := &fakeDialer{}
	cfg := DefaultConfig()
	cfg.MaxConnectPerRound = 2

	var addrs []netx.Addr
	for _, s := range []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1", "10.0.0.4:1"} {
		addrs = append(addrs, netx.Addr(s))
	}
	if got := RunOnce(context.Background(), d, cfg, StaticSource{Addrs: addrs}); got != 2 {
		t.Fatalf("connected = %d, want 2", got)
	}
}

func TestStoreSourceFiltersStreams(t *testing.T) {
	s, err := memstore.New(storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	a := wire.NewNetworkAddress(netip.MustParseAddrPort("10.1.0.1:8444"), wire.ServiceNetwork, 1)
	b := wire.NewNetworkAddress(netip.MustParseAddrPort("10.1.0.2:8444"), wire.ServiceNetwork, 2)
	a.Time, b.Time = now.Unix(), now.Unix()
	if _, err := s.AddNodes([]wire.NetworkAddress{a, b}); err != nil {
		t.Fatal(err)
	}

	got, err := StoreSource{Store: s, Streams: wire.NewStreamSet(1)}.Discover(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "10.1.0.1:8444" {
		t.Fatalf("Discover = %v", got)
	}
}
