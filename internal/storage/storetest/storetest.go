// Package storetest is a conformance suite run against every
// storage.Store implementation.
package storetest

import (
	"fmt"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bmnode/internal/storage"
	"bmnode/internal/wire"
)

// Factory opens an empty store using opts.
type Factory func(t *testing.T, opts storage.Options) storage.Store

// Clock is a settable time source for Options.Now.
type Clock struct{ T time.Time }

func (c *Clock) Now() time.Time { return c.T }

func vec(b byte) wire.InventoryVector {
	var v wire.InventoryVector
	v[0] = b
	v[31] = b
	return v
}

func object(b byte, stream uint64, expires time.Time) storage.Object {
	return storage.Object{
		Vector:      vec(b),
		Command:     wire.CmdMsg,
		Stream:      stream,
		ExpiresTime: expires.Unix(),
		Payload:     []byte{b, b, b},
	}
}

func node(i int, t time.Time, streams ...uint64) wire.NetworkAddress {
	ap := netip.MustParseAddrPort(fmt.Sprintf("10.0.0.%d:8444", i))
	a := wire.NewNetworkAddress(ap, wire.ServiceNetwork, streams...)
	a.Time = t.Unix()
	return a
}

// Run exercises the full Store contract.
func Run(t *testing.T, open Factory) {
	start := time.Unix(1_700_000_000, 0)

	setup := func(t *testing.T) (storage.Store, *Clock) {
		clk := &Clock{T: start}
		s := open(t, storage.Options{
			MaxObjectTTL: 24 * time.Hour,
			NodeMaxAge:   time.Hour,
			MaxNodes:     4,
			Now:          clk.Now,
		})
		t.Cleanup(func() { _ = s.Close() })
		return s, clk
	}

	t.Run("FilterNewEmptyStore", func(t *testing.T) {
		s, _ := setup(t)
		in := []wire.InventoryVector{vec(1), vec(2), vec(1), vec(3)}
		got, err := s.FilterNew(in)
		require.NoError(t, err)
		require.Equal(t, in, got)

		got, err = s.FilterNew(nil)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("FilterNewFullStore", func(t *testing.T) {
		s, _ := setup(t)
		for b := byte(1); b <= 3; b++ {
			ok, err := s.PutObject(object(b, 1, start.Add(time.Hour)))
			require.NoError(t, err)
			require.True(t, ok)
		}
		got, err := s.FilterNew([]wire.InventoryVector{vec(1), vec(2), vec(3)})
		require.NoError(t, err)
		require.Empty(t, got)

		got, err = s.FilterNew([]wire.InventoryVector{vec(3), vec(4), vec(2)})
		require.NoError(t, err)
		require.Equal(t, []wire.InventoryVector{vec(4)}, got)
	})

	t.Run("PutObjectOnce", func(t *testing.T) {
		s, _ := setup(t)
		o := object(7, 1, start.Add(time.Hour))
		ok, err := s.PutObject(o)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.PutObject(o)
		require.NoError(t, err)
		require.False(t, ok)

		got, found, err := s.GetObject(o.Vector)
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, o, got)

		_, found, err = s.GetObject(vec(8))
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("PutObjectExpiryChecks", func(t *testing.T) {
		s, _ := setup(t)
		_, err := s.PutObject(object(1, 1, start.Add(-time.Second)))
		require.ErrorIs(t, err, storage.ErrExpired)
		_, err = s.PutObject(object(2, 1, start))
		require.ErrorIs(t, err, storage.ErrExpired)
		_, err = s.PutObject(object(3, 1, start.Add(25*time.Hour)))
		require.ErrorIs(t, err, storage.ErrTTLTooLong)

		got, err := s.FilterNew([]wire.InventoryVector{vec(1), vec(2), vec(3)})
		require.NoError(t, err)
		require.Len(t, got, 3)
	})

	t.Run("InventoryByStream", func(t *testing.T) {
		s, clk := setup(t)
		mustPut(t, s, object(1, 1, start.Add(time.Hour)))
		mustPut(t, s, object(2, 2, start.Add(time.Hour)))
		mustPut(t, s, object(3, 1, start.Add(2*time.Hour)))

		got, err := s.Inventory(wire.NewStreamSet(1))
		require.NoError(t, err)
		require.ElementsMatch(t, []wire.InventoryVector{vec(1), vec(3)}, got)

		got, err = s.Inventory(nil)
		require.NoError(t, err)
		require.Len(t, got, 3)

		clk.T = start.Add(90 * time.Minute)
		got, err = s.Inventory(wire.NewStreamSet(1, 2))
		require.NoError(t, err)
		require.Equal(t, []wire.InventoryVector{vec(3)}, got)
	})

	t.Run("CleanupPurgesExpired", func(t *testing.T) {
		s, _ := setup(t)
		mustPut(t, s, object(1, 1, start.Add(time.Minute)))
		mustPut(t, s, object(2, 1, start.Add(time.Hour)))

		n, err := s.Cleanup(start.Add(time.Minute))
		require.NoError(t, err)
		require.Equal(t, 1, n)

		got, err := s.FilterNew([]wire.InventoryVector{vec(1), vec(2)})
		require.NoError(t, err)
		require.Equal(t, []wire.InventoryVector{vec(1)}, got)
	})

	t.Run("NodesByStream", func(t *testing.T) {
		s, _ := setup(t)
		n, err := s.AddNodes([]wire.NetworkAddress{
			node(1, start, 1),
			node(2, start.Add(time.Second), 2),
			node(3, start.Add(2*time.Second), 1, 2),
		})
		require.NoError(t, err)
		require.Equal(t, 3, n)

		got, err := s.GetNodes(wire.NewStreamSet(1))
		require.NoError(t, err)
		require.Len(t, got, 2)
		require.Equal(t, "10.0.0.3:8444", got[0].Key())
		require.Equal(t, "10.0.0.1:8444", got[1].Key())

		got, err = s.GetNodes(wire.NewStreamSet(9))
		require.NoError(t, err)
		require.Empty(t, got)

		// refresh keeps a single entry with the newer time
		n, err = s.AddNodes([]wire.NetworkAddress{node(1, start.Add(time.Minute), 1), node(2, start.Add(-time.Minute), 2)})
		require.NoError(t, err)
		require.Zero(t, n)
		got, err = s.GetNodes(nil)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, "10.0.0.1:8444", got[0].Key())
		require.Equal(t, start.Add(time.Minute).Unix(), got[0].Time)
	})

	t.Run("NodesBounded", func(t *testing.T) {
		s, _ := setup(t)
		for i := 1; i <= 6; i++ {
			_, err := s.AddNodes([]wire.NetworkAddress{node(i, start.Add(time.Duration(i)*time.Second), 1)})
			require.NoError(t, err)
		}
		got, err := s.GetNodes(nil)
		require.NoError(t, err)
		require.Len(t, got, 4)
		require.Equal(t, "10.0.0.6:8444", got[0].Key())
	})

	t.Run("CleanupDropsStaleNodes", func(t *testing.T) {
		s, _ := setup(t)
		_, err := s.AddNodes([]wire.NetworkAddress{node(1, start, 1), node(2, start.Add(50*time.Minute), 1)})
		require.NoError(t, err)
		_, err = s.Cleanup(start.Add(61 * time.Minute))
		require.NoError(t, err)
		got, err := s.GetNodes(nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "10.0.0.2:8444", got[0].Key())
	})
}

func mustPut(t *testing.T, s storage.Store, o storage.Object) {
	t.Helper()
	ok, err := s.PutObject(o)
	require.NoError(t, err)
	require.True(t, ok)
}
