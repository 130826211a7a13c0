// Package discovery finds nodes on the local network. A node that runs a
// responder answers an enveloped ping on the LAN port with an addr
// carrying its own listen port and streams.
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"bmnode/internal/wire"
)

// LANConfig controls LAN discovery behavior.
type LANConfig struct {
	Port    int
	Timeout time.Duration
	Magic   wire.Magic

	// Streams filters replies; nil accepts every stream.
	Streams wire.StreamSet
}

const (
	DefaultLANPort    = 8445
	DefaultLANTimeout = 1 * time.Second

	maxDatagram = 2048
)

// DefaultLANConfig returns the default settings for LAN discovery.
func DefaultLANConfig() LANConfig {
	return LANConfig{
		Port:    DefaultLANPort,
		Timeout: DefaultLANTimeout,
		Magic:   wire.DefaultMagic,
	}
}

var registry = wire.NewRegistry(wire.Limits{
	MaxPayloadLength:   maxDatagram,
	MaxInventoryLength: 1,
	MaxAddrLength:      8,
})

// StartLANResponder listens for LAN discovery pings and replies with the
// node's listen port and streams. It runs until ctx is done.
func StartLANResponder(ctx context.Context, cfg LANConfig, listenPort uint16, streams wire.StreamSet) error {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var ctrlErr error
			if network == "udp4" || network == "udp" {
				ctrlErr = c.Control(func(fd uintptr) {
					// Allow multiple sockets to bind the same addr:port.
					_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
					_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				})
			}
			return ctrlErr
		},
	}

	conn, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("lan responder listen: %w", err)
	}
	udpConn, ok := conn.(*net.UDPConn)
	if !ok {
		conn.Close()
		return fmt.Errorf("lan responder: not a UDPConn")
	}

	// the IP is left unspecified; the asking side fills in the sender
	self := wire.NewNetworkAddress(netip.AddrPortFrom(netip.IPv6Unspecified(), listenPort),
		wire.ServiceNetwork, wire.SortedStreams(streams)...)

	go func() {
		defer udpConn.Close()

		buf := make([]byte, maxDatagram)
		for {
			if ctx.Err() != nil {
				return
			}
			_ = udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))

			n, from, err := udpConn.ReadFromUDP(buf)
			if err != nil {
				continue
			}
			p, err := decodeDatagram(buf[:n], cfg.Magic)
			if err != nil {
				continue
			}
			if _, ok := p.(*wire.Ping); !ok {
				continue
			}

			self.Time = time.Now().Unix()
			frame, err := wire.Frame(cfg.Magic, &wire.Addr{Addresses: []wire.NetworkAddress{self}})
			if err != nil {
				continue
			}
			_, _ = udpConn.WriteToUDP(frame, from)
		}
	}()

	return nil
}

// DiscoverLANPeers broadcasts a ping on the LAN and returns the nodes that
// answer within cfg.Timeout.
//
// It does NOT connect itself; the caller can decide what to do with the list.
func DiscoverLANPeers(ctx context.Context, cfg LANConfig) ([]wire.NetworkAddress, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero})
	if err != nil {
		return nil, fmt.Errorf("lan discover listen: %w", err)
	}
	defer conn.Close()

	ping, err := wire.Frame(cfg.Magic, &wire.Ping{})
	if err != nil {
		return nil, err
	}

	targets := interfaceBroadcastAddrs(cfg.Port)
	if len(targets) == 0 {
		// fall back to limited broadcast
		targets = append(targets, &net.UDPAddr{IP: net.IPv4bcast, Port: cfg.Port})
	}
	for _, dst := range targets {
		// unreachable broadcast domains are normal on multi-homed hosts
		_, _ = conn.WriteToUDP(ping, dst)
	}
	loop := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: cfg.Port}
	if _, err := conn.WriteToUDP(ping, loop); err != nil && !errors.Is(err, syscall.ECONNREFUSED) {
		return nil, fmt.Errorf("lan discover ping: %w", err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("lan discover set deadline: %w", err)
	}

	seen := make(map[string]struct{})
	out := make([]wire.NetworkAddress, 0, 4)
	buf := make([]byte, maxDatagram)

	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		p, err := decodeDatagram(buf[:n], cfg.Magic)
		if err != nil {
			continue
		}
		addr, ok := p.(*wire.Addr)
		if !ok {
			continue
		}
		for _, a := range addr.Addresses {
			a = fromSender(a, from)
			if cfg.Streams != nil && !wire.StreamsOverlap(a.Streams, cfg.Streams) {
				continue
			}
			if _, dup := seen[a.Key()]; dup {
				continue
			}
			seen[a.Key()] = struct{}{}
			out = append(out, a)
		}
	}

	return out, nil
}

func decodeDatagram(b []byte, magic wire.Magic) (wire.Payload, error) {
	env, err := wire.DecodeEnvelope(bytes.NewReader(b), magic, maxDatagram)
	if err != nil {
		return nil, err
	}
	return registry.Decode(env)
}

// fromSender replaces an unspecified announced IP with the datagram source.
func fromSender(a wire.NetworkAddress, sender *net.UDPAddr) wire.NetworkAddress {
	ip := netip.AddrFrom16(a.IP).Unmap()
	if !ip.IsUnspecified() || sender == nil {
		return a
	}
	if src, ok := netip.AddrFromSlice(sender.IP); ok {
		a.IP = src.Unmap().As16()
	}
	return a
}

func interfaceBroadcastAddrs(port int) []*net.UDPAddr {
	out := make([]*net.UDPAddr, 0, 8)

	ifaces, err := net.Interfaces()
	if err != nil {
		return out
	}

	for _, it := range ifaces {
		// skip down interfaces
		if it.Flags&net.FlagUp == 0 {
			continue
		}
		// skip point-to-point/tunnel-ish
		if it.Flags&net.FlagPointToPoint != 0 {
			continue
		}

		addrs, err := it.Addrs()
		if err != nil {
			continue
		}

		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP == nil {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}

			// compute broadcast = ip | ^mask
			mask := ipnet.Mask
			if len(mask) != 4 {
				continue
			}
			b := net.IPv4(
				ip4[0]|^mask[0],
				ip4[1]|^mask[1],
				ip4[2]|^mask[2],
				ip4[3]|^mask[3],
			)
			out = append(out, &net.UDPAddr{IP: b, Port: port})
		}
	}
	return out
}
