package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"time"
)

// Service bits advertised in version and addr.
const (
	ServiceNetwork uint64 = 1 << 0
)

// serviceAddrSize is services(8) + ip(16) + port(2).
const serviceAddrSize = 26

// minNetworkAddressSize is time(8) + one-byte stream count + services/ip/port.
const minNetworkAddressSize = 8 + 1 + serviceAddrSize

// ServiceAddr is the address form carried inside version.
type ServiceAddr struct {
	Services uint64
	IP       [16]byte
	Port     uint16
}

// NetworkAddress describes a node that can be connected to.
type NetworkAddress struct {
	Time     int64
	Streams  StreamSet
	Services uint64
	IP       [16]byte
	Port     uint16
}

// NewNetworkAddress builds a descriptor from an ip:port pair. IPv4 addresses
// are stored in their IPv4-mapped IPv6 form.
func NewNetworkAddress(ap netip.AddrPort, services uint64, streams ...uint64) NetworkAddress {
	return NetworkAddress{
		Time:     time.Now().Unix(),
		Streams:  NewStreamSet(streams...),
		Services: services,
		IP:       ap.Addr().As16(),
		Port:     ap.Port(),
	}
}

// ParseNetworkAddress parses "host:port" into a descriptor.
func ParseNetworkAddress(s string, services uint64, streams ...uint64) (NetworkAddress, error) {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return NetworkAddress{}, err
	}
	return NewNetworkAddress(ap, services, streams...), nil
}

// AddrPort returns the dialable address.
func (a NetworkAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom16(a.IP).Unmap(), a.Port)
}

// Key identifies a descriptor by ip and port.
func (a NetworkAddress) Key() string {
	return a.AddrPort().String()
}

func (a NetworkAddress) String() string {
	return fmt.Sprintf("%s streams=%v", a.Key(), SortedStreams(a.Streams))
}

// AppendNetworkAddress appends the addr-list wire form of a.
func AppendNetworkAddress(dst []byte, a NetworkAddress) []byte {
	dst = binary.BigEndian.AppendUint64(dst, uint64(a.Time))
	dst = AppendVarIntList(dst, SortedStreams(a.Streams))
	return appendServiceAddr(dst, ServiceAddr{Services: a.Services, IP: a.IP, Port: a.Port})
}

// DecodeNetworkAddress decodes exactly one descriptor from b.
func DecodeNetworkAddress(b []byte) (NetworkAddress, error) {
	r := newReader(b)
	a := readNetworkAddress(r)
	if err := r.done(); err != nil {
		return NetworkAddress{}, err
	}
	return a, nil
}

func readNetworkAddress(r *reader) NetworkAddress {
	t := int64(r.uint64("addr time"))
	streams := r.varIntList(MaxStreamsPerList)
	sa := readServiceAddr(r)
	return NetworkAddress{
		Time:     t,
		Streams:  NewStreamSet(streams...),
		Services: sa.Services,
		IP:       sa.IP,
		Port:     sa.Port,
	}
}

func appendServiceAddr(dst []byte, a ServiceAddr) []byte {
	dst = binary.BigEndian.AppendUint64(dst, a.Services)
	dst = append(dst, a.IP[:]...)
	return binary.BigEndian.AppendUint16(dst, a.Port)
}

func readServiceAddr(r *reader) ServiceAddr {
	var a ServiceAddr
	a.Services = r.uint64("services")
	copy(a.IP[:], r.take(16, "ip"))
	a.Port = r.uint16("port")
	return a
}
