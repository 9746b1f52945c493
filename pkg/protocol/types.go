package protocol

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrMalformed is wrapped by every parse failure in this package.
var ErrMalformed = errors.New("malformed message")

// MaxLineSize caps the first protocol line read from a stream connection.
const MaxLineSize = 1024

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// PeerAddress identifies a node by the IP it was seen at and the port it
// declared. It is comparable and used as a map key.
type PeerAddress struct {
	IP   netip.Addr
	Port uint16
}

// NewPeerAddress normalises IPv4-mapped IPv6 addresses so that the same host
// seen over different socket families compares equal.
func NewPeerAddress(ip netip.Addr, port uint16) PeerAddress {
	return PeerAddress{IP: ip.Unmap(), Port: port}
}

// PeerFromUDP builds the inferred peer for a datagram sender and a declared port.
func PeerFromUDP(sender *net.UDPAddr, port uint16) (PeerAddress, error) {
	if sender == nil {
		return PeerAddress{}, malformed("no sender address")
	}
	ip, ok := netip.AddrFromSlice(sender.IP)
	if !ok {
		return PeerAddress{}, malformed("bad sender ip %v", sender.IP)
	}
	return NewPeerAddress(ip, port), nil
}

// ParsePeerAddress parses "ip:port".
func ParsePeerAddress(s string) (PeerAddress, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return PeerAddress{}, malformed("peer address %q: %v", s, err)
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return PeerAddress{}, malformed("peer ip %q: %v", host, err)
	}
	port, err := ParsePort(portStr)
	if err != nil {
		return PeerAddress{}, err
	}
	return NewPeerAddress(ip, port), nil
}

// ParsePort parses a declared port. Zero is not a valid listening port.
func ParsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil || n == 0 {
		return 0, malformed("port %q", s)
	}
	return uint16(n), nil
}

func (p PeerAddress) IsValid() bool {
	return p.IP.IsValid() && p.Port != 0
}

func (p PeerAddress) String() string {
	return netip.AddrPortFrom(p.IP, p.Port).String()
}

func (p PeerAddress) UDPAddr() *net.UDPAddr {
	return net.UDPAddrFromAddrPort(netip.AddrPortFrom(p.IP, p.Port))
}

// splitKind returns the text before the first ':' and the remainder.
func splitKind(s string) (kind, rest string, hasRest bool) {
	kind, rest, hasRest = strings.Cut(s, ":")
	return strings.TrimSpace(kind), rest, hasRest
}
