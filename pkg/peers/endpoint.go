package peers

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// ErrInvalidEndpoint is returned for endpoints that are not a UDP IP address and port.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// ParseEndpoint parses "ip:port", "[ipv6]:port" or a UDP multiaddr such as
// "/ip4/192.0.2.1/udp/22527". IPv4-mapped addresses are unmapped.
func ParseEndpoint(s string) (netip.AddrPort, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "/") {
		return parseMultiaddr(s)
	}

	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if ap.Port() == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: port 0", ErrInvalidEndpoint)
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

func parseMultiaddr(s string) (netip.AddrPort, error) {
	maddr, err := multiaddr.NewMultiaddr(s)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	addr, err := manet.ToNetAddr(maddr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("%w: %s is not a UDP address", ErrInvalidEndpoint, s)
	}
	ap := udp.AddrPort()
	if ap.Port() == 0 {
		return netip.AddrPort{}, fmt.Errorf("%w: port 0", ErrInvalidEndpoint)
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

// FormatMultiaddr returns the UDP multiaddr of ap.
func FormatMultiaddr(ap netip.AddrPort) (string, error) {
	maddr, err := manet.FromNetAddr(net.UDPAddrFromAddrPort(ap))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	return maddr.String(), nil
}
