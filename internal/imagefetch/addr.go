package imagefetch

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"syscall"
)

// deniedHostnames are refused outright, together with any subdomain.
var deniedHostnames = []string{
	"localhost",
	"127.0.0.1",
	"0.0.0.0",
	"::1",
	"169.254.169.254",
	"metadata.google.internal",
}

// blockedPrefixes complements the netip classification helpers with
// special-purpose IPv4 ranges that are never a public image host.
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("240.0.0.0/4"),
}

func isDeniedHostname(host string) bool {
	for _, denied := range deniedHostnames {
		if host == denied || strings.HasSuffix(host, "."+denied) {
			return true
		}
	}
	return false
}

// isBlockedAddr reports whether addr is loopback, private, link-local or
// otherwise not a routable public address. IPv4-mapped IPv6 addresses are
// judged by their IPv4 form.
func isBlockedAddr(addr netip.Addr) bool {
	if !addr.IsValid() {
		return true
	}
	addr = addr.Unmap()
	if addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsMulticast() ||
		addr.IsUnspecified() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// dialControl runs after DNS resolution inside the dialer, against the
// address actually being connected to.
func dialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBlockedHost, address)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil || isBlockedAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedHost, host)
	}
	return nil
}
