package maintenance

import (
	"fmt"
	"net/netip"
	"strings"
)

// allowList is a parsed IP allow list. All loopback forms (127.0.0.0/8,
// ::1, IPv4-mapped loopback and the literal "localhost") are one identity.
type allowList struct {
	loopback bool
	addrs    map[netip.Addr]bool
	prefixes []netip.Prefix
}

func parseAllowList(entries []string) (*allowList, error) {
	l := &allowList{addrs: make(map[netip.Addr]bool)}
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if strings.EqualFold(entry, "localhost") {
			l.loopback = true
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid allow list entry %q: %w", raw, err)
			}
			prefix = netip.PrefixFrom(prefix.Addr().Unmap(), unmappedBits(prefix)).Masked()
			if prefix.Addr().IsLoopback() && prefix.Bits() >= 8 {
				l.loopback = true
			}
			l.prefixes = append(l.prefixes, prefix)
			continue
		}

		addr, ok := parseAddr(entry)
		if !ok {
			return nil, fmt.Errorf("invalid allow list entry %q", raw)
		}
		if addr.IsLoopback() {
			l.loopback = true
			continue
		}
		l.addrs[addr] = true
	}
	return l, nil
}

// contains reports whether a client address is allowed. Unparseable
// addresses are never allowed.
func (l *allowList) contains(client string) bool {
	if strings.EqualFold(strings.TrimSpace(client), "localhost") {
		client = "127.0.0.1"
	}
	addr, ok := parseAddr(client)
	if !ok {
		return false
	}
	if addr.IsLoopback() && l.loopback {
		return true
	}
	if l.addrs[addr] {
		return true
	}
	for _, p := range l.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// NormalizeIP returns the canonical form of an address, mapping every
// loopback form to "127.0.0.1". The second result is false when s is not
// an address.
func NormalizeIP(s string) (string, bool) {
	if strings.EqualFold(strings.TrimSpace(s), "localhost") {
		return "127.0.0.1", true
	}
	addr, ok := parseAddr(s)
	if !ok {
		return "", false
	}
	if addr.IsLoopback() {
		return "127.0.0.1", true
	}
	return addr.String(), true
}

// ValidateAllowList checks that every entry is an address, CIDR or "localhost"
func ValidateAllowList(entries []string) error {
	_, err := parseAllowList(entries)
	return err
}

func parseAddr(s string) (netip.Addr, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimSuffix(s, "]"), "[")
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.WithZone("").Unmap(), true
}

func unmappedBits(p netip.Prefix) int {
	if p.Addr().Is4In6() {
		bits := p.Bits() - 96
		if bits < 0 {
			return 0
		}
		return bits
	}
	return p.Bits()
}
