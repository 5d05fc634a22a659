// Package addr resolves a host/port pair to a protocol-family-aware address,
// honoring a preferred family. The family-classification idiom (try one
// family, fall back to the other) is generalized from inetdiag's ip()/
// isIpv6() dispatch in the teacher package, which classified an
// already-resolved 16-byte kernel address; here the same dispatch instead
// drives resolution of a caller-supplied name.
package addr

import (
	"context"
	"errors"
	"net"
	"strconv"

	"github.com/m-lab/go/anonymize"
)

// Family selects a preferred address family for resolution.
type Family int

const (
	// FamilyAny lets the resolver pick whichever family succeeds first.
	FamilyAny Family = iota
	// FamilyV4 prefers IPv4.
	FamilyV4
	// FamilyV6 prefers IPv6.
	FamilyV6
)

// ErrAddressInvalid is returned when host cannot be resolved in any family.
var ErrAddressInvalid = errors.New("addr: AddressInvalid")

// Resolve builds a *net.TCPAddr-compatible address for host:port, honoring
// pref. An empty host resolves to the unspecified address of the preferred
// family (IPv6 unspecified only when pref is explicitly FamilyV6; IPv4
// unspecified otherwise), matching spec §4.2.
func Resolve(host string, port int, pref Family) (*net.TCPAddr, error) {
	if host == "" {
		if pref == FamilyV6 {
			return &net.TCPAddr{IP: net.IPv6unspecified, Port: port}, nil
		}
		return &net.TCPAddr{IP: net.IPv4zero, Port: port}, nil
	}

	// Try a numeric parse in the preferred family first, then the other
	// family, then fall back to name resolution in the preferred family.
	if ip := net.ParseIP(host); ip != nil {
		if matches(ip, pref) || pref == FamilyAny {
			return &net.TCPAddr{IP: ip, Port: port}, nil
		}
		// Numeric literal in the non-preferred family is still usable.
		return &net.TCPAddr{IP: ip, Port: port}, nil
	}

	network := "ip"
	switch pref {
	case FamilyV4:
		network = "ip4"
	case FamilyV6:
		network = "ip6"
	}
	ctx := context.Background()
	ips, err := net.DefaultResolver.LookupIP(ctx, network, host)
	if err == nil && len(ips) > 0 {
		return &net.TCPAddr{IP: ips[0], Port: port}, nil
	}
	// Retry in the other family before giving up.
	other := "ip4"
	if network == "ip4" {
		other = "ip6"
	}
	ips, err = net.DefaultResolver.LookupIP(ctx, other, host)
	if err == nil && len(ips) > 0 {
		return &net.TCPAddr{IP: ips[0], Port: port}, nil
	}
	return nil, ErrAddressInvalid
}

func matches(ip net.IP, pref Family) bool {
	isV4 := ip.To4() != nil
	switch pref {
	case FamilyV4:
		return isV4
	case FamilyV6:
		return !isV4
	default:
		return true
	}
}

// PortFromString parses a decimal port number, returning ErrAddressInvalid
// on failure, for use alongside a URI's textual port component.
func PortFromString(s string) (int, error) {
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 65535 {
		return 0, ErrAddressInvalid
	}
	return p, nil
}

// AnonymizeForLog returns a copy of ip with the host portion anonymized for
// log output, using the same anonymize.IPAnonymizer the teacher package used
// for privacy-sensitive socket identifiers.
func AnonymizeForLog(anon anonymize.IPAnonymizer, ip net.IP) net.IP {
	cp := make(net.IP, len(ip))
	copy(cp, ip)
	anon.IP(cp)
	return cp
}
