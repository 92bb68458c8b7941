// Package subnet normalizes the various subnet representations the
// vNIC/interface cache layers can receive — bare CIDR, or a
// (gateway, dotted netmask) pair — into a single canonical network key.
// Ambiguous input is rejected here instead of deferred to a downstream
// parser.
package subnet

import (
	"fmt"
	"net"
	"strings"

	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// IsCIDR reports whether s looks like a CIDR string (contains a slash).
func IsCIDR(s string) bool {
	return strings.Contains(s, "/")
}

// NetmaskToCIDR converts a dotted-decimal netmask (e.g. "255.255.255.0")
// to its prefix length (e.g. 24). Returns an error if the string doesn't
// parse as a valid IPv4 mask.
func NetmaskToCIDR(netmask string) (int, error) {
	ip := net.ParseIP(netmask)
	if ip == nil {
		return 0, fmt.Errorf("invalid netmask %q", netmask)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return 0, fmt.Errorf("invalid IPv4 netmask %q", netmask)
	}
	mask := net.IPMask(ip4)
	ones, bits := mask.Size()
	if bits != 32 || (ones == 0 && !isAllZero(mask)) {
		return 0, fmt.Errorf("netmask %q is not contiguous", netmask)
	}
	return ones, nil
}

func isAllZero(mask net.IPMask) bool {
	for _, b := range mask {
		if b != 0 {
			return false
		}
	}
	return true
}

// NetworkKey returns the canonical (parent_interface, subnet_cidr) L2
// network key, given a subnet field that may already be CIDR, plus an
// optional gateway used to derive the base address when the subnet is a
// bare netmask. It normalizes the network base so that e.g. gateway
// 10.0.0.1 with netmask 255.255.255.0 and CIDR "10.0.0.0/24" both yield
// "10.0.0.0/24".
func NetworkKey(parentInterface, subnetField, gateway string) (string, error) {
	cidr, err := Normalize(subnetField, gateway)
	if err != nil {
		return "", err
	}
	return parentInterface + "|" + cidr, nil
}

// Normalize resolves subnetField (bare CIDR, or dotted netmask requiring
// gateway to compute the base) into a canonical CIDR string with the
// network address as its base (e.g. "10.0.0.0/24", never "10.0.0.5/24").
// Returns a ValidationError if the input is ambiguous: a non-CIDR,
// non-netmask string, or a netmask without an accompanying gateway.
func Normalize(subnetField, gateway string) (string, error) {
	subnetField = strings.TrimSpace(subnetField)
	if subnetField == "" {
		return "", orcherr.NewValidation("subnet is empty")
	}

	if IsCIDR(subnetField) {
		_, ipnet, err := net.ParseCIDR(subnetField)
		if err != nil {
			return "", orcherr.NewValidation("invalid CIDR %q: %v", subnetField, err)
		}
		return ipnet.String(), nil
	}

	// Not CIDR: must be a dotted netmask, and we need a gateway to compute
	// the network base. Anything else is ambiguous and rejected outright
	// rather than deferred to a downstream parser.
	if net.ParseIP(subnetField) == nil {
		return "", orcherr.NewValidation("subnet %q is neither CIDR nor a dotted netmask", subnetField)
	}
	if gateway == "" {
		return "", orcherr.NewValidation("subnet %q is a bare netmask but no gateway was given to derive the network base", subnetField)
	}

	prefix, err := NetmaskToCIDR(subnetField)
	if err != nil {
		return "", orcherr.NewValidation("%v", err)
	}

	gwIP := net.ParseIP(gateway).To4()
	if gwIP == nil {
		return "", orcherr.NewValidation("gateway %q is not a valid IPv4 address", gateway)
	}

	base := fmt.Sprintf("%s/%d", gwIP.Mask(net.CIDRMask(prefix, 32)).String(), prefix)
	_, ipnet, err := net.ParseCIDR(base)
	if err != nil {
		return "", orcherr.NewValidation("could not derive network base from gateway %q / netmask %q", gateway, subnetField)
	}
	return ipnet.String(), nil
}
