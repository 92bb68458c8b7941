// Package macaddr generates and validates the locally-administered
// unicast MAC addresses pinned to vNIC endpoints.
package macaddr

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"strings"
)

// Generate returns a random locally-administered, unicast MAC address:
// bit 1 (locally administered) of the first octet set, bit 0 (unicast)
// clear. The first octet is therefore one of 0x02, 0x06, 0x0A, ... 0xFE.
func Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(64))
	if err != nil {
		return "", err
	}
	firstOctet := byte(0x02 | (n.Int64() << 2))

	octets := [6]byte{firstOctet}
	for i := 1; i < 6; i++ {
		b, err := rand.Int(rand.Reader, big.NewInt(256))
		if err != nil {
			return "", err
		}
		octets[i] = byte(b.Int64())
	}

	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		octets[0], octets[1], octets[2], octets[3], octets[4], octets[5]), nil
}

// Valid reports whether s parses as a hardware address.
func Valid(s string) bool {
	_, err := net.ParseMAC(s)
	return err == nil
}

// Normalize lowercases a MAC for use as a comparison/index key.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Equal compares two MAC strings case-insensitively.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
