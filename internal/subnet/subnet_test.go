package subnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCIDR(t *testing.T) {
	key, err := Normalize("10.0.0.0/24", "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/24", key)
}

func TestNormalizeCIDRWithHostBits(t *testing.T) {
	key, err := Normalize("10.0.0.50/24", "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.0/24", key)
}

func TestNormalizeNetmaskRoundTrip(t *testing.T) {
	// A (gateway, netmask) pair must normalize to the same
	// key as the equivalent CIDR, for arbitrary prefix lengths.
	cases := []struct {
		gateway string
		netmask string
		cidr    string
	}{
		{"10.0.0.1", "255.255.255.0", "10.0.0.0/24"},
		{"192.168.1.1", "255.255.255.128", "192.168.1.0/25"},
		{"172.16.0.1", "255.255.0.0", "172.16.0.0/16"},
		{"10.0.0.1", "255.255.255.252", "10.0.0.0/30"},
	}

	for _, c := range cases {
		fromPair, err := Normalize(c.netmask, c.gateway)
		require.NoError(t, err)
		fromCIDR, err := Normalize(c.cidr, "")
		require.NoError(t, err)
		assert.Equal(t, fromCIDR, fromPair, "mismatch for %+v", c)
	}
}

func TestNormalizeRejectsBareNetmaskWithoutGateway(t *testing.T) {
	_, err := Normalize("255.255.255.0", "")
	assert.Error(t, err)
}

func TestNormalizeRejectsAmbiguousString(t *testing.T) {
	_, err := Normalize("not-a-subnet", "10.0.0.1")
	assert.Error(t, err)
}

func TestNetworkKey(t *testing.T) {
	key, err := NetworkKey("eno1", "10.0.0.0/24", "")
	require.NoError(t, err)
	assert.Equal(t, "eno1|10.0.0.0/24", key)
}
