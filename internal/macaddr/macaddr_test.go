package macaddr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateIsLocallyAdministeredUnicast(t *testing.T) {
	for i := 0; i < 50; i++ {
		mac, err := Generate()
		require.NoError(t, err)
		require.True(t, Valid(mac))

		var first, b1, b2, b3, b4, b5 int
		_, err = fmt.Sscanf(mac, "%02x:%02x:%02x:%02x:%02x:%02x", &first, &b1, &b2, &b3, &b4, &b5)
		require.NoError(t, err)

		assert.Equal(t, 0, first&0x01, "unicast bit must be clear")
		assert.Equal(t, 0x02, first&0x02, "locally administered bit must be set")
	}
}

func TestEqualIsCaseInsensitive(t *testing.T) {
	assert.True(t, Equal("02:AA:BB:CC:DD:01", "02:aa:bb:cc:dd:01"))
	assert.False(t, Equal("02:aa:bb:cc:dd:01", "02:aa:bb:cc:dd:02"))
}
