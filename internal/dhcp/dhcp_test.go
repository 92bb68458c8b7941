package dhcp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
)

func TestFindInterfaceByMACMatchesCaseInsensitively(t *testing.T) {
	m := New(nil)
	m.runNS = func(pid int, args ...string) ([]byte, error) {
		return []byte(`[{"ifname":"eth0","address":"02:AA:BB:CC:DD:01"},{"ifname":"eth1","address":"02:aa:bb:cc:dd:02"}]`), nil
	}

	iface, err := m.findInterfaceByMAC(123, "02:aa:bb:cc:dd:02")
	require.NoError(t, err)
	assert.Equal(t, "eth1", iface)
}

func TestFindInterfaceByMACNoMatch(t *testing.T) {
	m := New(nil)
	m.runNS = func(pid int, args ...string) ([]byte, error) {
		return []byte(`[{"ifname":"eth0","address":"02:aa:bb:cc:dd:01"}]`), nil
	}

	iface, err := m.findInterfaceByMAC(123, "02:00:00:00:00:99")
	require.NoError(t, err)
	assert.Empty(t, iface)
}

func TestStartDHCPRejectsInvalidPID(t *testing.T) {
	m := New(nil)
	err := m.StartDHCP("plc-a", "eth0", "02:aa:bb:cc:dd:01", 0)
	assert.Error(t, err)
}

func TestStartDHCPRejectsMissingNetns(t *testing.T) {
	m := New(nil)
	// PID 999999999 almost certainly has no /proc/<pid>/ns/net on any
	// real host, exercising the netns-missing branch without needing a
	// live container.
	err := m.StartDHCP("plc-a", "eth0", "02:aa:bb:cc:dd:01", 999999999)
	assert.Error(t, err)
}

func TestStopDHCPUnknownKeyReturnsNotFound(t *testing.T) {
	m := New(nil)
	err := m.StopDHCP("plc-a:eth0")
	assert.Error(t, err)
}

func TestPollLeasesEmitsOnIPChange(t *testing.T) {
	dir := t.TempDir()
	leaseFile := filepath.Join(dir, "plc-a_eth0.lease")
	require.NoError(t, os.WriteFile(leaseFile, []byte(`{"ip":"10.0.0.5","mask":"255.255.255.0","prefix":24,"router":"10.0.0.1"}`), 0o644))

	var got []netmonproto.DHCPUpdate
	m := New(func(u netmonproto.DHCPUpdate) { got = append(got, u) })

	c := &client{
		containerName: "plc-a", vnicName: "eth0", macAddress: "02:aa:bb:cc:dd:01",
		leaseFile: leaseFile, waitDone: make(chan struct{}),
	}
	m.clients["plc-a:eth0"] = c

	m.pollLeases()
	require.Len(t, got, 1)
	assert.Equal(t, "10.0.0.5", got[0].IP)
	assert.Equal(t, "10.0.0.1", got[0].Gateway)

	// Re-polling with the same IP must not emit again (idempotent).
	m.pollLeases()
	assert.Len(t, got, 1)
}

func TestGetStatusEmptyManager(t *testing.T) {
	m := New(nil)
	assert.Empty(t, m.GetStatus())
}
