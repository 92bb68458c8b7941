package netmonclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/orchestrator-agent/internal/ifcache"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
)

func TestToEntry(t *testing.T) {
	e := toEntry([]netmonproto.IPv4Address{{Address: "10.0.0.5", Subnet: "10.0.0.0/24"}}, "10.0.0.1")
	assert.Equal(t, ifcache.Entry{
		SubnetCIDR: "10.0.0.0/24",
		Gateway:    "10.0.0.1",
		Addresses:  []string{"10.0.0.5"},
	}, e)
}

func TestApplyDiscoverySkipsInterfacesWithoutAddresses(t *testing.T) {
	ifaces := ifcache.New()
	devices := NewDeviceCache()
	c := New("/tmp/does-not-matter.sock", ifaces, devices, nil)

	c.applyDiscovery(netmonproto.NetworkDiscovery{
		Interfaces: []netmonproto.InterfaceInfo{
			{Interface: "eno1", IPv4Addresses: []netmonproto.IPv4Address{{Address: "10.0.0.5", Subnet: "10.0.0.0/24"}}, Gateway: "10.0.0.1"},
			{Interface: "eno2"},
		},
	})

	_, ok := ifaces.Get("eno1")
	assert.True(t, ok)
	_, ok = ifaces.Get("eno2")
	assert.False(t, ok)
}

func TestApplyChangeDeletesOnEmptyAddresses(t *testing.T) {
	ifaces := ifcache.New()
	devices := NewDeviceCache()
	c := New("/tmp/does-not-matter.sock", ifaces, devices, nil)

	ifaces.Upsert("eno1", ifcache.Entry{SubnetCIDR: "10.0.0.0/24", Addresses: []string{"10.0.0.5"}})
	c.applyChange(netmonproto.NetworkChange{Interface: "eno1"})

	_, ok := ifaces.Get("eno1")
	assert.False(t, ok)
}

func TestDeviceCacheAddRemove(t *testing.T) {
	dc := NewDeviceCache()
	dc.Apply(netmonproto.DeviceChange{Action: "add", Device: netmonproto.DeviceInfo{ByID: "usb-FTDI-1"}})
	assert.Len(t, dc.Snapshot(), 1)

	dc.Apply(netmonproto.DeviceChange{Action: "remove", Device: netmonproto.DeviceInfo{ByID: "usb-FTDI-1"}})
	assert.Len(t, dc.Snapshot(), 0)
}
