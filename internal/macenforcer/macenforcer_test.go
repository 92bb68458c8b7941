package macenforcer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

func TestResolveEndpointPrefersExactDockerNetworkName(t *testing.T) {
	status := container.Status{Networks: map[string]container.NetworkEndpoint{
		"macvlan_eno1_10.0.0.0_24": {MACAddress: "02:aa:bb:cc:dd:01"},
		"macvlan_eno1_10.0.1.0_24": {MACAddress: "02:aa:bb:cc:dd:02"},
	}}
	v := store.VNIC{Name: "eth0", ParentInterface: "eno1", DockerNetworkName: "macvlan_eno1_10.0.1.0_24"}

	name, mac, by := resolveEndpoint(status, v)
	assert.Equal(t, "macvlan_eno1_10.0.1.0_24", name)
	assert.Equal(t, "02:aa:bb:cc:dd:02", mac)
	assert.Equal(t, foundByExact, by)
}

func TestResolveEndpointFallsBackToParentInterfacePrefix(t *testing.T) {
	status := container.Status{Networks: map[string]container.NetworkEndpoint{
		"macvlan_eno1_10.0.0.0_24": {MACAddress: "02:aa:bb:cc:dd:01"},
	}}
	v := store.VNIC{Name: "eth0", ParentInterface: "eno1"}

	name, mac, by := resolveEndpoint(status, v)
	assert.Equal(t, "macvlan_eno1_10.0.0.0_24", name)
	assert.Equal(t, "02:aa:bb:cc:dd:01", mac)
	assert.Equal(t, foundByFallback, by)
}

func TestResolveEndpointNoMatch(t *testing.T) {
	status := container.Status{Networks: map[string]container.NetworkEndpoint{
		"plc-a_internal": {MACAddress: "02:aa:bb:cc:dd:01"},
	}}
	v := store.VNIC{Name: "eth0", ParentInterface: "eno1"}

	name, _, by := resolveEndpoint(status, v)
	assert.Empty(t, name)
	assert.Equal(t, foundByNone, by)
}

func TestHandleStartSkipsWhenNoPersistedVNICs(t *testing.T) {
	e := New(nil, store.NewVNICStore(t.TempDir()+"/vnics.json"))
	assert.NotPanics(t, func() {
		e.HandleStart(nil, "plc-a")
	})
}
