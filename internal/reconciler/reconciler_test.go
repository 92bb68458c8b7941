package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

// HandleChange's driver calls need a real container daemon to exercise
// end to end (see internal/container's own test file for the same
// constraint), so these tests cover the pure filtering/no-op paths: an
// event that never reaches the driver at all. A nil Driver would panic
// if any of these cases tried to call it, so a panic here is itself a
// regression signal.

func TestHandleChangeIgnoresEmptyInterface(t *testing.T) {
	r := New(nil, newTestVNICStore(t))
	assert.NotPanics(t, func() {
		r.HandleChange(context.Background(), netmonproto.NetworkChange{})
	})
}

func TestHandleChangeIgnoresMissingSubnet(t *testing.T) {
	r := New(nil, newTestVNICStore(t))
	assert.NotPanics(t, func() {
		r.HandleChange(context.Background(), netmonproto.NetworkChange{Interface: "eno1"})
	})
}

func TestHandleChangeSkipsWhenNoRuntimesPersisted(t *testing.T) {
	r := New(nil, newTestVNICStore(t))
	assert.NotPanics(t, func() {
		r.HandleChange(context.Background(), netmonproto.NetworkChange{
			Interface:     "eno1",
			IPv4Addresses: []netmonproto.IPv4Address{{Address: "10.0.0.5", Subnet: "10.0.0.0/24"}},
			Gateway:       "10.0.0.1",
		})
	})
}

func TestHandleChangeSkipsRuntimesOnDifferentInterface(t *testing.T) {
	s := newTestVNICStore(t)
	assert.NoError(t, s.Save("plc-a", []store.VNIC{
		{Name: "eth0", ParentInterface: "eno2", MACAddress: "02:11:22:33:44:55"},
	}))

	r := New(nil, s)
	assert.NotPanics(t, func() {
		r.HandleChange(context.Background(), netmonproto.NetworkChange{
			Interface:     "eno1",
			IPv4Addresses: []netmonproto.IPv4Address{{Address: "10.0.0.5", Subnet: "10.0.0.0/24"}},
			Gateway:       "10.0.0.1",
		})
	})
}

func newTestVNICStore(t *testing.T) *store.VNICStore {
	t.Helper()
	return store.NewVNICStore(t.TempDir() + "/vnics.json")
}
