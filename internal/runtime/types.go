// Package runtime implements the create/delete pipelines that turn a
// declarative vNIC/serial spec into a running PLC runtime container:
// L2 macvlan networks, an internal bridge for agent<->runtime RPC, pinned
// MAC addresses, DHCP supervision requests, and the container's fixed
// capability/ulimit/cgroup fixture. Manager's dependencies are passed in by
// the caller; the container driver and sidecar client are concrete types,
// not interfaces.
package runtime

import (
	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/ifcache"
	"github.com/edgefleet/orchestrator-agent/internal/netmonclient"
	"github.com/edgefleet/orchestrator-agent/internal/opstate"
	"github.com/edgefleet/orchestrator-agent/internal/store"
	"github.com/edgefleet/orchestrator-agent/internal/usage"
)

// RuntimeImage is the fixed OpenPLC runtime container image tag every
// runtime is created from.
const RuntimeImage = "ghcr.io/autonomy-logic/openplc-runtime:latest"

// VNICConfig is the caller-facing (pre-validation) shape of one vNIC
// entry in a create_new_runtime request, before the fields are
// normalized into a store.VNIC.
type VNICConfig struct {
	Name            string
	ParentInterface string
	NetworkMode     string // "dhcp" | "static"
	IP              string
	Subnet          string
	Gateway         string
	DNS             []string
	MACAddress      string
}

// SerialConfig is the caller-facing shape of one serial port entry.
type SerialConfig struct {
	Name          string
	DeviceID      string
	ContainerPath string
	BaudRate      int
}

// Manager wires together every component the create/delete pipelines
// need: persistence, operation tracking, the container driver, the
// interface cache (for slow-path subnet resolution), the usage buffer
// manager, and the sidecar client (for start_dhcp/stop_dhcp).
type Manager struct {
	VNICs    *store.VNICStore
	Serial   *store.SerialStore
	Clients  *store.ClientsStore
	Ops      *opstate.Tracker
	Driver   *container.Driver
	IfCache  *ifcache.Cache
	Usage    *usage.Manager
	Sidecar  *netmonclient.Client
	SelfName func() (string, bool)
}

func NewManager(
	vnics *store.VNICStore,
	serial *store.SerialStore,
	clients *store.ClientsStore,
	ops *opstate.Tracker,
	driver *container.Driver,
	ifc *ifcache.Cache,
	um *usage.Manager,
	sidecar *netmonclient.Client,
	selfName func() (string, bool),
) *Manager {
	return &Manager{
		VNICs:    vnics,
		Serial:   serial,
		Clients:  clients,
		Ops:      ops,
		Driver:   driver,
		IfCache:  ifc,
		Usage:    um,
		Sidecar:  sidecar,
		SelfName: selfName,
	}
}

// dhcpVNIC is a (vnic_name, mac, container_pid) tuple gathered at the end
// of create, handed back to the caller so start_dhcp can be requested
// once the worker returns; a DHCP request failure never taints the
// create's own error state.
type dhcpVNIC struct {
	VNICName     string
	MACAddress   string
	ContainerPID int
}
