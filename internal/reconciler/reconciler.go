// Package reconciler reacts to the sidecar's debounced network_change
// events by reconnecting every runtime vNIC whose parent_interface moved
// to the new L2 network. The debounce itself lives in the sidecar
// (events only cross the socket at most once per 3s per interface);
// this package processes each event it receives as soon as it arrives
// rather than re-debouncing on the agent side, so a test can feed the
// same event twice and assert idempotence without waiting out a timer.
package reconciler

import (
	"context"
	"strings"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

// Reconciler owns the driver and store handles needed to re-home vNIC
// endpoints when their parent interface's network changes underneath
// them. The interface cache itself is kept current by netmonclient.Client
// before this handler runs; Reconciler only acts on the event's own
// subnet/gateway fields.
type Reconciler struct {
	Driver *container.Driver
	VNICs  *store.VNICStore
}

func New(driver *container.Driver, vnics *store.VNICStore) *Reconciler {
	return &Reconciler{Driver: driver, VNICs: vnics}
}

// HandleChange processes one network_change event: for every persisted
// vNIC whose parent_interface matches, disconnect it from every L2
// network macvlan'd to that interface (every matching network, not just
// the first name-prefix match — a prior reconcile can have rotated the
// network name to a new CIDR) and reconnect it to the resolved network for the new
// subnet/gateway with its persisted MAC (and persisted IP if static).
// The persisted intent is never modified; observed state converges to
// it.
func (r *Reconciler) HandleChange(ctx context.Context, ev netmonproto.NetworkChange) {
	if ev.Interface == "" {
		return
	}

	newCIDR := ""
	if len(ev.IPv4Addresses) > 0 {
		newCIDR = ev.IPv4Addresses[0].Subnet
	}

	if newCIDR == "" {
		minilog.Warn("reconciler: network_change for %s carries no subnet, skipping reconcile", ev.Interface)
		return
	}

	all, err := r.VNICs.LoadAll()
	if err != nil {
		minilog.Error("reconciler: failed to load vnic configs: %v", err)
		return
	}
	if len(all) == 0 {
		minilog.Debug("reconciler: no runtime containers with vNIC configurations found")
		return
	}

	minilog.Info("reconciler: reconnecting containers using interface %s to new subnet %s", ev.Interface, newCIDR)

	for runtimeName, vnics := range all {
		for _, v := range vnics {
			if v.ParentInterface != ev.Interface {
				continue
			}
			r.reconnectOne(ctx, runtimeName, v, ev.Interface, newCIDR, ev.Gateway)
		}
	}
}

func (r *Reconciler) reconnectOne(ctx context.Context, runtimeName string, v store.VNIC, parentInterface, newCIDR, newGateway string) {
	minilog.Info("reconciler: reconnecting container %s vNIC %s to new network", runtimeName, v.Name)

	containerID, err := r.Driver.ResolveSelfByName(ctx, runtimeName)
	if err != nil {
		minilog.Debug("reconciler: container %s not found, skipping reconnect: %v", runtimeName, err)
		return
	}

	// Disconnect from every network whose macvlan parent option matches
	// this interface, not only the network named in the persisted
	// docker_network_name — a prior reconcile may have rotated the
	// network name and left a stale endpoint the agent no longer tracks.
	nets, err := r.Driver.NetworksByParent(ctx, parentInterface)
	if err != nil {
		minilog.Warn("reconciler: failed to list networks for parent %s: %v", parentInterface, err)
	}
	for _, n := range nets {
		if err := r.Driver.DisconnectEndpoint(ctx, containerID, n.Name, true); err != nil {
			minilog.Debug("reconciler: could not disconnect %s from old network %s: %v", runtimeName, n.Name, err)
		} else {
			minilog.Info("reconciler: disconnected %s from old network %s", runtimeName, n.Name)
		}
	}

	newNetworkName := container.MacvlanNetworkName(parentInterface, newCIDR)
	if _, err := r.Driver.GetOrCreateMacvlanNetwork(ctx, parentInterface, newCIDR, newGateway); err != nil {
		minilog.Error("reconciler: failed to resolve network for %s: %v", runtimeName, err)
		return
	}

	ep := container.EndpointSpec{MACAddress: v.MACAddress}
	if strings.EqualFold(v.NetworkMode, "static") && v.IP != "" {
		ep.IPv4Address = strings.SplitN(v.IP, "/", 2)[0]
		minilog.Debug("reconciler: reconnecting with static IP %s for container %s", ep.IPv4Address, runtimeName)
	}

	if err := r.Driver.ConnectEndpoint(ctx, containerID, newNetworkName, ep); err != nil {
		minilog.Error("reconciler: failed to reconnect container %s: %v", runtimeName, err)
		return
	}
	minilog.Info("reconciler: reconnected %s to new network %s", runtimeName, newNetworkName)
}
