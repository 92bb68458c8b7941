// Package macenforcer re-applies a runtime's persisted vNIC MAC
// addresses whenever Docker assigns a fresh random one to a macvlan
// endpoint, which happens any time the daemon restarts a container.
package macenforcer

import (
	"context"
	"strings"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

// Enforcer watches container start events and corrects any vNIC whose
// observed MAC no longer matches the address persisted for it at create
// time.
type Enforcer struct {
	Driver *container.Driver
	VNICs  *store.VNICStore
}

func New(driver *container.Driver, vnics *store.VNICStore) *Enforcer {
	return &Enforcer{Driver: driver, VNICs: vnics}
}

// Run subscribes to the daemon's container-start events until ctx is
// canceled, enforcing MAC persistence on every one that carries
// persisted vNIC configuration. The event stream re-subscribes after a
// short pause if the daemon drops it.
func (e *Enforcer) Run(ctx context.Context) {
	for {
		e.Driver.SubscribeStart(ctx, func(ev container.StartEvent) {
			e.HandleStart(ctx, ev.ContainerName)
		})

		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// resubscribeDelay paces event-stream reconnects so a flapping daemon
// doesn't spin the enforcer.
const resubscribeDelay = 5 * time.Second

// HandleStart checks (and, on mismatch, repairs) every persisted vNIC's
// MAC address for the named container.
func (e *Enforcer) HandleStart(ctx context.Context, containerName string) {
	vnics, err := e.VNICs.Load(containerName)
	if err != nil {
		minilog.Warn("macenforcer: failed to load vnic configs for %s: %v", containerName, err)
		return
	}
	if len(vnics) == 0 {
		minilog.Debug("macenforcer: no vNIC configs for %s, skipping MAC enforcement", containerName)
		return
	}

	containerID, err := e.Driver.ResolveSelfByName(ctx, containerName)
	if err != nil {
		minilog.Debug("macenforcer: container %s not found, skipping MAC enforcement", containerName)
		return
	}

	status, err := e.Driver.Inspect(ctx, containerID)
	if err != nil {
		minilog.Debug("macenforcer: could not inspect %s, skipping MAC enforcement: %v", containerName, err)
		return
	}
	if !status.Running {
		minilog.Debug("macenforcer: container %s is not running, skipping MAC enforcement", containerName)
		return
	}

	var backfills []string
	for _, v := range vnics {
		if v.MACAddress == "" {
			minilog.Debug("macenforcer: no persisted MAC for %s:%s, skipping", containerName, v.Name)
			continue
		}

		networkName, actualMAC, foundBy := resolveEndpoint(status, v)
		if networkName == "" {
			minilog.Debug("macenforcer: could not find macvlan network for %s:%s, skipping MAC enforcement", containerName, v.Name)
			continue
		}
		if foundBy == foundByFallback && v.DockerNetworkName == "" {
			backfills = append(backfills, v.Name)
		}

		if strings.EqualFold(v.MACAddress, actualMAC) {
			minilog.Debug("macenforcer: MAC address for %s:%s is correct: %s", containerName, v.Name, actualMAC)
			continue
		}

		minilog.Warn("macenforcer: MAC mismatch for %s:%s: persisted=%s actual=%s, enforcing persisted MAC",
			containerName, v.Name, v.MACAddress, actualMAC)

		if err := e.enforce(ctx, containerID, containerName, networkName, v); err != nil {
			minilog.Error("macenforcer: failed to enforce MAC for %s:%s: %v", containerName, v.Name, err)
			continue
		}
		minilog.Info("macenforcer: enforced MAC %s for %s:%s", v.MACAddress, containerName, v.Name)
	}

	if len(backfills) > 0 {
		e.backfillNetworkNames(containerName, status, backfills)
	}
}

type foundBy int

const (
	foundByNone foundBy = iota
	foundByExact
	foundByFallback
)

// resolveEndpoint finds the network carrying this vNIC on the container,
// preferring the persisted docker_network_name and falling back to a
// macvlan_{parent_interface} name prefix.
func resolveEndpoint(status container.Status, v store.VNIC) (networkName, mac string, by foundBy) {
	if v.DockerNetworkName != "" {
		if ep, ok := status.Networks[v.DockerNetworkName]; ok {
			return v.DockerNetworkName, ep.MACAddress, foundByExact
		}
	}
	if v.ParentInterface == "" {
		return "", "", foundByNone
	}
	prefix := "macvlan_" + v.ParentInterface
	for name, ep := range status.Networks {
		if strings.HasPrefix(name, prefix) {
			return name, ep.MACAddress, foundByFallback
		}
	}
	return "", "", foundByNone
}

// enforce disconnects and reconnects the container with the persisted
// MAC (and persisted IP for static vNICs), then reloads and logs a
// warning if the daemon still disagrees.
func (e *Enforcer) enforce(ctx context.Context, containerID, containerName, networkName string, v store.VNIC) error {
	if err := e.Driver.DisconnectEndpoint(ctx, containerID, networkName, true); err != nil {
		return err
	}

	ep := container.EndpointSpec{MACAddress: v.MACAddress}
	if strings.EqualFold(v.NetworkMode, "static") && v.IP != "" {
		ep.IPv4Address = strings.SplitN(v.IP, "/", 2)[0]
	}
	if err := e.Driver.ConnectEndpoint(ctx, containerID, networkName, ep); err != nil {
		return err
	}

	status, err := e.Driver.Inspect(ctx, containerID)
	if err != nil {
		return err
	}
	if reported, ok := status.Networks[networkName]; ok && !strings.EqualFold(reported.MACAddress, v.MACAddress) {
		minilog.Warn("macenforcer: MAC enforcement may not have taken effect for %s on %s: expected=%s reported=%s",
			containerName, networkName, v.MACAddress, reported.MACAddress)
	}
	return nil
}

// backfillNetworkNames persists the docker_network_name discovered via
// the prefix-match fallback so future lookups hit the exact-match path.
func (e *Enforcer) backfillNetworkNames(containerName string, status container.Status, names []string) {
	wanted := map[string]bool{}
	for _, n := range names {
		wanted[n] = true
	}
	err := e.VNICs.UpdateVNICs(containerName, func(vnics []store.VNIC) []store.VNIC {
		for i := range vnics {
			if !wanted[vnics[i].Name] || vnics[i].DockerNetworkName != "" {
				continue
			}
			_, _, by := resolveEndpoint(status, vnics[i])
			if by != foundByFallback {
				continue
			}
			prefix := "macvlan_" + vnics[i].ParentInterface
			for name := range status.Networks {
				if strings.HasPrefix(name, prefix) {
					vnics[i].DockerNetworkName = name
					break
				}
			}
		}
		return vnics
	})
	if err != nil {
		minilog.Warn("macenforcer: failed to backfill docker_network_name for %s: %v", containerName, err)
	}
}
