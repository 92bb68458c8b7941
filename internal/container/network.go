package container

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// MacvlanNetworkName derives the canonical L2 network name from a
// parent interface and normalized CIDR:
// `macvlan_{iface}_{subnet_with_/_to_underscore}`.
func MacvlanNetworkName(parentInterface, cidr string) string {
	return fmt.Sprintf("macvlan_%s_%s", parentInterface, strings.ReplaceAll(cidr, "/", "_"))
}

// InternalNetworkName derives the per-runtime internal bridge name.
func InternalNetworkName(runtimeName string) string {
	return runtimeName + "_internal"
}

const parentOptionKey = "parent"

// GetOrCreateMacvlanNetwork resolves the existing L2 network for
// (parentInterface, cidr), creating it if absent. On an overlap error
// from the daemon (another network already claims the same address
// space), it enumerates existing macvlan networks and adopts the one
// whose (subnet, parent) matches.
func (d *Driver) GetOrCreateMacvlanNetwork(ctx context.Context, parentInterface, cidr, gateway string) (string, error) {
	name := MacvlanNetworkName(parentInterface, cidr)

	if id, ok, err := d.resolveNetworkByName(ctx, name); err != nil {
		return "", orcherr.NewDriver("inspect network "+name, err)
	} else if ok {
		return id, nil
	}

	ipamConfig := network.IPAMConfig{Subnet: cidr}
	if gateway != "" {
		ipamConfig.Gateway = gateway
	}

	resp, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "macvlan",
		IPAM: &network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{ipamConfig},
		},
		Options: map[string]string{
			parentOptionKey: parentInterface,
		},
	})
	if err == nil {
		return resp.ID, nil
	}

	if !errdefs.IsForbidden(err) && !isOverlapError(err) {
		return "", orcherr.NewDriver("create network "+name, err)
	}

	minilog.Warn("container: macvlan network %s overlaps an existing network, searching for one to adopt", name)
	adopted, ok, adoptErr := d.findMacvlanByParentAndSubnet(ctx, parentInterface, cidr)
	if adoptErr != nil {
		return "", orcherr.NewDriver("recover from overlap creating "+name, adoptErr)
	}
	if !ok {
		return "", orcherr.NewDriver("create network "+name, err)
	}
	minilog.Info("container: adopted existing macvlan network %s for %s/%s", adopted, parentInterface, cidr)
	return adopted, nil
}

func isOverlapError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "overlap")
}

func (d *Driver) resolveNetworkByName(ctx context.Context, name string) (string, bool, error) {
	nets, err := d.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", false, err
	}
	for _, n := range nets {
		if n.Name == name {
			return n.ID, true, nil
		}
	}
	return "", false, nil
}

// findMacvlanByParentAndSubnet lists every macvlan network and returns
// the one whose parent option matches parentInterface and whose IPAM
// subnet matches cidr.
func (d *Driver) findMacvlanByParentAndSubnet(ctx context.Context, parentInterface, cidr string) (string, bool, error) {
	nets, err := d.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("driver", "macvlan")),
	})
	if err != nil {
		return "", false, err
	}
	for _, n := range nets {
		if n.Options[parentOptionKey] != parentInterface {
			continue
		}
		for _, cfg := range n.IPAM.Config {
			if cfg.Subnet == cidr {
				return n.ID, true, nil
			}
		}
	}
	return "", false, nil
}

// NetworksByParent returns every network (id, name, subnet) whose
// macvlan parent option equals parentInterface, used by the reconciler
// to disconnect every matching endpoint rather than only the first
// name-prefix match.
func (d *Driver) NetworksByParent(ctx context.Context, parentInterface string) ([]NetworkSummary, error) {
	nets, err := d.cli.NetworkList(ctx, network.ListOptions{
		Filters: filters.NewArgs(filters.Arg("driver", "macvlan")),
	})
	if err != nil {
		return nil, orcherr.NewDriver("list networks", err)
	}
	var out []NetworkSummary
	for _, n := range nets {
		if n.Options[parentOptionKey] != parentInterface {
			continue
		}
		subnet := ""
		if len(n.IPAM.Config) > 0 {
			subnet = n.IPAM.Config[0].Subnet
		}
		out = append(out, NetworkSummary{ID: n.ID, Name: n.Name, Subnet: subnet, Parent: parentInterface})
	}
	return out, nil
}

// NetworkSummary is a minimal projection of a Docker network used by the
// reconciler.
type NetworkSummary struct {
	ID     string
	Name   string
	Subnet string
	Parent string
}

// CreateInternalNetwork creates the isolated per-runtime bridge network
// {runtime_name}_internal used to reach the runtime for run_command and
// the agent's own control plumbing.
func (d *Driver) CreateInternalNetwork(ctx context.Context, runtimeName string) (string, error) {
	name := InternalNetworkName(runtimeName)

	if id, ok, err := d.resolveNetworkByName(ctx, name); err != nil {
		return "", orcherr.NewDriver("inspect network "+name, err)
	} else if ok {
		return id, nil
	}

	resp, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver:   "bridge",
		Internal: true,
	})
	if err != nil {
		return "", orcherr.NewDriver("create internal network "+name, err)
	}
	return resp.ID, nil
}

// ConnectEndpoint attaches containerID to networkName with the given
// endpoint spec (pinned MAC, optional static IPv4).
func (d *Driver) ConnectEndpoint(ctx context.Context, containerID, networkName string, ep EndpointSpec) error {
	settings := &network.EndpointSettings{
		MacAddress: ep.MACAddress,
	}
	if ep.IPv4Address != "" {
		settings.IPAMConfig = &network.EndpointIPAMConfig{IPv4Address: ep.IPv4Address}
	}

	err := d.cli.NetworkConnect(ctx, networkName, containerID, settings)
	if err != nil && isAlreadyConnected(err) {
		minilog.Debug("container: %s already connected to %s, tolerating", containerID, networkName)
		return nil
	}
	if err != nil {
		return orcherr.NewDriver(fmt.Sprintf("connect %s to %s", containerID, networkName), err)
	}
	return nil
}

func isAlreadyConnected(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "already")
}

// DisconnectEndpoint removes containerID from networkName. With
// force=true the daemon drops the endpoint even if the container is
// running.
func (d *Driver) DisconnectEndpoint(ctx context.Context, containerID, networkName string, force bool) error {
	err := d.cli.NetworkDisconnect(ctx, networkName, containerID, force)
	if err != nil && errdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return orcherr.NewDriver(fmt.Sprintf("disconnect %s from %s", containerID, networkName), err)
	}
	return nil
}

// RemoveNetwork deletes a network by id or name. Never called on L2
// (macvlan) networks, which are never deleted by the agent — only on a
// runtime's internal network during delete.
func (d *Driver) RemoveNetwork(ctx context.Context, idOrName string) error {
	if err := d.cli.NetworkRemove(ctx, idOrName); err != nil && !errdefs.IsNotFound(err) {
		return orcherr.NewDriver("remove network "+idOrName, err)
	}
	return nil
}
