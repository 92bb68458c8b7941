package runtime

import (
	"context"
	"strings"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/ifcache"
	"github.com/edgefleet/orchestrator-agent/internal/macaddr"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/opstate"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
	"github.com/edgefleet/orchestrator-agent/internal/store"
	"github.com/edgefleet/orchestrator-agent/internal/subnet"
)

// StartCreate guards entry: it runs the synchronous validation
// and the opstate.SetCreating exclusivity check while still on the
// caller's goroutine (so the dispatcher can reply with a precise
// rejection immediately), then runs the blocking pipeline itself in a
// new goroutine; every driver call blocks and must stay off the
// control-channel reader.
func (m *Manager) StartCreate(ctx context.Context, runtimeName string, vnics []VNICConfig, serials []SerialConfig) error {
	if err := validateCreateRequest(runtimeName, vnics, m.VNICs); err != nil {
		return err
	}

	if !m.Ops.SetCreating(runtimeName) {
		return orcherr.NewConflict(runtimeName, opstate.OpCreate)
	}

	go m.runCreate(ctx, runtimeName, vnics, serials)
	return nil
}

func (m *Manager) runCreate(ctx context.Context, runtimeName string, vnics []VNICConfig, serials []SerialConfig) {
	dhcpVNICs, err := m.createPipeline(ctx, runtimeName, vnics, serials)
	if err != nil {
		minilog.Error("runtime: failed to create runtime container %s: %+v", runtimeName, err)
		m.Ops.SetError(runtimeName, err.Error(), opstate.OpCreate)
		return
	}

	// DHCP requests go out after the pipeline finishes so a sidecar
	// hiccup never taints the create's own success/error state; the
	// record stays "creating" until they are sent, keeping a concurrent
	// delete locked out until the runtime is fully wired.
	if len(dhcpVNICs) > 0 {
		m.Ops.SetStep(runtimeName, "starting_dhcp")
		for _, d := range dhcpVNICs {
			params := netmonproto.StartDHCPParams{
				ContainerName: runtimeName,
				VNICName:      d.VNICName,
				MACAddress:    d.MACAddress,
				ContainerPID:  d.ContainerPID,
			}
			if _, err := m.Sidecar.Call(netmonproto.CmdStartDHCP, params, sidecarCallTimeout); err != nil {
				minilog.Warn("runtime: failed to request DHCP for %s/%s: %v", runtimeName, d.VNICName, err)
				continue
			}
			minilog.Info("runtime: requested DHCP for %s/%s", runtimeName, d.VNICName)
		}
	}

	m.Ops.Clear(runtimeName)
}

// createPipeline runs the create sequence, each step recorded via
// opstate.SetStep so get_device_status can report create progress.
func (m *Manager) createPipeline(ctx context.Context, runtimeName string, vnics []VNICConfig, serials []SerialConfig) ([]dhcpVNIC, error) {
	m.Ops.SetStep(runtimeName, "pulling_image")
	minilog.Info("runtime: pulling image %s", RuntimeImage)
	m.Driver.PullImage(ctx, RuntimeImage)

	m.Ops.SetStep(runtimeName, "creating_networks")
	if _, err := m.Driver.CreateInternalNetwork(ctx, runtimeName); err != nil {
		return nil, err
	}
	internalNetworkName := container.InternalNetworkName(runtimeName)

	type resolvedVNIC struct {
		cfg         VNICConfig
		networkName string
		mac         string
		ipv4        string
		dnsServers  []string
	}

	resolved := make([]resolvedVNIC, 0, len(vnics))
	var allDNS []string

	for _, v := range vnics {
		minilog.Debug("runtime: processing vNIC %s for parent interface %s", v.Name, v.ParentInterface)

		subnetField, gateway := v.Subnet, v.Gateway
		if subnetField == "" {
			// Auto-detect: the caller didn't supply a subnet/gateway, so
			// fall back to whatever the sidecar has discovered for this
			// host interface, waiting up to the bounded slow-path window
			// for discovery to arrive if it hasn't yet.
			entry, ok := m.IfCache.Get(v.ParentInterface)
			if !ok {
				entry, ok = m.IfCache.WaitFor(ctx, v.ParentInterface, ifcache.DefaultWaitTimeout, ifcache.DefaultWaitInterval)
			}
			if !ok {
				return nil, orcherr.NewValidation(
					"could not detect subnet for interface %s: the interface may not exist or netmon may not be running",
					v.ParentInterface)
			}
			subnetField, gateway = entry.SubnetCIDR, entry.Gateway
			minilog.Info("runtime: detected network for interface %s: subnet=%s, gateway=%s", v.ParentInterface, subnetField, gateway)
		}

		cidr, err := subnet.Normalize(subnetField, gateway)
		if err != nil {
			return nil, err
		}

		if _, err := m.Driver.GetOrCreateMacvlanNetwork(ctx, v.ParentInterface, cidr, gateway); err != nil {
			return nil, err
		}
		networkName := container.MacvlanNetworkName(v.ParentInterface, cidr)

		mac := v.MACAddress
		if mac == "" {
			mac, err = macaddr.Generate()
			if err != nil {
				return nil, err
			}
			minilog.Info("runtime: generated MAC address %s for vNIC %s", mac, v.Name)
		} else {
			minilog.Debug("runtime: using user-provided MAC address %s for vNIC %s", mac, v.Name)
		}

		ipv4 := ""
		if v.NetworkMode == "static" && v.IP != "" {
			ipv4 = strings.SplitN(v.IP, "/", 2)[0]
			minilog.Debug("runtime: configured manual IP %s for vNIC %s", ipv4, v.Name)
		}

		if len(v.DNS) > 0 {
			allDNS = append(allDNS, v.DNS...)
		}

		resolved = append(resolved, resolvedVNIC{cfg: v, networkName: networkName, mac: mac, ipv4: ipv4, dnsServers: v.DNS})
	}

	m.Ops.SetStep(runtimeName, "creating_container")
	minilog.Info("runtime: creating container %s", runtimeName)

	spec := container.ContainerSpec{
		Image:          RuntimeImage,
		Name:           runtimeName,
		PrimaryNetwork: internalNetworkName,
		DNS:            dedupe(allDNS),
	}
	for _, r := range resolved {
		spec.ExtraEndpoints = append(spec.ExtraEndpoints, container.EndpointSpec{
			NetworkName: r.networkName,
			MACAddress:  r.mac,
			IPv4Address: r.ipv4,
		})
	}

	containerID, err := m.Driver.CreateContainer(ctx, spec)
	if err != nil {
		return nil, err
	}

	if err := m.Driver.StartContainer(ctx, containerID); err != nil {
		return nil, err
	}
	minilog.Info("runtime: container %s created and started successfully", runtimeName)

	// Step 4: connect the agent's own container to the internal bridge.
	if selfID, ok := m.resolveSelf(ctx); ok {
		if err := m.Driver.ConnectEndpoint(ctx, selfID, internalNetworkName, container.EndpointSpec{}); err != nil {
			minilog.Warn("runtime: could not connect orchestrator-agent to internal network %s: %v", internalNetworkName, err)
		}
	} else {
		minilog.Warn("runtime: could not detect orchestrator-agent container, skipping internal network connection")
	}

	status, err := m.Driver.Inspect(ctx, containerID)
	if err != nil {
		return nil, err
	}

	if ep, ok := status.Networks[internalNetworkName]; ok {
		if err := m.Clients.Add(runtimeName, ep.IPAddress); err != nil {
			minilog.Warn("runtime: failed to register client entry for %s: %v", runtimeName, err)
		}
		minilog.Info("runtime: container %s has internal IP %s", runtimeName, ep.IPAddress)
	} else {
		minilog.Warn("runtime: could not retrieve internal IP for container %s", runtimeName)
	}

	persisted := make([]store.VNIC, 0, len(resolved))
	var dhcpVNICs []dhcpVNIC
	for _, r := range resolved {
		v := store.VNIC{
			Name:            r.cfg.Name,
			ParentInterface: r.cfg.ParentInterface,
			NetworkMode:     r.cfg.NetworkMode,
			IP:              r.cfg.IP,
			Subnet:          r.cfg.Subnet,
			Gateway:         r.cfg.Gateway,
			DNS:             r.cfg.DNS,
			MACAddress:      r.mac,
		}
		if ep, ok := status.Networks[r.networkName]; ok {
			v.MACAddress = ep.MACAddress
			v.DockerNetworkName = r.networkName
			minilog.Info("runtime: vNIC %s on %s: IP=%s, MAC=%s", r.cfg.Name, r.cfg.ParentInterface, ep.IPAddress, ep.MACAddress)

			if r.cfg.NetworkMode == "dhcp" && ep.MACAddress != "" && status.PID > 0 {
				dhcpVNICs = append(dhcpVNICs, dhcpVNIC{
					VNICName:     r.cfg.Name,
					MACAddress:   ep.MACAddress,
					ContainerPID: status.PID,
				})
			}
		}
		persisted = append(persisted, v)
	}

	if err := m.VNICs.Save(runtimeName, persisted); err != nil {
		return nil, err
	}

	if len(serials) > 0 {
		ports := make([]store.SerialPort, 0, len(serials))
		for _, s := range serials {
			ports = append(ports, store.SerialPort{
				Name:          s.Name,
				DeviceID:      s.DeviceID,
				ContainerPath: s.ContainerPath,
				BaudRate:      s.BaudRate,
			})
		}
		if err := m.Serial.Save(runtimeName, ports); err != nil {
			return nil, err
		}
		minilog.Info("runtime: saved %d serial port configuration(s) for %s", len(ports), runtimeName)
	}

	minilog.Info("runtime: runtime container %s created successfully with %d virtual NICs", runtimeName, len(vnics))

	m.Usage.AddDevice(runtimeName)
	minilog.Debug("runtime: registered device %s for usage data collection", runtimeName)

	return dhcpVNICs, nil
}

func (m *Manager) resolveSelf(ctx context.Context) (string, bool) {
	if m.SelfName == nil {
		return "", false
	}
	name, ok := m.SelfName()
	if !ok {
		return "", false
	}
	id, err := m.Driver.ResolveSelfByName(ctx, name)
	if err != nil {
		minilog.Warn("runtime: resolved self name %q but could not find container: %v", name, err)
		return "", false
	}
	return id, true
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// sidecarCallTimeout bounds the start_dhcp request the create pipeline
// makes after the worker returns; a slow or unresponsive sidecar must
// not hang the scheduler.
const sidecarCallTimeout = 5 * time.Second
