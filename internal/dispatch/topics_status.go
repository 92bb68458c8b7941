package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/opstate"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

// getDeviceStatusHandler answers get_device_status: a tracked-operation
// branch takes priority over live inspection (a
// container mid-create may not exist yet, or may be in a transient state
// inspect would misreport), then falls back to a container inspect with
// a DHCP-IP overlay and serial port enrichment.
func getDeviceStatusHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		deviceID, _ := payload["device_id"].(string)
		if deviceID == "" {
			return nil, orcherr.NewValidation("device_id must be a non-empty string")
		}

		if rec, ok := deps.Runtime.Ops.Get(deviceID); ok {
			return opStateResponse(deviceID, rec), nil
		}

		containerID, err := deps.Runtime.Driver.ResolveSelfByName(ctx, deviceID)
		if err != nil {
			return map[string]interface{}{
				"status":    "not_found",
				"device_id": deviceID,
				"message":   "Container " + deviceID + " does not exist",
			}, nil
		}

		status, err := deps.Runtime.Driver.Inspect(ctx, containerID)
		if err != nil {
			return nil, err
		}

		vnics, _ := deps.Runtime.VNICs.Load(deviceID)
		dhcpByNetwork, dhcpByParent := dhcpOverlays(vnics)

		networks := map[string]interface{}{}
		for name, ep := range status.Networks {
			if strings.HasSuffix(name, "_internal") {
				continue
			}

			ip, gateway := ep.IPAddress, ""
			if dhcp, ok := dhcpByNetwork[name]; ok {
				ip, gateway = dhcp.ip, dhcp.gateway
			} else {
				for parent, dhcp := range dhcpByParent {
					if strings.HasPrefix(name, "macvlan_"+parent) {
						ip, gateway = dhcp.ip, dhcp.gateway
						break
					}
				}
			}

			networks[name] = map[string]interface{}{
				"ip_address":  ip,
				"mac_address": ep.MACAddress,
				"gateway":     gateway,
			}
		}

		response := map[string]interface{}{
			"status":           "success",
			"device_id":        deviceID,
			"container_status": status.ContainerStatus,
			"is_running":       status.Running,
			"networks":         networks,
			"restart_count":    status.RestartCount,
		}

		if rec, ok, _ := deps.Runtime.Clients.Get(deviceID); ok && rec.IP != "" {
			response["internal_ip"] = rec.IP
		}

		if status.Running && status.StartedAt != "" {
			if uptime, ok := parseUptime(status.StartedAt); ok {
				response["uptime_seconds"] = uptime
			}
		}
		if !status.Running {
			response["exit_code"] = status.ExitCode
		}
		if status.Health != "" {
			response["health_status"] = status.Health
		}

		if ports := serialPortStatuses(deps, deviceID); len(ports) > 0 {
			response["serial_ports"] = ports
		}

		return response, nil
	}
}

func opStateResponse(deviceID string, rec opstate.Record) map[string]interface{} {
	resp := map[string]interface{}{
		"status":     rec.Status,
		"device_id":  deviceID,
		"operation":  rec.Operation,
		"started_at": rec.StartedAt.Format(time.RFC3339),
		"updated_at": rec.UpdatedAt.Format(time.RFC3339),
	}
	if rec.Step != "" {
		resp["step"] = rec.Step
	}
	switch {
	case rec.Error != "":
		resp["error"] = rec.Error
		resp["message"] = "Operation failed: " + rec.Error
	case rec.Status == opstate.StatusCreating:
		resp["message"] = "Container " + deviceID + " is being created"
	case rec.Status == opstate.StatusDeleting:
		resp["message"] = "Container " + deviceID + " is being deleted"
	}
	return resp
}

type dhcpInfo struct {
	ip      string
	gateway string
}

// dhcpOverlays indexes every persisted vNIC's learned DHCP lease by its
// docker_network_name (exact match, preferred) and by parent_interface
// (fallback: the network name starts with macvlan_{parent}).
func dhcpOverlays(vnics []store.VNIC) (byNetwork, byParent map[string]dhcpInfo) {
	byNetwork = map[string]dhcpInfo{}
	byParent = map[string]dhcpInfo{}
	for _, v := range vnics {
		if v.DHCPIP == "" {
			continue
		}
		info := dhcpInfo{ip: v.DHCPIP, gateway: v.DHCPGateway}
		if v.DockerNetworkName != "" {
			byNetwork[v.DockerNetworkName] = info
		}
		if v.ParentInterface != "" {
			byParent[v.ParentInterface] = info
		}
	}
	return byNetwork, byParent
}

// parseUptime truncates Docker's RFC3339-nano StartedAt timestamp to
// whole seconds before parsing, since uptime only needs second
// precision.
func parseUptime(startedAt string) (int64, bool) {
	trimmed := startedAt
	if i := strings.IndexByte(trimmed, '.'); i >= 0 {
		trimmed = trimmed[:i]
	}
	t, err := time.Parse("2006-01-02T15:04:05", trimmed)
	if err != nil {
		minilog.Warn("dispatch: could not parse container start time %q: %v", startedAt, err)
		return 0, false
	}
	return int64(time.Since(t).Seconds()), true
}

func serialPortStatuses(deps Deps, deviceID string) []map[string]interface{} {
	doc, err := deps.Runtime.Serial.Load(deviceID)
	if err != nil {
		minilog.Warn("dispatch: failed to load serial configs for %s: %v", deviceID, err)
		return nil
	}

	out := make([]map[string]interface{}, 0, len(doc.SerialPorts))
	for _, p := range doc.SerialPorts {
		entry := map[string]interface{}{
			"name":           p.Name,
			"device_id":      p.DeviceID,
			"container_path": p.ContainerPath,
			"status":         p.Status,
		}
		if p.CurrentHostPath != nil {
			entry["current_host_path"] = *p.CurrentHostPath
		}
		if p.BaudRate != 0 {
			entry["baud_rate"] = p.BaudRate
		}
		out = append(out, entry)
	}
	return out
}

// getHostInterfacesHandler sources its answer from the interface cache
// the netmon sidecar keeps current over netlink rather than a second
// direct introspection of the host: the agent already delegates host
// network discovery to the sidecar for every other purpose, so it does
// here too.
func getHostInterfacesHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		snapshot := deps.Runtime.IfCache.Snapshot()

		interfaces := make([]map[string]interface{}, 0, len(snapshot))
		for name, entry := range snapshot {
			var ip interface{}
			if len(entry.Addresses) > 0 {
				ip = entry.Addresses[0]
			}
			interfaces = append(interfaces, map[string]interface{}{
				"name":           name,
				"ip_address":     ip,
				"ipv4_addresses": entry.Addresses,
				"subnet":         entry.SubnetCIDR,
				"gateway":        entry.Gateway,
			})
		}

		return map[string]interface{}{
			"status":     "success",
			"interfaces": interfaces,
		}, nil
	}
}

// getSerialDevicesHandler reports the sidecar's last-known hotplug
// cache, reshaping each entry's by_id into the reply's device_id.
func getSerialDevicesHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		devices := deps.Runtime.Sidecar.Devices().Snapshot()

		formatted := make([]map[string]interface{}, 0, len(devices))
		for _, d := range devices {
			formatted = append(formatted, map[string]interface{}{
				"path":         d.Path,
				"device_id":    d.ByID,
				"vendor_id":    d.VendorID,
				"product_id":   d.ProductID,
				"serial":       d.Serial,
				"manufacturer": d.Manufacturer,
				"product":      d.Product,
			})
		}

		return map[string]interface{}{
			"status":  "success",
			"devices": formatted,
			"count":   len(formatted),
		}, nil
	}
}
