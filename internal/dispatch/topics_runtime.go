package dispatch

import (
	"context"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
	"github.com/edgefleet/orchestrator-agent/internal/runtime"
)

// createNewRuntimeHandler validates and kicks off the create pipeline:
// the synchronous checks (empty name, empty vnic_configs, in-progress
// conflict, MAC conflict) happen before any driver call, and the
// blocking pipeline itself runs on its own goroutine via StartCreate.
func createNewRuntimeHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		containerName, _ := payload["container_name"].(string)

		vnics, err := decodeVNICConfigs(payload["vnic_configs"])
		if err != nil {
			return nil, err
		}
		serials, err := decodeSerialConfigs(payload["serial_ports"])
		if err != nil {
			return nil, err
		}

		if err := deps.Runtime.StartCreate(ctx, containerName, vnics, serials); err != nil {
			return nil, err
		}

		minilog.Info("dispatch: creating runtime container: %s", containerName)
		return map[string]interface{}{
			"status":       "creating",
			"container_id": containerName,
			"message":      "Container creation started for " + containerName,
		}, nil
	}
}

func deleteDeviceHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		deviceID, _ := payload["device_id"].(string)

		if err := deps.Runtime.StartDelete(ctx, deviceID); err != nil {
			return nil, err
		}

		minilog.Info("dispatch: deleting runtime container: %s", deviceID)
		return map[string]interface{}{
			"status":    "deleting",
			"device_id": deviceID,
			"message":   "Container deletion started for " + deviceID,
		}, nil
	}
}

func decodeVNICConfigs(raw interface{}) ([]runtime.VNICConfig, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, orcherr.NewValidation("vnic_configs must be a list")
	}

	out := make([]runtime.VNICConfig, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, orcherr.NewValidation("vnic_configs entries must be objects")
		}
		out = append(out, runtime.VNICConfig{
			Name:            stringField(m, "name"),
			ParentInterface: stringField(m, "parent_interface"),
			NetworkMode:     stringField(m, "network_mode"),
			IP:              stringField(m, "ip"),
			Subnet:          stringField(m, "subnet"),
			Gateway:         stringField(m, "gateway"),
			DNS:             stringListField(m, "dns"),
			MACAddress:      stringField(m, "mac"),
		})
	}
	return out, nil
}

func decodeSerialConfigs(raw interface{}) ([]runtime.SerialConfig, error) {
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, orcherr.NewValidation("serial_ports must be a list")
	}

	out := make([]runtime.SerialConfig, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, orcherr.NewValidation("serial_ports entries must be objects")
		}
		out = append(out, runtime.SerialConfig{
			Name:          stringField(m, "name"),
			DeviceID:      stringField(m, "device_id"),
			ContainerPath: stringField(m, "container_path"),
			BaudRate:      intField(m, "baud_rate"),
		})
	}
	return out, nil
}

func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringListField(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
