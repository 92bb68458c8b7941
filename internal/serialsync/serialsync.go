// Package serialsync drives each runtime's persisted serial-port status
// from the sidecar's device hotplug stream: a device_change add marks
// every port whose device_id matches as connected with the device's
// current host path and major/minor, a remove marks it disconnected,
// and the once-per-connect device_discovery snapshot seeds live status
// for every configured port so state is correct across agent and
// sidecar restarts.
package serialsync

import (
	"strings"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

// Syncer correlates sidecar device events to the serial intents
// persisted per runtime.
type Syncer struct {
	Serial *store.SerialStore
}

func New(serial *store.SerialStore) *Syncer {
	return &Syncer{Serial: serial}
}

// HandleChange processes one device_change event, updating every
// configured port whose device_id matches the device's by_id path.
func (s *Syncer) HandleChange(ev netmonproto.DeviceChange) {
	id := ev.Device.ByID
	if id == "" {
		id = ev.Device.Path
	}
	if id == "" {
		return
	}

	matches, err := s.Serial.MatchByDeviceID(id)
	if err != nil {
		minilog.Warn("serialsync: failed to match device %s against configured ports: %v", id, err)
		return
	}
	if len(matches) == 0 {
		minilog.Debug("serialsync: device %s matches no configured serial port", id)
		return
	}

	for _, m := range matches {
		switch ev.Action {
		case "add":
			hostPath := ev.Device.Path
			major, minor := ev.Device.Major, ev.Device.Minor
			if err := s.Serial.UpdateStatus(m.RuntimeName, m.Port.Name, store.SerialConnected, &hostPath, &major, &minor); err != nil {
				minilog.Warn("serialsync: failed to mark %s:%s connected: %v", m.RuntimeName, m.Port.Name, err)
				continue
			}
			minilog.Info("serialsync: serial port %s:%s connected at %s", m.RuntimeName, m.Port.Name, hostPath)
		case "remove":
			if err := s.Serial.UpdateStatus(m.RuntimeName, m.Port.Name, store.SerialDisconnected, nil, nil, nil); err != nil {
				minilog.Warn("serialsync: failed to mark %s:%s disconnected: %v", m.RuntimeName, m.Port.Name, err)
				continue
			}
			minilog.Info("serialsync: serial port %s:%s disconnected", m.RuntimeName, m.Port.Name)
		default:
			minilog.Warn("serialsync: unknown device_change action %q for %s", ev.Action, id)
		}
	}
}

// SeedFromDiscovery reconciles every configured port against the
// sidecar's full device snapshot: ports whose device is present become
// connected, the rest become disconnected. Hotplug events that happened
// while the agent was down are absorbed here.
func (s *Syncer) SeedFromDiscovery(devices []netmonproto.DeviceInfo) {
	ports, err := s.Serial.AllConfiguredPorts()
	if err != nil {
		minilog.Warn("serialsync: failed to load configured serial ports: %v", err)
		return
	}

	for _, p := range ports {
		dev, present := findDevice(p.Port.DeviceID, devices)
		if present {
			hostPath := dev.Path
			major, minor := dev.Major, dev.Minor
			if err := s.Serial.UpdateStatus(p.RuntimeName, p.Port.Name, store.SerialConnected, &hostPath, &major, &minor); err != nil {
				minilog.Warn("serialsync: failed to seed %s:%s as connected: %v", p.RuntimeName, p.Port.Name, err)
			}
			continue
		}
		if err := s.Serial.UpdateStatus(p.RuntimeName, p.Port.Name, store.SerialDisconnected, nil, nil, nil); err != nil {
			minilog.Warn("serialsync: failed to seed %s:%s as disconnected: %v", p.RuntimeName, p.Port.Name, err)
		}
	}
}

// findDevice locates the discovered device matching a configured
// device_id, using the same bidirectional substring match the store's
// device-id lookup applies (a configured id may be the full by_id path
// or a distinctive fragment of it).
func findDevice(deviceID string, devices []netmonproto.DeviceInfo) (netmonproto.DeviceInfo, bool) {
	if deviceID == "" {
		return netmonproto.DeviceInfo{}, false
	}
	for _, d := range devices {
		id := d.ByID
		if id == "" {
			id = d.Path
		}
		if id == "" {
			continue
		}
		if strings.Contains(id, deviceID) || strings.Contains(deviceID, id) {
			return d, true
		}
	}
	return netmonproto.DeviceInfo{}, false
}
