package store

import (
	"encoding/json"
	"strings"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// SerialDoc is the on-disk shape for one container's serial
// passthroughs.
type SerialDoc struct {
	SerialPorts []SerialPort `json:"serial_ports"`
}

// SerialStore wraps serial_configs.json.
type SerialStore struct {
	file *File
}

func NewSerialStore(path string) *SerialStore {
	return &SerialStore{file: NewFile(path)}
}

// Save initializes runtime state defaults (disconnected, nil host path) for
// every port; live state is populated later by the hotplug watcher.
func (s *SerialStore) Save(runtimeName string, ports []SerialPort) error {
	initialized := make([]SerialPort, len(ports))
	for i, p := range ports {
		initialized[i] = SerialPort{
			Name:          p.Name,
			DeviceID:      p.DeviceID,
			ContainerPath: p.ContainerPath,
			BaudRate:      p.BaudRate,
			Status:        SerialDisconnected,
		}
	}
	if err := s.file.Save(runtimeName, SerialDoc{SerialPorts: initialized}); err != nil {
		minilog.Error("store: failed to save serial configs for %s: %v", runtimeName, err)
		return err
	}
	return nil
}

func (s *SerialStore) Load(runtimeName string) (SerialDoc, error) {
	var doc SerialDoc
	ok, err := s.file.Load(runtimeName, &doc)
	if err != nil {
		minilog.Error("store: failed to load serial configs for %s: %v", runtimeName, err)
		return SerialDoc{SerialPorts: []SerialPort{}}, err
	}
	if !ok {
		return SerialDoc{SerialPorts: []SerialPort{}}, nil
	}
	return doc, nil
}

func (s *SerialStore) LoadAll() (map[string]SerialDoc, error) {
	out := map[string]SerialDoc{}
	err := s.file.LoadAll(func(key string, raw json.RawMessage) error {
		var doc SerialDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		out[key] = doc
		return nil
	})
	if err != nil {
		minilog.Error("store: failed to load all serial configs: %v", err)
		return nil, err
	}
	return out, nil
}

func (s *SerialStore) Delete(runtimeName string) error {
	return s.file.Delete(runtimeName)
}

// UpdateStatus sets the live status of one named serial port within a
// runtime's config, clearing host path/major/minor when status becomes
// disconnected.
func (s *SerialStore) UpdateStatus(runtimeName, portName, status string, hostPath *string, major, minor *int) error {
	return s.file.Update(runtimeName, func(existing json.RawMessage) (interface{}, bool, error) {
		if existing == nil {
			minilog.Warn("store: cannot update serial status: container %s not found", runtimeName)
			return nil, false, nil
		}
		var doc SerialDoc
		if err := json.Unmarshal(existing, &doc); err != nil {
			return nil, false, err
		}
		found := false
		for i := range doc.SerialPorts {
			if doc.SerialPorts[i].Name != portName {
				continue
			}
			found = true
			doc.SerialPorts[i].Status = status
			if status == SerialDisconnected {
				doc.SerialPorts[i].CurrentHostPath = nil
				doc.SerialPorts[i].Major = nil
				doc.SerialPorts[i].Minor = nil
			} else {
				if hostPath != nil {
					doc.SerialPorts[i].CurrentHostPath = hostPath
				}
				if major != nil {
					doc.SerialPorts[i].Major = major
				}
				if minor != nil {
					doc.SerialPorts[i].Minor = minor
				}
			}
			break
		}
		if !found {
			minilog.Warn("store: serial port %q not found in container %s", portName, runtimeName)
			return nil, false, nil
		}
		return doc, true, nil
	})
}

// MatchByDeviceID finds every (container, port) pair whose device_id
// substring-matches deviceID in either direction, as the hotplug watcher
// needs when correlating a udev-style event to configured ports.
func (s *SerialStore) MatchByDeviceID(deviceID string) ([]MatchedPort, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	var matches []MatchedPort
	for name, doc := range all {
		for _, p := range doc.SerialPorts {
			if p.DeviceID == "" {
				continue
			}
			if strings.Contains(p.DeviceID, deviceID) || strings.Contains(deviceID, p.DeviceID) {
				matches = append(matches, MatchedPort{RuntimeName: name, Port: p})
			}
		}
	}
	return matches, nil
}

// AllConfiguredPorts flattens every persisted serial port across every
// runtime, used for the initial device sync on startup.
func (s *SerialStore) AllConfiguredPorts() ([]MatchedPort, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	var ports []MatchedPort
	for name, doc := range all {
		for _, p := range doc.SerialPorts {
			ports = append(ports, MatchedPort{RuntimeName: name, Port: p})
		}
	}
	return ports, nil
}

// MatchedPort pairs a serial port config with the runtime it belongs to.
type MatchedPort struct {
	RuntimeName string
	Port        SerialPort
}
