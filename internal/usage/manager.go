package usage

import (
	"sync"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// Manager keeps one ring Buffer per registered device (runtime container
// name). Registration is explicit and tied to runtime create/delete.
type Manager struct {
	mu      sync.Mutex
	buffers map[string]*Buffer
}

func NewManager() *Manager {
	return &Manager{buffers: make(map[string]*Buffer)}
}

func (m *Manager) AddDevice(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buffers[deviceID]; ok {
		minilog.Debug("usage: buffer for device %s already exists", deviceID)
		return
	}
	m.buffers[deviceID] = NewBuffer()
	minilog.Info("usage: created usage buffer for device %s", deviceID)
}

func (m *Manager) RemoveDevice(deviceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buffers[deviceID]; !ok {
		minilog.Debug("usage: buffer for device %s not found", deviceID)
		return
	}
	delete(m.buffers, deviceID)
	minilog.Info("usage: removed usage buffer for device %s", deviceID)
}

func (m *Manager) HasDevice(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.buffers[deviceID]
	return ok
}

func (m *Manager) DeviceIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.buffers))
	for id := range m.buffers {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) get(deviceID string) (*Buffer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buffers[deviceID]
	return b, ok
}

func (m *Manager) AddSample(deviceID string, cpuPct, memMB float64) {
	b, ok := m.get(deviceID)
	if !ok {
		minilog.Warn("usage: cannot add sample for device %s: device not registered", deviceID)
		return
	}
	b.Add(cpuPct, memMB, time.Now())
}

func (m *Manager) GetSamples(deviceID string, start, end time.Time) []Sample {
	b, ok := m.get(deviceID)
	if !ok {
		minilog.Warn("usage: cannot get samples for device %s: device not registered", deviceID)
		return nil
	}
	return b.Range(start, end)
}

func (m *Manager) BufferSize(deviceID string) int {
	b, ok := m.get(deviceID)
	if !ok {
		return 0
	}
	return b.Len()
}

func (m *Manager) ClearDevice(deviceID string) {
	b, ok := m.get(deviceID)
	if !ok {
		return
	}
	b.Clear()
	minilog.Debug("usage: cleared usage buffer for device %s", deviceID)
}
