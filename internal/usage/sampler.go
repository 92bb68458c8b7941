package usage

import (
	"time"

	"github.com/c9s/goprocinfo/linux"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// Sampler periodically reads /proc/stat and /proc/meminfo via
// c9s/goprocinfo and feeds the host-wide figures into the agent's own
// ring buffer, the one get_consumption_orchestrator reads. It does not
// sample individual containers; the buffers registered for runtime
// containers receive no samples from this package.
type Sampler struct {
	mgr      *Manager
	interval time.Duration

	prevTotal uint64
	prevIdle  uint64
	havePrev  bool
}

func NewSampler(mgr *Manager, interval time.Duration) *Sampler {
	return &Sampler{mgr: mgr, interval: interval}
}

// SampleHost reads current host CPU/mem stats and records one sample
// under deviceID (conventionally the agent's own container/device id).
func (s *Sampler) SampleHost(deviceID string) {
	cpuPct, err := s.hostCPUPercent()
	if err != nil {
		minilog.Warn("usage: failed to read /proc/stat: %v", err)
		return
	}

	memMB, err := hostMemUsedMB()
	if err != nil {
		minilog.Warn("usage: failed to read /proc/meminfo: %v", err)
		return
	}

	s.mgr.AddSample(deviceID, cpuPct, memMB)
}

func (s *Sampler) hostCPUPercent() (float64, error) {
	stat, err := linux.ReadStat("/proc/stat")
	if err != nil {
		return 0, err
	}

	c := stat.CPUStatAll
	idle := c.Idle + c.IOWait
	total := c.User + c.Nice + c.System + c.Idle + c.IOWait + c.IRQ + c.SoftIRQ + c.Steal

	if !s.havePrev {
		s.prevTotal, s.prevIdle = total, idle
		s.havePrev = true
		return 0, nil
	}

	deltaTotal := float64(total - s.prevTotal)
	deltaIdle := float64(idle - s.prevIdle)
	s.prevTotal, s.prevIdle = total, idle

	if deltaTotal <= 0 {
		return 0, nil
	}
	return (deltaTotal - deltaIdle) / deltaTotal * 100, nil
}

func hostMemUsedMB() (float64, error) {
	mem, err := linux.ReadMemInfo("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	usedKB := mem.MemTotal - mem.MemAvailable
	return float64(usedKB) / 1024, nil
}

// Run samples the host on a fixed tick until ctx-like stop channel closes.
func (s *Sampler) Run(deviceID string, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.SampleHost(deviceID)
		}
	}
}
