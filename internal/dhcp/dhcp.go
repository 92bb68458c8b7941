// Package dhcp supervises one udhcpc client per (container, vNIC) inside
// the target container's network namespace, watches its lease file, and
// restarts it if the process dies. This runs inside the netmon sidecar,
// which owns the host privileges needed to enter container namespaces.
package dhcp

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// terminateSignal is sent first; SIGKILL follows after the grace period.
var terminateSignal = syscall.SIGTERM

// LeaseDir is where the udhcpc hook script writes JSON lease files,
// named {container_name}_{vnic_name}.lease (the ":" in the internal key
// is not filesystem-safe, hence the underscore join).
const LeaseDir = "/var/orchestrator/dhcp"

const (
	findInterfaceMaxRetries = 10
	findInterfaceRetryDelay = 300 * time.Millisecond
	leasePollInterval       = 2 * time.Second
	stopGrace               = 5 * time.Second
)

// client is the supervised process plus the metadata needed to restart
// it and to detect lease changes.
type client struct {
	cmd           *exec.Cmd
	containerName string
	vnicName      string
	macAddress    string
	pid           int
	interfaceName string
	leaseFile     string
	lastIP        string
	exited        atomic.Bool
	waitDone      chan struct{}
}

// Manager owns every supervised udhcpc client.
type Manager struct {
	mu        sync.Mutex
	clients   map[string]*client // key: "container:vnic"
	sendEvent func(netmonproto.DHCPUpdate)
	stop      chan struct{}
	runNS     func(pid int, args ...string) ([]byte, error)
}

// New builds a Manager that reports lease updates via sendEvent.
func New(sendEvent func(netmonproto.DHCPUpdate)) *Manager {
	return &Manager{
		clients:   make(map[string]*client),
		sendEvent: sendEvent,
		runNS:     runInNetns,
	}
}

// Start launches the lease-file poller / dead-process sweep goroutine.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.stop != nil {
		m.mu.Unlock()
		return
	}
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	if err := os.MkdirAll(LeaseDir, 0o755); err != nil {
		minilog.Error("dhcp: failed to create lease directory %s: %v", LeaseDir, err)
	}

	go m.monitorLoop(stop)
	minilog.Info("dhcp: lease monitor started")
}

// Stop terminates every supervised client and the monitor goroutine.
func (m *Manager) Stop() {
	m.mu.Lock()
	keys := make([]string, 0, len(m.clients))
	for k := range m.clients {
		keys = append(keys, k)
	}
	stop := m.stop
	m.stop = nil
	m.mu.Unlock()

	for _, k := range keys {
		m.StopDHCP(k)
	}
	if stop != nil {
		close(stop)
	}
	minilog.Info("dhcp: manager stopped")
}

func key(containerName, vnicName string) string {
	return containerName + ":" + vnicName
}

// StartDHCP finds the vNIC's interface inside the container's netns by
// MAC address (retrying up to findInterfaceMaxRetries times to cover
// kernel/driver propagation delay) and spawns a udhcpc client for it.
// If a client is already running for this key, it's a no-op.
func (m *Manager) StartDHCP(containerName, vnicName, macAddress string, containerPID int) error {
	k := key(containerName, vnicName)

	m.mu.Lock()
	if c, ok := m.clients[k]; ok && !c.exited.Load() {
		m.mu.Unlock()
		minilog.Info("dhcp: client already running for %s", k)
		return nil
	}
	m.mu.Unlock()

	if containerPID <= 0 {
		return orcherr.NewDHCP("invalid container PID: %d", containerPID)
	}
	netnsPath := fmt.Sprintf("/proc/%d/ns/net", containerPID)
	if _, err := os.Stat(netnsPath); err != nil {
		return orcherr.NewDHCP("container PID %d network namespace not found: %v", containerPID, err)
	}

	minilog.Info("dhcp: looking for interface with MAC %s in container PID %d", macAddress, containerPID)

	var iface string
	for attempt := 0; attempt < findInterfaceMaxRetries; attempt++ {
		found, err := m.findInterfaceByMAC(containerPID, macAddress)
		if err != nil {
			minilog.Debug("dhcp: interface lookup attempt %d for %s: %v", attempt+1, k, err)
		}
		if found != "" {
			iface = found
			if attempt > 0 {
				minilog.Info("dhcp: found interface %s after %d attempts", iface, attempt+1)
			}
			break
		}
		if attempt < findInterfaceMaxRetries-1 {
			time.Sleep(findInterfaceRetryDelay)
		}
	}
	if iface == "" {
		return orcherr.NewDHCP("interface with MAC %s not found in container after %d retries", macAddress, findInterfaceMaxRetries)
	}

	minilog.Info("dhcp: starting DHCP client for %s on interface %s (MAC: %s)", k, iface, macAddress)

	leaseKey := strings.ReplaceAll(k, ":", "_")
	leaseFile := LeaseDir + "/" + leaseKey + ".lease"

	cmd := exec.Command("nsenter", "-t", strconv.Itoa(containerPID), "-n",
		"udhcpc", "-f", "-i", iface,
		"-s", "/usr/share/udhcpc/default.script",
		"-t", "5", "-T", "3")
	cmd.Env = append(os.Environ(), "ORCH_DHCP_KEY="+leaseKey)

	if err := cmd.Start(); err != nil {
		return orcherr.NewDHCP("failed to start DHCP client for %s: %v", k, err)
	}

	c := &client{
		cmd: cmd, containerName: containerName, vnicName: vnicName,
		macAddress: macAddress, pid: containerPID, interfaceName: iface, leaseFile: leaseFile,
		waitDone: make(chan struct{}),
	}
	m.mu.Lock()
	m.clients[k] = c
	m.mu.Unlock()

	// A single goroutine owns cmd.Wait() for this process's whole
	// lifetime so it's reaped exactly once, whether it exits on its own
	// (sweepDead notices via c.exited) or is terminated by StopDHCP.
	go func() {
		cmd.Wait()
		c.exited.Store(true)
		close(c.waitDone)
	}()

	minilog.Info("dhcp: DHCP client started for %s (PID: %d)", k, cmd.Process.Pid)
	return nil
}

// StopDHCP terminates the client for key, giving it stopGrace before a
// kill, and drops its state.
func (m *Manager) StopDHCP(k string) error {
	m.mu.Lock()
	c, ok := m.clients[k]
	if ok {
		delete(m.clients, k)
	}
	m.mu.Unlock()

	if !ok {
		return orcherr.NewNotFound("no DHCP client found for %s", k)
	}
	if c.exited.Load() {
		return nil
	}

	if err := c.cmd.Process.Signal(terminateSignal); err != nil {
		minilog.Warn("dhcp: error signaling DHCP client %s: %v", k, err)
	}

	select {
	case <-c.waitDone:
	case <-time.After(stopGrace):
		c.cmd.Process.Kill()
		<-c.waitDone
	}

	minilog.Info("dhcp: DHCP client stopped for %s", k)
	return nil
}

// Status reports whether each supervised client's process is still
// alive, for get_dhcp_status.
type Status struct {
	Running bool `json:"running"`
	PID     int  `json:"pid"`
}

func (m *Manager) GetStatus() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.clients))
	for k, c := range m.clients {
		out[k] = Status{Running: !c.exited.Load(), PID: c.cmd.Process.Pid}
	}
	return out
}

func (m *Manager) monitorLoop(stop chan struct{}) {
	ticker := time.NewTicker(leasePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.pollLeases()
			m.sweepDead()
		}
	}
}

func (m *Manager) pollLeases() {
	m.mu.Lock()
	snapshot := make([]*client, 0, len(m.clients))
	for _, c := range m.clients {
		snapshot = append(snapshot, c)
	}
	m.mu.Unlock()

	for _, c := range snapshot {
		lease, err := readLeaseFile(c.leaseFile)
		if err != nil {
			continue // file missing or still being written
		}
		if lease.IP == "" || lease.IP == c.lastIP {
			continue
		}

		m.mu.Lock()
		c.lastIP = lease.IP
		m.mu.Unlock()

		minilog.Info("dhcp: lease update for %s:%s: IP=%s", c.containerName, c.vnicName, lease.IP)
		if m.sendEvent != nil {
			m.sendEvent(netmonproto.DHCPUpdate{
				ContainerName: c.containerName,
				VNICName:      c.vnicName,
				MACAddress:    c.macAddress,
				IP:            lease.IP,
				Mask:          lease.Mask,
				Prefix:        lease.Prefix,
				Gateway:       lease.Router,
				DNS:           lease.DNS,
				LeaseTime:     lease.Lease,
				Timestamp:     lease.Timestamp,
			})
		}
	}
}

// sweepDead restarts any client whose process has exited, reusing the
// saved (name, vnic, mac, pid) tuple. A client missing its container
// PID gives up with an error log rather than retrying forever.
func (m *Manager) sweepDead() {
	m.mu.Lock()
	dead := make([]*client, 0)
	for k, c := range m.clients {
		if c.exited.Load() {
			dead = append(dead, c)
			delete(m.clients, k)
		}
	}
	m.mu.Unlock()

	for _, c := range dead {
		minilog.Warn("dhcp: DHCP client for %s:%s died, restarting...", c.containerName, c.vnicName)
		if c.pid <= 0 {
			minilog.Error("dhcp: cannot restart DHCP for %s:%s: missing PID in state", c.containerName, c.vnicName)
			continue
		}
		if err := m.StartDHCP(c.containerName, c.vnicName, c.macAddress, c.pid); err != nil {
			minilog.Error("dhcp: failed to restart DHCP for %s:%s: %v", c.containerName, c.vnicName, err)
		}
	}
}

type leaseData struct {
	IP        string   `json:"ip"`
	Mask      string   `json:"mask"`
	Prefix    int      `json:"prefix"`
	Router    string   `json:"router"`
	DNS       []string `json:"dns"`
	Lease     int      `json:"lease"`
	Timestamp float64  `json:"timestamp"`
}

func readLeaseFile(path string) (leaseData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return leaseData{}, err
	}
	var lease leaseData
	if err := json.Unmarshal(raw, &lease); err != nil {
		return leaseData{}, err
	}
	return lease, nil
}

// linkInfo mirrors the fields `ip -j link show` emits that we need to
// match a netns interface by MAC.
type linkInfo struct {
	IfName  string `json:"ifname"`
	Address string `json:"address"`
}

// findInterfaceByMAC runs `ip -j link show` inside the container's netns
// via nsenter and returns the interface name matching mac (case
// insensitive), or "" if none matches.
func (m *Manager) findInterfaceByMAC(containerPID int, mac string) (string, error) {
	out, err := m.runNS(containerPID, "ip", "-j", "link", "show")
	if err != nil {
		return "", err
	}

	var links []linkInfo
	if err := json.Unmarshal(out, &links); err != nil {
		return "", fmt.Errorf("parse ip link output: %w", err)
	}

	macLower := strings.ToLower(mac)
	for _, l := range links {
		if strings.ToLower(l.Address) == macLower {
			return l.IfName, nil
		}
	}
	return "", nil
}

func runInNetns(pid int, args ...string) ([]byte, error) {
	cmdArgs := append([]string{"-t", strconv.Itoa(pid), "-n"}, args...)
	return exec.Command("nsenter", cmdArgs...).Output()
}
