// Package netmonclient is the agent-side client for the netmon sidecar
// socket protocol (internal/netmonproto): connect, read LF-JSON lines
// (no read deadline is set; the stop channel is checked between lines),
// dispatch discovery/change events, and reconnect on loss. Commands and replies
// are correlated by request id, since concurrent create/delete pipelines
// can each have a start_dhcp/stop_dhcp call in flight at once.
package netmonclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edgefleet/orchestrator-agent/internal/ifcache"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// ReconnectInterval is how often the client retries after losing the
// socket.
const ReconnectInterval = 5 * time.Second

// DeviceCache mirrors the sidecar's last-known serial device set,
// consumed by get_serial_devices.
type DeviceCache struct {
	mu      sync.RWMutex
	devices map[string]netmonproto.DeviceInfo
}

func NewDeviceCache() *DeviceCache {
	return &DeviceCache{devices: make(map[string]netmonproto.DeviceInfo)}
}

func (c *DeviceCache) ReplaceAll(devices []netmonproto.DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.devices = make(map[string]netmonproto.DeviceInfo, len(devices))
	for _, d := range devices {
		c.devices[d.ByID] = d
	}
}

func (c *DeviceCache) Apply(change netmonproto.DeviceChange) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch change.Action {
	case "add":
		c.devices[change.Device.ByID] = change.Device
	case "remove":
		delete(c.devices, change.Device.ByID)
	}
}

func (c *DeviceCache) Snapshot() []netmonproto.DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]netmonproto.DeviceInfo, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	return out
}

// Client owns the connection to the netmon sidecar socket.
type Client struct {
	socketPath string
	ifaces     *ifcache.Cache
	devices    *DeviceCache

	onDHCPUpdate      func(netmonproto.DHCPUpdate)
	onNetworkChange   func(netmonproto.NetworkChange)
	onDeviceChange    func(netmonproto.DeviceChange)
	onDeviceDiscovery func(devices []netmonproto.DeviceInfo)

	mu      sync.Mutex
	conn    net.Conn
	pending map[string]chan netmonproto.CommandResponse
}

func New(socketPath string, ifaces *ifcache.Cache, devices *DeviceCache, onDHCPUpdate func(netmonproto.DHCPUpdate)) *Client {
	return &Client{
		socketPath:   socketPath,
		ifaces:       ifaces,
		devices:      devices,
		onDHCPUpdate: onDHCPUpdate,
		pending:      make(map[string]chan netmonproto.CommandResponse),
	}
}

// OnNetworkChange registers the reconciler's handler for network_change
// events, invoked after the interface cache has already been updated.
// Not a constructor argument since the reconciler itself is built from a
// container.Driver that has no dependency on this client.
func (c *Client) OnNetworkChange(fn func(netmonproto.NetworkChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onNetworkChange = fn
}

// OnDeviceChange registers a handler for device_change hotplug events,
// invoked after the device cache has already been updated. The serial
// status syncer uses this to flip persisted port status on add/remove.
func (c *Client) OnDeviceChange(fn func(netmonproto.DeviceChange)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDeviceChange = fn
}

// OnDeviceDiscovery registers a handler for the once-per-connect
// device_discovery snapshot, used to seed persisted serial port status
// from the sidecar's current view after an agent or sidecar restart.
func (c *Client) OnDeviceDiscovery(fn func(devices []netmonproto.DeviceInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDeviceDiscovery = fn
}

// Run connects and re-connects forever until stop is closed.
func (c *Client) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := c.connectAndServe(stop); err != nil {
			minilog.Warn("netmonclient: %v, retrying in %s", err, ReconnectInterval)
		}

		select {
		case <-stop:
			return
		case <-time.After(ReconnectInterval):
		}
	}
}

func (c *Client) connectAndServe(stop <-chan struct{}) error {
	if _, err := os.Stat(c.socketPath); err != nil {
		return fmt.Errorf("netmon socket not found at %s: %w", c.socketPath, err)
	}

	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return fmt.Errorf("connect to netmon socket: %w", err)
	}
	defer conn.Close()

	minilog.Info("netmonclient: connected to %s", c.socketPath)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-stop:
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := c.handleLine(line); err != nil {
			minilog.Error("netmonclient: error handling line: %v", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("netmon connection read error: %w", err)
	}
	return fmt.Errorf("netmon connection closed")
}

func (c *Client) handleLine(line []byte) error {
	var env netmonproto.Envelope
	// Command responses use {"id", "ok", ...} rather than {"type","data"};
	// try that shape first since it's routed to a waiting caller, not the
	// event dispatch table.
	var resp netmonproto.CommandResponse
	if err := json.Unmarshal(line, &resp); err == nil && resp.ID != "" {
		c.deliver(resp)
		return nil
	}

	if err := json.Unmarshal(line, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case netmonproto.TypeNetworkDiscovery:
		var disc netmonproto.NetworkDiscovery
		if err := json.Unmarshal(env.Data, &disc); err != nil {
			return err
		}
		c.applyDiscovery(disc)
	case netmonproto.TypeNetworkChange:
		var ch netmonproto.NetworkChange
		if err := json.Unmarshal(env.Data, &ch); err != nil {
			return err
		}
		c.applyChange(ch)
	case netmonproto.TypeDeviceDiscovery:
		var dd netmonproto.DeviceDiscovery
		if err := json.Unmarshal(env.Data, &dd); err != nil {
			return err
		}
		c.devices.ReplaceAll(dd.Devices)
		c.mu.Lock()
		seedFn := c.onDeviceDiscovery
		c.mu.Unlock()
		if seedFn != nil {
			seedFn(dd.Devices)
		}
	case netmonproto.TypeDeviceChange:
		var dc netmonproto.DeviceChange
		if err := json.Unmarshal(env.Data, &dc); err != nil {
			return err
		}
		c.devices.Apply(dc)
		c.mu.Lock()
		changeFn := c.onDeviceChange
		c.mu.Unlock()
		if changeFn != nil {
			changeFn(dc)
		}
	case netmonproto.TypeDHCPUpdate:
		var upd netmonproto.DHCPUpdate
		if err := json.Unmarshal(env.Data, &upd); err != nil {
			return err
		}
		if c.onDHCPUpdate != nil {
			c.onDHCPUpdate(upd)
		}
	default:
		minilog.Warn("netmonclient: unknown event type %q", env.Type)
	}
	return nil
}

func (c *Client) applyDiscovery(disc netmonproto.NetworkDiscovery) {
	entries := make(map[string]ifcache.Entry, len(disc.Interfaces))
	for _, iface := range disc.Interfaces {
		if iface.Interface == "" || len(iface.IPv4Addresses) == 0 {
			continue
		}
		entries[iface.Interface] = toEntry(iface.IPv4Addresses, iface.Gateway)
	}
	c.ifaces.ReplaceAll(entries)
}

func (c *Client) applyChange(ch netmonproto.NetworkChange) {
	if ch.Interface == "" {
		return
	}
	c.ifaces.Upsert(ch.Interface, toEntry(ch.IPv4Addresses, ch.Gateway))

	c.mu.Lock()
	fn := c.onNetworkChange
	c.mu.Unlock()
	if fn != nil {
		fn(ch)
	}
}

func toEntry(addrs []netmonproto.IPv4Address, gateway string) ifcache.Entry {
	e := ifcache.Entry{Gateway: gateway}
	if len(addrs) > 0 {
		e.SubnetCIDR = addrs[0].Subnet
	}
	for _, a := range addrs {
		e.Addresses = append(e.Addresses, a.Address)
	}
	return e
}

func (c *Client) deliver(resp netmonproto.CommandResponse) {
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		ch <- resp
	}
}

// Call sends a command and blocks until the matching response arrives or
// timeout elapses.
func (c *Client) Call(command string, params interface{}, timeout time.Duration) (netmonproto.CommandResponse, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return netmonproto.CommandResponse{}, orcherr.NewSidecar("netmon connection not established", nil)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return netmonproto.CommandResponse{}, err
	}

	id := uuid.NewString()
	cmd := netmonproto.Command{ID: id, Command: command, Params: raw}

	ch := make(chan netmonproto.CommandResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	line, err := json.Marshal(cmd)
	if err != nil {
		return netmonproto.CommandResponse{}, err
	}
	line = append(line, '\n')

	if _, err := conn.Write(line); err != nil {
		return netmonproto.CommandResponse{}, orcherr.NewSidecar("write to netmon socket", err)
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-time.After(timeout):
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return netmonproto.CommandResponse{}, orcherr.NewSidecar(fmt.Sprintf("timed out waiting for %s response", command), nil)
	}
}

// Connected reports whether a live socket connection is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Devices returns the sidecar's last-known serial device cache, consumed
// by the get_serial_devices topic handler.
func (c *Client) Devices() *DeviceCache {
	return c.devices
}
