// Package serial enumerates host serial devices (USB-to-serial adapters
// and native onboard UARTs) and watches for hotplug add/remove, sidecar
// side. Hotplug detection is an fsnotify watch over /dev/serial/by-id,
// the udev-managed symlink directory that only gains or loses an entry
// when a USB serial device is plugged in or removed, so no netlink
// uevent socket is needed.
package serial

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
)

const (
	sysClassTTY = "/sys/class/tty"
	devDir      = "/dev"
	byIDDir     = "/dev/serial/by-id"

	// ttySMinFloatingMinor filters onboard
	// UARTs: ttyS0-ttyS63 are the legacy 8250 ports always present (and
	// almost never wired to anything), so only minor>=64 (platform
	// UARTs exposed by device trees/ACPI) are reported.
	ttySMinFloatingMinor = 64
)

// Watcher enumerates tty-subsystem serial devices and emits add/remove
// events as USB devices come and go. Construct it with New; the zero
// value has no cache map.
type Watcher struct {
	mu    sync.Mutex
	cache map[string]netmonproto.DeviceInfo // keyed by by_id path, or dev path if none
}

func New() *Watcher {
	return &Watcher{cache: make(map[string]netmonproto.DeviceInfo)}
}

// Enumerate scans /sys/class/tty for every currently present matching
// device and primes the internal cache.
func (w *Watcher) Enumerate() []netmonproto.DeviceInfo {
	entries, err := os.ReadDir(sysClassTTY)
	if err != nil {
		minilog.Warn("serial: failed to read %s: %v", sysClassTTY, err)
		return nil
	}

	var devices []netmonproto.DeviceInfo
	for _, e := range entries {
		name := e.Name()
		if !isSerialDevice(name) {
			continue
		}
		dev, ok := describeDevice(name)
		if !ok {
			continue
		}
		devices = append(devices, dev)
	}

	w.prime(devices)
	return devices
}

// Snapshot returns every device currently in the cache, for the
// sidecar's get_device_status command.
func (w *Watcher) Snapshot() []netmonproto.DeviceInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]netmonproto.DeviceInfo, 0, len(w.cache))
	for _, d := range w.cache {
		out = append(out, d)
	}
	return out
}

func (w *Watcher) prime(devices []netmonproto.DeviceInfo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range devices {
		w.cache[cacheKey(d)] = d
	}
}

func cacheKey(d netmonproto.DeviceInfo) string {
	if d.ByID != "" {
		return d.ByID
	}
	return d.Path
}

// Run watches byIDDir for add/remove and invokes onChange until stop is
// closed. Enumerate should be called once beforehand to prime the
// cache so a Remove event can report the device it lost.
func (w *Watcher) Run(stop <-chan struct{}, onChange func(netmonproto.DeviceChange)) error {
	if err := os.MkdirAll(byIDDir, 0o755); err != nil {
		minilog.Debug("serial: could not ensure %s exists: %v", byIDDir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(byIDDir); err != nil {
		return fmt.Errorf("watch %s: %w", byIDDir, err)
	}

	minilog.Info("serial: watching %s for hotplug events", byIDDir)

	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev, onChange)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			minilog.Warn("serial: watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event, onChange func(netmonproto.DeviceChange)) {
	switch {
	case ev.Op&fsnotify.Create != 0:
		w.handleAdd(ev.Name, onChange)
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.handleRemove(ev.Name, onChange)
	}
}

func (w *Watcher) handleAdd(byID string, onChange func(netmonproto.DeviceChange)) {
	target, err := filepath.EvalSymlinks(byID)
	if err != nil {
		minilog.Debug("serial: could not resolve new symlink %s: %v", byID, err)
		return
	}
	name := filepath.Base(target)
	if !isSerialDevice(name) {
		return
	}
	dev, ok := describeDevice(name)
	if !ok {
		return
	}

	w.mu.Lock()
	w.cache[cacheKey(dev)] = dev
	w.mu.Unlock()

	minilog.Info("serial: device added: %s (by_id=%s)", dev.Path, dev.ByID)
	onChange(netmonproto.DeviceChange{Action: "add", Device: dev})
}

func (w *Watcher) handleRemove(byID string, onChange func(netmonproto.DeviceChange)) {
	w.mu.Lock()
	dev, ok := w.cache[byID]
	if ok {
		delete(w.cache, byID)
	}
	w.mu.Unlock()

	if !ok {
		dev = netmonproto.DeviceInfo{ByID: byID, Subsystem: "tty"}
	}

	minilog.Info("serial: device removed: %s (by_id=%s)", dev.Path, byID)
	onChange(netmonproto.DeviceChange{Action: "remove", Device: dev})
}

// isSerialDevice reports whether a /sys/class/tty entry is a device we
// hotplug-manage: ttyUSB/ttyACM unconditionally, ttyS only above the
// legacy 8250 range.
func isSerialDevice(name string) bool {
	switch {
	case strings.HasPrefix(name, "ttyUSB"):
		return true
	case strings.HasPrefix(name, "ttyACM"):
		return true
	case strings.HasPrefix(name, "ttyS"):
		minor, err := strconv.Atoi(strings.TrimPrefix(name, "ttyS"))
		return err == nil && minor >= ttySMinFloatingMinor
	}
	return false
}

func describeDevice(name string) (netmonproto.DeviceInfo, bool) {
	major, minor, ok := readMajorMinor(name)
	if !ok {
		return netmonproto.DeviceInfo{}, false
	}

	dev := netmonproto.DeviceInfo{
		Path:      filepath.Join(devDir, name),
		Major:     major,
		Minor:     minor,
		Subsystem: "tty",
	}
	dev.ByID = resolveByID(dev.Path)
	readUSBAttributes(name, &dev)
	return dev, true
}

func readMajorMinor(name string) (int, int, bool) {
	raw, err := os.ReadFile(filepath.Join(sysClassTTY, name, "dev"))
	if err != nil {
		return 0, 0, false
	}
	parts := strings.SplitN(strings.TrimSpace(string(raw)), ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return major, minor, true
}

// resolveByID scans byIDDir for a symlink resolving to path.
func resolveByID(path string) string {
	entries, err := os.ReadDir(byIDDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		link := filepath.Join(byIDDir, e.Name())
		target, err := filepath.EvalSymlinks(link)
		if err != nil {
			continue
		}
		if target == path {
			return link
		}
	}
	return ""
}

// readUSBAttributes climbs the tty device's sysfs chain looking for the
// parent usb_device directory (carrying idVendor/idProduct/serial/
// manufacturer/product); native (non-USB) ports don't have one, and a
// missing file there is not an error, just an unpopulated field.
func readUSBAttributes(name string, dev *netmonproto.DeviceInfo) {
	resolved, err := filepath.EvalSymlinks(filepath.Join(sysClassTTY, name, "device"))
	if err != nil {
		return
	}

	dir := resolved
	for i := 0; i < 5; i++ {
		if v, ok := readTrimmed(filepath.Join(dir, "idVendor")); ok {
			dev.VendorID = v
			dev.ProductID, _ = readTrimmed(filepath.Join(dir, "idProduct"))
			dev.Serial, _ = readTrimmed(filepath.Join(dir, "serial"))
			dev.Manufacturer, _ = readTrimmed(filepath.Join(dir, "manufacturer"))
			dev.Product, _ = readTrimmed(filepath.Join(dir, "product"))
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func readTrimmed(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}
