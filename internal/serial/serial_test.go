package serial

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
)

func TestIsSerialDeviceUSBAlwaysMatches(t *testing.T) {
	assert.True(t, isSerialDevice("ttyUSB0"))
	assert.True(t, isSerialDevice("ttyUSB12"))
	assert.True(t, isSerialDevice("ttyACM0"))
}

func TestIsSerialDeviceTTYSFiltersLegacyRange(t *testing.T) {
	assert.False(t, isSerialDevice("ttyS0"))
	assert.False(t, isSerialDevice("ttyS63"))
	assert.True(t, isSerialDevice("ttyS64"))
	assert.True(t, isSerialDevice("ttyS99"))
}

func TestIsSerialDeviceRejectsUnrelatedNames(t *testing.T) {
	assert.False(t, isSerialDevice("tty0"))
	assert.False(t, isSerialDevice("ttyprintk"))
	assert.False(t, isSerialDevice("console"))
}

func TestCacheKeyPrefersByID(t *testing.T) {
	dev := netmonproto.DeviceInfo{Path: "/dev/ttyUSB0", ByID: "/dev/serial/by-id/usb-foo"}
	assert.Equal(t, "/dev/serial/by-id/usb-foo", cacheKey(dev))
}

func TestCacheKeyFallsBackToPath(t *testing.T) {
	dev := netmonproto.DeviceInfo{Path: "/dev/ttyS64"}
	assert.Equal(t, "/dev/ttyS64", cacheKey(dev))
}

func TestPrimeAndSnapshotRoundTrip(t *testing.T) {
	w := New()
	devices := []netmonproto.DeviceInfo{
		{Path: "/dev/ttyUSB0", ByID: "/dev/serial/by-id/usb-a", Subsystem: "tty"},
		{Path: "/dev/ttyUSB1", ByID: "/dev/serial/by-id/usb-b", Subsystem: "tty"},
	}
	w.prime(devices)

	got := w.Snapshot()
	assert.Len(t, got, 2)
}

func TestHandleRemoveWithoutPriorCacheEntryStillEmits(t *testing.T) {
	w := New()

	var emitted netmonproto.DeviceChange
	w.handleRemove("/dev/serial/by-id/usb-unknown", func(ev netmonproto.DeviceChange) {
		emitted = ev
	})

	assert.Equal(t, "remove", emitted.Action)
	assert.Equal(t, "/dev/serial/by-id/usb-unknown", emitted.Device.ByID)
}

func TestHandleRemoveUsesCachedDeviceInfo(t *testing.T) {
	w := New()
	w.prime([]netmonproto.DeviceInfo{
		{Path: "/dev/ttyUSB0", ByID: "/dev/serial/by-id/usb-a", Subsystem: "tty", VendorID: "0403"},
	})

	var emitted netmonproto.DeviceChange
	w.handleRemove("/dev/serial/by-id/usb-a", func(ev netmonproto.DeviceChange) {
		emitted = ev
	})

	assert.Equal(t, "remove", emitted.Action)
	assert.Equal(t, "0403", emitted.Device.VendorID)
	assert.Empty(t, w.Snapshot())
}
