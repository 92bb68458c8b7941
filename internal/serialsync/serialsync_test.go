package serialsync

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgefleet/orchestrator-agent/internal/netmonproto"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

func newTestSyncer(t *testing.T) (*Syncer, *store.SerialStore) {
	t.Helper()
	s := store.NewSerialStore(filepath.Join(t.TempDir(), "serial.json"))
	return New(s), s
}

func TestHandleChangeAddMarksConnected(t *testing.T) {
	sync, serial := newTestSyncer(t)
	require.NoError(t, serial.Save("plc-a", []store.SerialPort{
		{Name: "modbus", DeviceID: "usb-FTDI_FT232R-ABC123-if00-port0"},
	}))

	sync.HandleChange(netmonproto.DeviceChange{
		Action: "add",
		Device: netmonproto.DeviceInfo{
			Path:  "/dev/ttyUSB0",
			ByID:  "/dev/serial/by-id/usb-FTDI_FT232R-ABC123-if00-port0",
			Major: 188,
			Minor: 0,
		},
	})

	doc, err := serial.Load("plc-a")
	require.NoError(t, err)
	require.Len(t, doc.SerialPorts, 1)
	assert.Equal(t, store.SerialConnected, doc.SerialPorts[0].Status)
	require.NotNil(t, doc.SerialPorts[0].CurrentHostPath)
	assert.Equal(t, "/dev/ttyUSB0", *doc.SerialPorts[0].CurrentHostPath)
	require.NotNil(t, doc.SerialPorts[0].Major)
	assert.Equal(t, 188, *doc.SerialPorts[0].Major)
}

func TestHandleChangeRemoveMarksDisconnected(t *testing.T) {
	sync, serial := newTestSyncer(t)
	require.NoError(t, serial.Save("plc-a", []store.SerialPort{
		{Name: "modbus", DeviceID: "usb-FTDI_FT232R-ABC123-if00-port0"},
	}))

	sync.HandleChange(netmonproto.DeviceChange{
		Action: "add",
		Device: netmonproto.DeviceInfo{
			Path: "/dev/ttyUSB0",
			ByID: "/dev/serial/by-id/usb-FTDI_FT232R-ABC123-if00-port0",
		},
	})
	sync.HandleChange(netmonproto.DeviceChange{
		Action: "remove",
		Device: netmonproto.DeviceInfo{
			ByID: "/dev/serial/by-id/usb-FTDI_FT232R-ABC123-if00-port0",
		},
	})

	doc, err := serial.Load("plc-a")
	require.NoError(t, err)
	assert.Equal(t, store.SerialDisconnected, doc.SerialPorts[0].Status)
	assert.Nil(t, doc.SerialPorts[0].CurrentHostPath)
	assert.Nil(t, doc.SerialPorts[0].Major)
}

func TestHandleChangeUnrelatedDeviceIsNoop(t *testing.T) {
	sync, serial := newTestSyncer(t)
	require.NoError(t, serial.Save("plc-a", []store.SerialPort{
		{Name: "modbus", DeviceID: "usb-FTDI_FT232R-ABC123-if00-port0"},
	}))

	sync.HandleChange(netmonproto.DeviceChange{
		Action: "add",
		Device: netmonproto.DeviceInfo{
			Path: "/dev/ttyUSB1",
			ByID: "/dev/serial/by-id/usb-Prolific-XYZ789-if00-port0",
		},
	})

	doc, err := serial.Load("plc-a")
	require.NoError(t, err)
	assert.Equal(t, store.SerialDisconnected, doc.SerialPorts[0].Status)
}

func TestHandleChangeEmptyDeviceIdentityIsNoop(t *testing.T) {
	sync, serial := newTestSyncer(t)
	require.NoError(t, serial.Save("plc-a", []store.SerialPort{
		{Name: "modbus", DeviceID: "usb-FTDI_FT232R-ABC123-if00-port0"},
	}))

	// A device with neither by_id nor path must not substring-match
	// every configured port.
	sync.HandleChange(netmonproto.DeviceChange{Action: "add"})

	doc, err := serial.Load("plc-a")
	require.NoError(t, err)
	assert.Equal(t, store.SerialDisconnected, doc.SerialPorts[0].Status)
}

func TestSeedFromDiscoveryMarksPresentAndAbsent(t *testing.T) {
	sync, serial := newTestSyncer(t)
	require.NoError(t, serial.Save("plc-a", []store.SerialPort{
		{Name: "modbus", DeviceID: "usb-FTDI_FT232R-ABC123-if00-port0"},
		{Name: "gps", DeviceID: "usb-ublox-GPS-DEF456-if00"},
	}))

	sync.SeedFromDiscovery([]netmonproto.DeviceInfo{
		{
			Path:  "/dev/ttyUSB0",
			ByID:  "/dev/serial/by-id/usb-FTDI_FT232R-ABC123-if00-port0",
			Major: 188,
			Minor: 0,
		},
	})

	doc, err := serial.Load("plc-a")
	require.NoError(t, err)
	require.Len(t, doc.SerialPorts, 2)

	byName := map[string]store.SerialPort{}
	for _, p := range doc.SerialPorts {
		byName[p.Name] = p
	}
	assert.Equal(t, store.SerialConnected, byName["modbus"].Status)
	require.NotNil(t, byName["modbus"].CurrentHostPath)
	assert.Equal(t, "/dev/ttyUSB0", *byName["modbus"].CurrentHostPath)
	assert.Equal(t, store.SerialDisconnected, byName["gps"].Status)
}

func TestSeedFromDiscoveryClearsStaleConnected(t *testing.T) {
	sync, serial := newTestSyncer(t)
	require.NoError(t, serial.Save("plc-a", []store.SerialPort{
		{Name: "modbus", DeviceID: "usb-FTDI_FT232R-ABC123-if00-port0"},
	}))

	hostPath := "/dev/ttyUSB0"
	major, minor := 188, 0
	require.NoError(t, serial.UpdateStatus("plc-a", "modbus", store.SerialConnected, &hostPath, &major, &minor))

	// The device is gone from the sidecar's snapshot (unplugged while
	// the agent was down); seeding must flip it back to disconnected.
	sync.SeedFromDiscovery(nil)

	doc, err := serial.Load("plc-a")
	require.NoError(t, err)
	assert.Equal(t, store.SerialDisconnected, doc.SerialPorts[0].Status)
	assert.Nil(t, doc.SerialPorts[0].CurrentHostPath)
}
