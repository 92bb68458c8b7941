package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVNICStoreSaveLoad(t *testing.T) {
	s := NewVNICStore(filepath.Join(t.TempDir(), "vnics.json"))

	vnics := []VNIC{{Name: "eth0", ParentInterface: "eno1", MACAddress: "02:aa:bb:cc:dd:01"}}
	require.NoError(t, s.Save("plc-a", vnics))

	got, err := s.Load("plc-a")
	require.NoError(t, err)
	assert.Equal(t, vnics, got)

	missing, err := s.Load("plc-b")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestVNICStoreMACConflict(t *testing.T) {
	s := NewVNICStore(filepath.Join(t.TempDir(), "vnics.json"))
	require.NoError(t, s.Save("plc-a", []VNIC{{Name: "eth0", MACAddress: "02:11:22:33:44:55"}}))

	conflict, mac, err := s.CheckMACConflict([]VNIC{{Name: "eth0", MACAddress: "02:11:22:33:44:55"}})
	require.NoError(t, err)
	assert.True(t, conflict)
	assert.Equal(t, "02:11:22:33:44:55", mac)

	conflict, _, err = s.CheckMACConflict([]VNIC{{Name: "eth0", MACAddress: "02:aa:bb:cc:dd:ee"}})
	require.NoError(t, err)
	assert.False(t, conflict)
}

func TestVNICStoreDelete(t *testing.T) {
	s := NewVNICStore(filepath.Join(t.TempDir(), "vnics.json"))
	require.NoError(t, s.Save("plc-a", []VNIC{{Name: "eth0"}}))
	require.NoError(t, s.Delete("plc-a"))

	got, err := s.Load("plc-a")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSerialStoreSaveInitializesDefaults(t *testing.T) {
	s := NewSerialStore(filepath.Join(t.TempDir(), "serial.json"))
	require.NoError(t, s.Save("plc-a", []SerialPort{{Name: "modbus", DeviceID: "usb-FTDI-123"}}))

	doc, err := s.Load("plc-a")
	require.NoError(t, err)
	require.Len(t, doc.SerialPorts, 1)
	assert.Equal(t, SerialDisconnected, doc.SerialPorts[0].Status)
	assert.Nil(t, doc.SerialPorts[0].CurrentHostPath)
}

func TestSerialStoreUpdateStatus(t *testing.T) {
	s := NewSerialStore(filepath.Join(t.TempDir(), "serial.json"))
	require.NoError(t, s.Save("plc-a", []SerialPort{{Name: "modbus", DeviceID: "usb-FTDI-123"}}))

	hostPath := "/dev/ttyUSB0"
	major, minor := 188, 0
	require.NoError(t, s.UpdateStatus("plc-a", "modbus", SerialConnected, &hostPath, &major, &minor))

	doc, err := s.Load("plc-a")
	require.NoError(t, err)
	assert.Equal(t, SerialConnected, doc.SerialPorts[0].Status)
	assert.Equal(t, "/dev/ttyUSB0", *doc.SerialPorts[0].CurrentHostPath)

	require.NoError(t, s.UpdateStatus("plc-a", "modbus", SerialDisconnected, nil, nil, nil))
	doc, err = s.Load("plc-a")
	require.NoError(t, err)
	assert.Nil(t, doc.SerialPorts[0].CurrentHostPath)
}

func TestSerialStoreMatchByDeviceID(t *testing.T) {
	s := NewSerialStore(filepath.Join(t.TempDir(), "serial.json"))
	require.NoError(t, s.Save("plc-a", []SerialPort{{Name: "modbus", DeviceID: "usb-FTDI_FT232R-ABC123-if00-port0"}}))

	matches, err := s.MatchByDeviceID("usb-FTDI_FT232R-ABC123-if00-port0")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "plc-a", matches[0].RuntimeName)
}
