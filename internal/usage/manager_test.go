package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManagerAddRemoveDevice(t *testing.T) {
	m := NewManager()
	assert.False(t, m.HasDevice("plc-a"))

	m.AddDevice("plc-a")
	assert.True(t, m.HasDevice("plc-a"))
	assert.Contains(t, m.DeviceIDs(), "plc-a")

	m.RemoveDevice("plc-a")
	assert.False(t, m.HasDevice("plc-a"))
}

func TestManagerAddSampleUnregisteredIsNoop(t *testing.T) {
	m := NewManager()
	m.AddSample("plc-a", 10, 20)
	assert.Equal(t, 0, m.BufferSize("plc-a"))
}

func TestManagerAddSampleRegistered(t *testing.T) {
	m := NewManager()
	m.AddDevice("plc-a")
	m.AddSample("plc-a", 10, 20)
	assert.Equal(t, 1, m.BufferSize("plc-a"))
}

func TestManagerClearDevice(t *testing.T) {
	m := NewManager()
	m.AddDevice("plc-a")
	m.AddSample("plc-a", 10, 20)
	m.ClearDevice("plc-a")
	assert.Equal(t, 0, m.BufferSize("plc-a"))
}
