package container

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMacvlanNetworkName(t *testing.T) {
	assert.Equal(t, "macvlan_eno1_10.0.0.0_24", MacvlanNetworkName("eno1", "10.0.0.0/24"))
}

func TestInternalNetworkName(t *testing.T) {
	assert.Equal(t, "plc-a_internal", InternalNetworkName("plc-a"))
}

func TestIsOverlapError(t *testing.T) {
	assert.True(t, isOverlapError(errors.New("Pool overlaps with other one on this address space")))
	assert.False(t, isOverlapError(errors.New("no such network")))
}

func TestIsAlreadyConnected(t *testing.T) {
	assert.True(t, isAlreadyConnected(errors.New("endpoint already exists in network")))
	assert.False(t, isAlreadyConnected(errors.New("network not found")))
}
