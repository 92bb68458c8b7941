package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
	"github.com/edgefleet/orchestrator-agent/internal/store"
)

func newTestVNICStore(t *testing.T) *store.VNICStore {
	t.Helper()
	return store.NewVNICStore(t.TempDir() + "/vnics.json")
}

func TestValidateCreateRequestRejectsEmptyName(t *testing.T) {
	s := newTestVNICStore(t)
	err := validateCreateRequest("", []VNICConfig{{Name: "eth0", ParentInterface: "eno1", Subnet: "10.0.0.0/24"}}, s)
	assert.Error(t, err)
	var ve *orcherr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestValidateCreateRequestRejectsEmptyVNICs(t *testing.T) {
	s := newTestVNICStore(t)
	err := validateCreateRequest("plc-a", nil, s)
	assert.Error(t, err)
}

func TestValidateCreateRequestRejectsDuplicateNetworkKey(t *testing.T) {
	s := newTestVNICStore(t)
	err := validateCreateRequest("plc-a", []VNICConfig{
		{Name: "eth0", ParentInterface: "eno1", Subnet: "10.0.0.0/24"},
		{Name: "eth1", ParentInterface: "eno1", Subnet: "10.0.0.0/24"},
	}, s)
	assert.Error(t, err)
	var ve *orcherr.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestValidateCreateRequestAllowsDifferentSubnets(t *testing.T) {
	s := newTestVNICStore(t)
	err := validateCreateRequest("plc-a", []VNICConfig{
		{Name: "eth0", ParentInterface: "eno1", Subnet: "10.0.0.0/24"},
		{Name: "eth1", ParentInterface: "eno1", Subnet: "10.0.1.0/24"},
	}, s)
	assert.NoError(t, err)
}

func TestValidateCreateRequestRejectsPersistedMACConflict(t *testing.T) {
	s := newTestVNICStore(t)
	require := assert.New(t)
	require.NoError(s.Save("plc-existing", []store.VNIC{{Name: "eth0", MACAddress: "02:11:22:33:44:55"}}))

	err := validateCreateRequest("plc-a", []VNICConfig{
		{Name: "eth0", ParentInterface: "eno1", Subnet: "10.0.0.0/24", MACAddress: "02:11:22:33:44:55"},
	}, s)
	assert.Error(t, err)
}

func TestDedupe(t *testing.T) {
	assert.Equal(t, []string{"8.8.8.8", "1.1.1.1"}, dedupe([]string{"8.8.8.8", "8.8.8.8", "1.1.1.1"}))
	assert.Nil(t, dedupe(nil))
}
