package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBaseMessage(t *testing.T) {
	err := Validate(BaseMessage, map[string]interface{}{"correlation_id": float64(1)})
	assert.NoError(t, err)
}

func TestValidateMissingRequired(t *testing.T) {
	schema := Schema{"container_name": String}
	err := Validate(schema, map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container_name")
}

func TestValidateOptionalAbsent(t *testing.T) {
	schema := Schema{"mac": Optional(String)}
	err := Validate(schema, map[string]interface{}{})
	assert.NoError(t, err)
}

func TestValidateOptionalWrongType(t *testing.T) {
	schema := Schema{"mac": Optional(String)}
	err := Validate(schema, map[string]interface{}{"mac": float64(5)})
	assert.Error(t, err)
}

func TestValidateNestedSchema(t *testing.T) {
	vnic := Schema{
		"name":             String,
		"parent_interface": String,
		"mac":              Optional(String),
	}
	msg := Schema{
		"vnic": vnic,
	}
	err := Validate(msg, map[string]interface{}{
		"vnic": map[string]interface{}{
			"name":             "eth0",
			"parent_interface": "eno1",
		},
	})
	assert.NoError(t, err)
}

func TestValidateListOfNested(t *testing.T) {
	vnicType := Schema{"name": String}
	schema := Schema{"vnic_configs": List(vnicType)}

	err := Validate(schema, map[string]interface{}{
		"vnic_configs": []interface{}{
			map[string]interface{}{"name": "eth0"},
		},
	})
	assert.NoError(t, err)
}
