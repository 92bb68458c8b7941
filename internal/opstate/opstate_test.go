package opstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCreatingRefusesWhileInProgress(t *testing.T) {
	tr := New()
	require.True(t, tr.SetCreating("plc-a"))
	assert.False(t, tr.SetCreating("plc-a"))
	assert.False(t, tr.SetDeleting("plc-a"))
}

func TestSetCreatingOverwritesErrorState(t *testing.T) {
	tr := New()
	require.True(t, tr.SetCreating("plc-a"))
	tr.SetError("plc-a", "boom", OpCreate)

	assert.True(t, tr.SetCreating("plc-a"))
	rec, ok := tr.Get("plc-a")
	require.True(t, ok)
	assert.Equal(t, StatusCreating, rec.Status)
	assert.Empty(t, rec.Error)
}

func TestInProgress(t *testing.T) {
	tr := New()
	inProgress, op := tr.InProgress("plc-a")
	assert.False(t, inProgress)
	assert.Empty(t, op)

	tr.SetDeleting("plc-a")
	inProgress, op = tr.InProgress("plc-a")
	assert.True(t, inProgress)
	assert.Equal(t, OpDelete, op)
}

func TestClear(t *testing.T) {
	tr := New()
	tr.SetCreating("plc-a")
	tr.Clear("plc-a")

	_, ok := tr.Get("plc-a")
	assert.False(t, ok)
}

func TestSetErrorWithoutExistingRecord(t *testing.T) {
	tr := New()
	tr.SetError("plc-a", "pull failed", "")

	rec, ok := tr.Get("plc-a")
	require.True(t, ok)
	assert.Equal(t, StatusError, rec.Status)
	assert.Equal(t, OpUnknown, rec.Operation)
}
