package usage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferAddAndRange(t *testing.T) {
	b := NewBuffer()
	base := time.Now().Add(-time.Minute)

	b.Add(10, 100, base)
	b.Add(20, 200, base.Add(5*time.Second))
	b.Add(30, 300, base.Add(10*time.Second))

	samples := b.Range(time.Time{}, time.Time{})
	require.Len(t, samples, 3)
	assert.Equal(t, 10.0, samples[0].CPUPct)
	assert.Equal(t, 30.0, samples[2].CPUPct)
}

func TestBufferRangeFiltersWindow(t *testing.T) {
	b := NewBuffer()
	base := time.Now()

	b.Add(1, 1, base)
	b.Add(2, 2, base.Add(1*time.Second))
	b.Add(3, 3, base.Add(2*time.Second))

	samples := b.Range(base.Add(1*time.Second), base.Add(1*time.Second))
	require.Len(t, samples, 1)
	assert.Equal(t, 2.0, samples[0].CPUPct)
}

func TestBufferEvictsOldestPastCapacity(t *testing.T) {
	b := NewBuffer()
	base := time.Now().Add(-48 * time.Hour)

	for i := 0; i < Capacity+5; i++ {
		b.Add(float64(i), float64(i), base.Add(time.Duration(i)*time.Second))
	}

	assert.Equal(t, Capacity, b.Len())
	samples := b.Range(time.Time{}, time.Time{})
	assert.Equal(t, float64(5), samples[0].CPUPct)
}

func TestBufferClear(t *testing.T) {
	b := NewBuffer()
	b.Add(1, 1, time.Now())
	b.Clear()
	assert.Equal(t, 0, b.Len())
}
