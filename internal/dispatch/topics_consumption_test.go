package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/edgefleet/orchestrator-agent/internal/container"
)

func TestParsePeriodCommaSeparatedTimestamps(t *testing.T) {
	start, end := parsePeriod("1000,2000")
	assert.Equal(t, int64(1000), start.Unix())
	assert.Equal(t, int64(2000), end.Unix())
}

func TestParsePeriodDurationSuffixes(t *testing.T) {
	start, end := parsePeriod("2h")
	assert.WithinDuration(t, end.Add(-2*time.Hour), start, time.Second)

	start, end = parsePeriod("30m")
	assert.WithinDuration(t, end.Add(-30*time.Minute), start, time.Second)

	start, end = parsePeriod("1d")
	assert.WithinDuration(t, end.Add(-24*time.Hour), start, time.Second)
}

func TestParsePeriodBareSecondsAndFallback(t *testing.T) {
	start, end := parsePeriod("90")
	assert.WithinDuration(t, end.Add(-90*time.Second), start, time.Second)

	start, end = parsePeriod("not-a-period")
	assert.WithinDuration(t, end.Add(-time.Hour), start, time.Second)
}

func TestFormatCPUCountAndMemoryLimit(t *testing.T) {
	assert.Equal(t, "unlimited", formatMemoryLimit(0))
	assert.Equal(t, "512 MB", formatMemoryLimit(512*1024*1024))

	assert.Equal(t, "unlimited", formatCPUCount(container.Status{}))
	assert.Equal(t, "2.0 vCPU", formatCPUCount(container.Status{NanoCPUs: 2_000_000_000}))
	assert.Equal(t, "1.5 vCPU", formatCPUCount(container.Status{CPUQuota: 150000, CPUPeriod: 100000}))
}
