package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
	"github.com/edgefleet/orchestrator-agent/internal/usage"
)

const defaultConsumptionPeriod = "1h"

// parsePeriod accepts either a "start,end" pair of Unix timestamps, or
// a duration string ending in h/m/d (or bare seconds), measured back
// from now. Any parse failure falls back to the last hour.
func parsePeriod(periodStr string) (start, end time.Time) {
	now := time.Now()

	if periodStr == "" {
		return now.Add(-time.Hour), now
	}

	if strings.Contains(periodStr, ",") {
		parts := strings.SplitN(periodStr, ",", 2)
		startSec, errA := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		endSec, errB := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if errA == nil && errB == nil {
			return time.Unix(startSec, 0), time.Unix(endSec, 0)
		}
		minilog.Warn("dispatch: could not parse period %q, defaulting to last hour", periodStr)
		return now.Add(-time.Hour), now
	}

	var unit time.Duration
	var digits string
	switch {
	case strings.HasSuffix(periodStr, "h"):
		unit, digits = time.Hour, strings.TrimSuffix(periodStr, "h")
	case strings.HasSuffix(periodStr, "m"):
		unit, digits = time.Minute, strings.TrimSuffix(periodStr, "m")
	case strings.HasSuffix(periodStr, "d"):
		unit, digits = 24*time.Hour, strings.TrimSuffix(periodStr, "d")
	default:
		unit, digits = time.Second, periodStr
	}

	n, err := strconv.Atoi(digits)
	if err != nil {
		minilog.Warn("dispatch: could not parse period %q, defaulting to last hour", periodStr)
		return now.Add(-time.Hour), now
	}
	return now.Add(-time.Duration(n) * unit), now
}

func cpuUsagePoints(samples []usage.Sample) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(samples))
	for _, s := range samples {
		out = append(out, map[string]interface{}{
			"timestamp": s.Timestamp.Unix(),
			"cpu":       s.CPUPct,
		})
	}
	return out
}

func memoryUsagePoints(samples []usage.Sample) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(samples))
	for _, s := range samples {
		out = append(out, map[string]interface{}{
			"timestamp": s.Timestamp.Unix(),
			"memory":    s.MemMB,
		})
	}
	return out
}

// getConsumptionOrchestratorHandler reports the agent host's own
// resource facts and usage history. Host facts come from sysinfo.go's
// cached collection; the device id the host's own samples are buffered
// under is whatever self-detection resolved for this container, since
// that's the id usage.Sampler.Run was started with.
func getConsumptionOrchestratorHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		cpuPeriod := stringFieldDefault(payload, "cpuPeriod", defaultConsumptionPeriod)
		memoryPeriod := stringFieldDefault(payload, "memoryPeriod", defaultConsumptionPeriod)

		cpuStart, cpuEnd := parsePeriod(cpuPeriod)
		memStart, memEnd := parsePeriod(memoryPeriod)

		selfName, _ := deps.Runtime.SelfName()
		if selfName == "" {
			selfName = "orchestrator-agent"
		}

		cpuSamples := deps.Runtime.Usage.GetSamples(selfName, cpuStart, cpuEnd)
		memSamples := deps.Runtime.Usage.GetSamples(selfName, memStart, memEnd)

		facts := getHostFacts()

		return map[string]interface{}{
			"status":       "success",
			"ip_addresses": hostIPAddresses(deps.Runtime.IfCache),
			"memory":       facts.MemoryMB,
			"cpu":          facts.CPUCount,
			"os":           facts.OS,
			"kernel":       facts.Kernel,
			"disk":         facts.DiskGB,
			"cpu_usage":    cpuUsagePoints(cpuSamples),
			"memory_usage": memoryUsagePoints(memSamples),
		}, nil
	}
}

// getConsumptionDeviceHandler reports one runtime container's resource
// limits and usage history.
func getConsumptionDeviceHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		deviceID, _ := payload["device_id"].(string)
		if deviceID == "" {
			return nil, orcherr.NewValidation("device_id must be a non-empty string")
		}

		if _, ok, _ := deps.Runtime.Clients.Get(deviceID); !ok {
			return map[string]interface{}{
				"status": "error",
				"error":  fmt.Sprintf("Device %s not found", deviceID),
			}, nil
		}

		cpuPeriod := stringFieldDefault(payload, "cpuPeriod", defaultConsumptionPeriod)
		memoryPeriod := stringFieldDefault(payload, "memoryPeriod", defaultConsumptionPeriod)

		cpuStart, cpuEnd := parsePeriod(cpuPeriod)
		memStart, memEnd := parsePeriod(memoryPeriod)

		cpuSamples := deps.Runtime.Usage.GetSamples(deviceID, cpuStart, cpuEnd)
		memSamples := deps.Runtime.Usage.GetSamples(deviceID, memStart, memEnd)

		cpuCount, memoryLimit := "N/A", "N/A"
		if containerID, err := deps.Runtime.Driver.ResolveSelfByName(ctx, deviceID); err == nil {
			if status, err := deps.Runtime.Driver.Inspect(ctx, containerID); err == nil {
				cpuCount = formatCPUCount(status)
				memoryLimit = formatMemoryLimit(status.MemoryLimit)
			}
		}

		return map[string]interface{}{
			"status":       "success",
			"device_id":    deviceID,
			"memory":       memoryLimit,
			"cpu":          cpuCount,
			"cpu_usage":    cpuUsagePoints(cpuSamples),
			"memory_usage": memoryUsagePoints(memSamples),
		}, nil
	}
}

func stringFieldDefault(payload map[string]interface{}, key, def string) string {
	if v, ok := payload[key].(string); ok && v != "" {
		return v
	}
	return def
}

// formatCPUCount prefers NanoCpus, falling back to CpuQuota/CpuPeriod
// when only the quota form is set.
func formatCPUCount(status container.Status) string {
	if status.NanoCPUs > 0 {
		return fmt.Sprintf("%.1f vCPU", float64(status.NanoCPUs)/1e9)
	}
	period := status.CPUPeriod
	if period == 0 {
		period = 100000
	}
	if status.CPUQuota > 0 {
		return fmt.Sprintf("%.1f vCPU", float64(status.CPUQuota)/float64(period))
	}
	return "unlimited"
}

// formatMemoryLimit renders the byte limit in MB, or "unlimited".
func formatMemoryLimit(memoryBytes int64) string {
	if memoryBytes > 0 {
		return fmt.Sprintf("%d MB", memoryBytes/(1024*1024))
	}
	return "unlimited"
}
