package dispatch

import (
	"bufio"
	"os"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/c9s/goprocinfo/linux"

	"github.com/edgefleet/orchestrator-agent/internal/ifcache"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// hostFacts is the static-at-boot subset of get_consumption_orchestrator's
// reply: total memory/CPU count/OS/kernel/disk, gathered once and
// cached for the process lifetime. ip_addresses is sourced
// per-call from the interface cache instead (the same architectural
// choice as get_host_interfaces: host network facts come from the netmon
// sidecar, not from a second direct introspection path).
type hostFacts struct {
	MemoryMB int
	CPUCount int
	OS       string
	Kernel   string
	DiskGB   int
}

var (
	hostFactsOnce sync.Once
	cachedFacts   hostFacts
)

func getHostFacts() hostFacts {
	hostFactsOnce.Do(func() {
		cachedFacts = collectHostFacts()
	})
	return cachedFacts
}

// collectHostFacts gathers the boot-time host facts: goprocinfo's
// /proc/meminfo reader (the same dependency internal/usage samples
// from) for total memory, runtime.NumCPU for the processor count,
// golang.org/x/sys/unix.Uname for the kernel version (and, absent an
// /etc/os-release entry, the OS string too), and unix.Statfs for total
// disk size.
func collectHostFacts() hostFacts {
	facts := hostFacts{CPUCount: runtime.NumCPU()}

	if mem, err := linux.ReadMemInfo("/proc/meminfo"); err != nil {
		minilog.Warn("dispatch: failed to read /proc/meminfo for system info: %v", err)
	} else {
		facts.MemoryMB = int(mem.MemTotal / 1024)
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		minilog.Warn("dispatch: uname failed: %v", err)
	} else {
		facts.Kernel = cstring(uts.Release[:])
	}

	if name, ok := readOSRelease(); ok {
		facts.OS = name
	} else {
		facts.OS = runtime.GOOS + " " + facts.Kernel
	}

	var stat unix.Statfs_t
	if err := unix.Statfs("/", &stat); err != nil {
		minilog.Warn("dispatch: statfs(/) failed: %v", err)
	} else {
		totalBytes := uint64(stat.Blocks) * uint64(stat.Bsize)
		facts.DiskGB = int(totalBytes / (1024 * 1024 * 1024))
	}

	return facts
}

func cstring(b []byte) string {
	i := strings.IndexByte(string(b), 0)
	if i < 0 {
		i = len(b)
	}
	return string(b[:i])
}

// readOSRelease extracts PRETTY_NAME from /etc/os-release.
func readOSRelease() (string, bool) {
	f, err := os.Open("/etc/os-release")
	if err != nil {
		return "", false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "PRETTY_NAME=") {
			continue
		}
		v := strings.TrimPrefix(line, "PRETTY_NAME=")
		return strings.Trim(v, `"`), true
	}
	return "", false
}

// hostIPAddresses projects the interface cache into the
// {interface, ip_address} pairs get_consumption_orchestrator reports,
// one per address.
func hostIPAddresses(ifaces *ifcache.Cache) []map[string]interface{} {
	snapshot := ifaces.Snapshot()
	var out []map[string]interface{}
	for name, entry := range snapshot {
		for _, addr := range entry.Addresses {
			out = append(out, map[string]interface{}{
				"interface":  name,
				"ip_address": addr,
			})
		}
	}
	return out
}
