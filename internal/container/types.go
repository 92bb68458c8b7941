package container

import "github.com/docker/docker/api/types/image"

func imagePullOptions() image.PullOptions {
	return image.PullOptions{}
}

// EndpointSpec is the caller-facing description of one vNIC's desired
// attachment, translated into a Docker EndpointSettings when the
// container is created or an endpoint is connected post-create.
type EndpointSpec struct {
	NetworkName string
	MACAddress  string
	IPv4Address string // empty for dhcp-mode vNICs
}

// ContainerSpec describes the container create request assembled by the
// runtime creator.
type ContainerSpec struct {
	Image             string
	Name              string
	PrimaryNetwork    string // the {name}_internal network, attached at create
	ExtraEndpoints    []EndpointSpec
	DNS               []string
	Capabilities      []string
	DeviceCgroupRules []string
}

// DefaultCapabilities and DefaultDeviceCgroupRules are the fixed
// policy every runtime container gets: real-time
// scheduling and device-node creation rights, plus read/write/mknod
// access to the serial character-device major numbers the hotplug
// watcher can pass through (188=ttyUSB, 166=ttyACM, 4:64-255=ttyS).
var (
	DefaultCapabilities = []string{"SYS_NICE", "MKNOD"}

	DefaultDeviceCgroupRules = []string{
		"c 188:* rmw",
		"c 166:* rmw",
		"c 4:64-255 rmw",
	}
)

// Status is the observed state returned by Inspect, matching the fields
// get_device_status and get_consumption_device need.
type Status struct {
	Running         bool
	PID             int
	ContainerStatus string
	StartedAt       string
	ExitCode        int
	RestartCount    int
	Health          string
	Networks        map[string]NetworkEndpoint

	NanoCPUs    int64
	CPUQuota    int64
	CPUPeriod   int64
	MemoryLimit int64
}

// NetworkEndpoint is one attached network's observed identity.
type NetworkEndpoint struct {
	NetworkID  string
	MACAddress string
	IPAddress  string
	Internal   bool
}
