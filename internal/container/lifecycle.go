package container

import (
	"context"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	units "github.com/docker/go-units"

	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// CreateContainer creates a runtime container attached to its internal
// network at create time, with every extra vNIC endpoint pre-attached in
// the same call (Docker allows multiple networks in EndpointsConfig),
// restart=always, the fixed capability/ulimit/device-cgroup policy
// every runtime gets, and the given DNS list.
func (d *Driver) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	endpointsConfig := map[string]*network.EndpointSettings{
		spec.PrimaryNetwork: {},
	}
	for _, ep := range spec.ExtraEndpoints {
		settings := &network.EndpointSettings{MacAddress: ep.MACAddress}
		if ep.IPv4Address != "" {
			settings.IPAMConfig = &network.EndpointIPAMConfig{IPv4Address: ep.IPv4Address}
		}
		endpointsConfig[ep.NetworkName] = settings
	}

	caps := spec.Capabilities
	if len(caps) == 0 {
		caps = DefaultCapabilities
	}
	deviceRules := spec.DeviceCgroupRules
	if len(deviceRules) == 0 {
		deviceRules = DefaultDeviceCgroupRules
	}

	memlockUnlimited := int64(-1)

	resp, err := d.cli.ContainerCreate(ctx,
		&container.Config{
			Image: spec.Image,
			Labels: map[string]string{
				"edge.autonomy.role": "runtime",
			},
		},
		&container.HostConfig{
			RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyAlways},
			CapAdd:        caps,
			Resources: container.Resources{
				Ulimits: []*units.Ulimit{
					{Name: "rtprio", Soft: 99, Hard: 99},
					{Name: "memlock", Soft: memlockUnlimited, Hard: memlockUnlimited},
				},
				DeviceCgroupRules: deviceRules,
			},
			DNS: spec.DNS,
		},
		&network.NetworkingConfig{EndpointsConfig: endpointsConfig},
		nil,
		spec.Name,
	)
	if err != nil {
		return "", orcherr.NewDriver("create container "+spec.Name, err)
	}
	return resp.ID, nil
}

func (d *Driver) StartContainer(ctx context.Context, containerID string) error {
	if err := d.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return orcherr.NewDriver("start container "+containerID, err)
	}
	return nil
}

// StopContainer stops containerID, giving it StopTimeout to exit
// gracefully before the daemon sends SIGKILL.
func (d *Driver) StopContainer(ctx context.Context, containerID string) error {
	timeout := int(StopTimeout.Seconds())
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil && !errdefs.IsNotFound(err) {
		return orcherr.NewDriver("stop container "+containerID, err)
	}
	return nil
}

// RemoveContainer force-removes containerID.
func (d *Driver) RemoveContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !errdefs.IsNotFound(err) {
		return orcherr.NewDriver("remove container "+containerID, err)
	}
	return nil
}

// Inspect returns the observed running/PID/network-endpoint state of
// containerID.
func (d *Driver) Inspect(ctx context.Context, containerID string) (Status, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return Status{}, orcherr.NewNotFound("container %s not found", containerID)
		}
		return Status{}, orcherr.NewDriver("inspect container "+containerID, err)
	}

	status := Status{
		Running:      info.State != nil && info.State.Running,
		RestartCount: info.RestartCount,
		Networks:     map[string]NetworkEndpoint{},
	}
	if info.State != nil {
		status.PID = info.State.Pid
		status.ContainerStatus = info.State.Status
		status.StartedAt = info.State.StartedAt
		status.ExitCode = info.State.ExitCode
		if info.State.Health != nil {
			status.Health = info.State.Health.Status
		}
	}
	if info.NetworkSettings != nil {
		for name, ep := range info.NetworkSettings.Networks {
			status.Networks[name] = NetworkEndpoint{
				NetworkID:  ep.NetworkID,
				MACAddress: ep.MacAddress,
				IPAddress:  ep.IPAddress,
			}
		}
	}
	if info.HostConfig != nil {
		status.NanoCPUs = info.HostConfig.NanoCPUs
		status.CPUQuota = info.HostConfig.CPUQuota
		status.CPUPeriod = info.HostConfig.CPUPeriod
		status.MemoryLimit = info.HostConfig.Memory
	}
	return status, nil
}

// ResolveSelfByName returns the container id matching name (or id), used
// by selfid's name-based steps and by the runtime pipelines, reconciler,
// MAC enforcer and topic handlers to find a container by name.
func (d *Driver) ResolveSelfByName(ctx context.Context, name string) (string, error) {
	info, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		return "", orcherr.NewNotFound("container %s not found: %v", name, err)
	}
	return info.ID, nil
}

// ResolveByLabel returns the id of the first running container carrying
// label=value, the last resort in selfid's fallback chain for a host
// whose HOSTNAME doesn't match its own container id or name (common
// when the agent runs with a custom hostname or inside a pod).
func (d *Driver) ResolveByLabel(ctx context.Context, label, value string) (string, bool, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", label+"="+value)),
	})
	if err != nil {
		return "", false, orcherr.NewDriver("list containers by label "+label, err)
	}
	if len(containers) == 0 {
		return "", false, nil
	}
	return containers[0].ID, true, nil
}
