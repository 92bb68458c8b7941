package dispatch

import (
	"context"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/runtime"
)

// SidecarContainerName and SharedVolumeName name the two fixed
// infrastructure objects the agent provisions alongside its runtimes,
// mirroring what the installer set up.
const (
	SidecarContainerName = "autonomy-netmon"
	SharedVolumeName     = "orchestrator-shared"
)

// SelfDestructer implements the delete_orchestrator teardown:
// stop/remove every managed runtime and its internal network, remove
// the netmon sidecar container, remove the shared volume, then remove
// the agent's own container last, leaving nothing behind but the
// system's actual deployment footprint. Every step is best-effort: a
// failure is logged and the sequence continues, so a partial failure
// never blocks reaching the final self-removal.
type SelfDestructer struct {
	Runtime *runtime.Manager
	Driver  *container.Driver
}

func (s *SelfDestructer) Run(ctx context.Context) error {
	minilog.Warn("dispatch: delete_orchestrator received, self-destructing...")

	s.Runtime.DeleteAllBestEffort(ctx)

	if id, err := s.Driver.ResolveSelfByName(ctx, SidecarContainerName); err != nil {
		minilog.Warn("dispatch: netmon sidecar container %s not found: %v", SidecarContainerName, err)
	} else {
		if err := s.Driver.StopContainer(ctx, id); err != nil {
			minilog.Warn("dispatch: error stopping sidecar %s: %v", SidecarContainerName, err)
		}
		if err := s.Driver.RemoveContainer(ctx, id); err != nil {
			minilog.Warn("dispatch: error removing sidecar %s: %v", SidecarContainerName, err)
		} else {
			minilog.Info("dispatch: removed netmon sidecar container %s", SidecarContainerName)
		}
	}

	if err := s.Driver.RemoveVolume(ctx, SharedVolumeName); err != nil {
		minilog.Warn("dispatch: error removing shared volume %s: %v", SharedVolumeName, err)
	} else {
		minilog.Info("dispatch: removed shared volume %s", SharedVolumeName)
	}

	selfName, ok := s.Runtime.SelfName()
	if !ok {
		minilog.Error("dispatch: could not detect own container, cannot complete self-destruct")
		return nil
	}
	selfID, err := s.Driver.ResolveSelfByName(ctx, selfName)
	if err != nil {
		minilog.Error("dispatch: own container %s not found: %v", selfName, err)
		return nil
	}
	if err := s.Driver.RemoveContainer(ctx, selfID); err != nil {
		minilog.Error("dispatch: error removing own container %s: %v", selfName, err)
		return nil
	}
	minilog.Info("dispatch: container %s removed successfully, self-destruct complete", selfName)
	return nil
}
