package runtime

import (
	"context"

	"github.com/edgefleet/orchestrator-agent/internal/container"
	"github.com/edgefleet/orchestrator-agent/internal/minilog"
	"github.com/edgefleet/orchestrator-agent/internal/opstate"
	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// StartDelete guards entry the same way StartCreate does: the exclusivity
// check runs synchronously so the dispatcher can reject immediately, and
// the actual teardown is offloaded.
func (m *Manager) StartDelete(ctx context.Context, runtimeName string) error {
	if runtimeName == "" {
		return orcherr.NewValidation("runtime name must not be empty")
	}
	if !m.Ops.SetDeleting(runtimeName) {
		return orcherr.NewConflict(runtimeName, opstate.OpDelete)
	}

	go m.runDelete(ctx, runtimeName)
	return nil
}

func (m *Manager) runDelete(ctx context.Context, runtimeName string) {
	if err := m.deletePipeline(ctx, runtimeName); err != nil {
		minilog.Error("runtime: failed to delete runtime container %s: %+v", runtimeName, err)
		m.Ops.SetError(runtimeName, err.Error(), opstate.OpDelete)
		return
	}
	m.Ops.Clear(runtimeName)
}

// deletePipeline runs the delete sequence: stop/remove
// the container (tolerating not-found at every step), drop the client
// registry entry, delete the persisted vNIC/serial intents, remove the
// usage buffer, then remove the internal bridge after force-disconnecting
// the agent. L2 shared macvlan networks are never removed here — other
// runtimes may still be attached to them.
func (m *Manager) deletePipeline(ctx context.Context, runtimeName string) error {
	m.Ops.SetStep(runtimeName, "stopping_container")

	containerID, err := m.Driver.ResolveSelfByName(ctx, runtimeName)
	if err != nil {
		minilog.Debug("runtime: container %s not found during delete, continuing teardown", runtimeName)
	} else {
		if err := m.Driver.StopContainer(ctx, containerID); err != nil {
			minilog.Warn("runtime: error stopping container %s: %v", runtimeName, err)
		}
		if err := m.Driver.RemoveContainer(ctx, containerID); err != nil {
			minilog.Warn("runtime: error removing container %s: %v", runtimeName, err)
		}
	}

	if err := m.Clients.Delete(runtimeName); err != nil {
		minilog.Warn("runtime: error removing client registry entry for %s: %v", runtimeName, err)
	}

	if err := m.VNICs.Delete(runtimeName); err != nil {
		minilog.Warn("runtime: error deleting vnic configs for %s: %v", runtimeName, err)
	}
	if err := m.Serial.Delete(runtimeName); err != nil {
		minilog.Warn("runtime: error deleting serial configs for %s: %v", runtimeName, err)
	}

	m.Usage.RemoveDevice(runtimeName)

	m.Ops.SetStep(runtimeName, "removing_networks")
	internalNetworkName := container.InternalNetworkName(runtimeName)
	if selfID, ok := m.resolveSelf(ctx); ok {
		if err := m.Driver.DisconnectEndpoint(ctx, selfID, internalNetworkName, true); err != nil {
			minilog.Warn("runtime: error disconnecting agent from internal network %s: %v", internalNetworkName, err)
		}
	}
	if err := m.Driver.RemoveNetwork(ctx, internalNetworkName); err != nil {
		minilog.Warn("runtime: error removing internal network %s: %v", internalNetworkName, err)
	}

	minilog.Info("runtime: runtime container %s deleted", runtimeName)
	return nil
}
