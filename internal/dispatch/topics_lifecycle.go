package dispatch

import (
	"context"
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// SelfDestructDelay is the pause before delete_orchestrator's teardown
// begins, long enough for the success reply to flush down the control
// channel first.
const SelfDestructDelay = 500 * time.Millisecond

func connectHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		minilog.Info("dispatch: connection established with the server")
		if deps.OnConnect != nil {
			deps.OnConnect()
		}
		return nil, nil
	}
}

func disconnectHandler() HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		minilog.Info("dispatch: connection ended by the server")
		return nil, nil
	}
}

func connectionInfoHandler() HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		minilog.Info("dispatch: connection.established at %v", payload["connected_at"])
		return nil, nil
	}
}

// deleteOrchestratorHandler replies success immediately and schedules the
// full self-destruct sequence on its own goroutine after SelfDestructDelay,
// so the success reply reaches the controller before teardown begins.
func deleteOrchestratorHandler(deps Deps) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		minilog.Warn("dispatch: delete_orchestrator command received, initiating self-destruct")

		go func() {
			time.Sleep(SelfDestructDelay)
			if err := deps.SelfDestruct.Run(context.Background()); err != nil {
				minilog.Error("dispatch: self-destruct failed: %v", err)
			}
		}()

		return map[string]interface{}{"status": "success"}, nil
	}
}

// passthroughAck backs start_device/stop_device/restart_device: thin
// placeholders that validate and ack without touching the container
// driver; the runtime's own supervisor handles start/stop over the
// internal bridge.
func passthroughAck(action string) HandlerFunc {
	return func(ctx context.Context, payload map[string]interface{}) (map[string]interface{}, error) {
		minilog.Info("dispatch: %s: %v", action, payload)
		return map[string]interface{}{"success": true}, nil
	}
}
