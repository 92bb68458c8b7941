package dispatch

import (
	"time"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// HeartbeatInterval is the fixed heartbeat cadence.
const HeartbeatInterval = 5 * time.Second

// Heartbeat emits a periodic payload on its own goroutine. It never
// touches the dispatcher's topic table and is never blocked by a slow
// handler.
type Heartbeat struct {
	Send func(topic string, payload map[string]interface{}) error
}

// Run ticks every HeartbeatInterval until stop is closed. A send failure
// (for instance while the control channel is reconnecting) is logged and
// the next tick tries again.
func (h *Heartbeat) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			payload := map[string]interface{}{
				"timestamp": now.Format(time.RFC3339),
			}
			if err := h.Send("heartbeat", payload); err != nil {
				minilog.Warn("dispatch: heartbeat emit failed: %v", err)
				continue
			}
			minilog.Debug("dispatch: heartbeat emitted")
		}
	}
}
