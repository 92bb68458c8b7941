package runtime

import (
	"context"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// DeleteAllBestEffort tears down every runtime this agent has registered
// in the clients store, one after another. Unlike StartDelete it bypasses
// the operations tracker entirely and runs synchronously on the caller's
// goroutine: it is only ever called from delete_orchestrator's
// self-destruct sequence, where there is no request left to answer and
// no point scheduling a retry.
func (m *Manager) DeleteAllBestEffort(ctx context.Context) {
	clients, err := m.Clients.LoadAll()
	if err != nil {
		minilog.Warn("runtime: failed to list runtimes during self-destruct: %v", err)
		return
	}
	for name := range clients {
		minilog.Info("runtime: tearing down %s as part of self-destruct", name)
		if err := m.deletePipeline(ctx, name); err != nil {
			minilog.Warn("runtime: error tearing down runtime %s during self-destruct: %v", name, err)
		}
	}
}
