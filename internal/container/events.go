package container

import (
	"context"

	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// StartEvent is emitted for every container-start event the daemon
// reports, consumed by the MAC enforcer (internal/macenforcer).
type StartEvent struct {
	ContainerID   string
	ContainerName string
}

// SubscribeStart streams container start events until ctx is canceled,
// calling onStart for each one. The daemon's event stream is filtered
// to {type:"container", event:"start"}.
func (d *Driver) SubscribeStart(ctx context.Context, onStart func(StartEvent)) {
	args := filters.NewArgs(
		filters.Arg("type", string(events.ContainerEventType)),
		filters.Arg("event", "start"),
	)

	msgs, errs := d.cli.Events(ctx, events.ListOptions{Filters: args})

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-errs:
			if err != nil {
				minilog.Warn("container: event stream error, will be retried by caller: %v", err)
			}
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			name := msg.Actor.Attributes["name"]
			onStart(StartEvent{ContainerID: msg.Actor.ID, ContainerName: name})
		}
	}
}
