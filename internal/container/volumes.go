package container

import (
	"context"

	"github.com/docker/docker/errdefs"

	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// RemoveVolume force-removes a named volume, tolerating not-found. Used
// by the self-destruct sequence to drop the shared volume mounted into
// every runtime container.
func (d *Driver) RemoveVolume(ctx context.Context, name string) error {
	if err := d.cli.VolumeRemove(ctx, name, true); err != nil && !errdefs.IsNotFound(err) {
		return orcherr.NewDriver("remove volume "+name, err)
	}
	return nil
}
