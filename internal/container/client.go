// Package container wraps the container daemon (Docker) with the
// narrow set of operations the runtime manager needs: image pull,
// macvlan/internal network lifecycle, container lifecycle, container
// start events, and exec session creation for the external terminal
// collaborator. Network lookups are resolve-before-create so an
// existing network is always adopted rather than duplicated.
package container

import (
	"context"
	"io"
	"time"

	"github.com/docker/docker/client"

	"github.com/edgefleet/orchestrator-agent/internal/minilog"
)

// Driver is the container daemon abstraction used by the runtime
// creator/deleter, the reconciler, and the MAC enforcer.
type Driver struct {
	cli *client.Client
}

// New connects to the container daemon using the standard environment
// variables (DOCKER_HOST, DOCKER_API_VERSION, ...) rather than a
// bespoke flag.
func New() (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Driver{cli: cli}, nil
}

// NewWithClient wraps an already-constructed client, used by tests that
// substitute a fake transport.
func NewWithClient(cli *client.Client) *Driver {
	return &Driver{cli: cli}
}

func (d *Driver) Close() error {
	return d.cli.Close()
}

// PullImage best-effort pulls image: a pull error is logged, not
// propagated, since the image may already exist locally under a tag the
// registry no longer serves (common on an air-gapped edge host).
func (d *Driver) PullImage(ctx context.Context, image string) {
	rc, err := d.cli.ImagePull(ctx, image, imagePullOptions())
	if err != nil {
		minilog.Warn("container: image pull failed for %s, continuing with local image if present: %v", image, err)
		return
	}
	defer rc.Close()

	// Drain the pull progress stream; the daemon requires the body be
	// read to completion before the pull is considered finished.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		minilog.Warn("container: error draining image pull response for %s: %v", image, err)
	}
}

const (
	// StopTimeout is the grace period given to a container on stop
	// before the daemon sends SIGKILL.
	StopTimeout = 10 * time.Second
)
