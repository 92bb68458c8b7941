package container

import (
	"context"
	"io"

	"github.com/docker/docker/api/types/container"

	"github.com/edgefleet/orchestrator-agent/internal/orcherr"
)

// ExecSession is a live interactive exec attached to a running
// container, for the external terminal collaborator that bridges the
// exec socket to a remote PTY. This package only creates and attaches
// the session; pumping bytes between it and a channel, plus resize and
// cancel, is the external collaborator's responsibility.
type ExecSession struct {
	Conn   io.ReadWriteCloser
	ExecID string
}

// CreateExec starts an interactive exec (tty, stdin/stdout attached) in
// containerID and returns the attached hijacked connection.
func (d *Driver) CreateExec(ctx context.Context, containerID string, cmd []string) (*ExecSession, error) {
	created, err := d.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          cmd,
		Tty:          true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, orcherr.NewDriver("create exec in "+containerID, err)
	}

	resp, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{Tty: true})
	if err != nil {
		return nil, orcherr.NewDriver("attach exec in "+containerID, err)
	}

	return &ExecSession{Conn: resp.Conn, ExecID: created.ID}, nil
}

// ResizeExec adjusts the exec session's TTY size, called by the
// terminal collaborator on a client-side resize event.
func (d *Driver) ResizeExec(ctx context.Context, execID string, height, width uint) error {
	if err := d.cli.ContainerExecResize(ctx, execID, container.ResizeOptions{Height: height, Width: width}); err != nil {
		return orcherr.NewDriver("resize exec "+execID, err)
	}
	return nil
}
