// Package dockerrt runs a spawned-CLI runner adapter inside a container
// instead of a local child process (SPEC_FULL.md's containerized-runner
// supplement, generalizing the teacher's Standalone/Docker runtime split
// from _examples/kdlbs-kandev/apps/backend/internal/agent/docker). A
// Repository opts in with `runtime: "docker"` + `containerImage` in
// config.json; everything else about the adapter (NDJSON parsing, delta
// accumulation, deferred-result buffering, log rotation, post-tool hooks)
// is unchanged from internal/runner's ProcessRunner, since this package
// reuses those exported helpers directly rather than reimplementing them.
package dockerrt

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"go.uber.org/zap"

	"github.com/sylas-dev/sylas/internal/common/logger"
)

// Client wraps the Docker SDK down to what a spawned-CLI-in-a-container
// needs: pull-if-missing, create with a bind-mounted workspace, attach
// stdio, wait for exit, remove. Grounded on the teacher's
// internal/agent/docker.Client, trimmed of the orchestration-wide
// container lifecycle (listing, labels, interactive shells) that a
// single runner subroutine never uses.
type Client struct {
	cli *client.Client
	log *logger.Logger
}

// NewClient builds a Client from the environment (DOCKER_HOST and friends),
// mirroring the teacher's client.NewClientWithOpts(client.FromEnv) pattern.
func NewClient(log *logger.Logger) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Client{cli: cli, log: log}, nil
}

// Ping verifies the daemon is reachable, used at startup to decide
// whether docker-runtime repositories can be served at all.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	return err
}

// Close releases the underlying docker API connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// EnsureImage pulls ref if it isn't already present locally.
func (c *Client) EnsureImage(ctx context.Context, ref string) error {
	if _, _, err := c.cli.ImageInspectWithRaw(ctx, ref); err == nil {
		return nil
	}
	c.log.Info("pulling runner image", zap.String("image", ref))
	rc, err := c.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pulling image %s: %w", ref, err)
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// ContainerSpec configures the one container a runner subroutine spawns.
type ContainerSpec struct {
	Image      string
	Command    []string
	Env        []string
	WorkingDir string
	// HostWorkspaceDir is bind-mounted read-write at WorkingDir inside the
	// container, so the CLI edits the same git worktree a standalone
	// runner would have edited directly.
	HostWorkspaceDir string
	// TTY allocates a pseudo-tty for the container, mirroring
	// ProcessRunner's UsePTY for CLIs (cursor-agent) whose spinner
	// corrupts the NDJSON stream without one. A tty'd attach stream
	// carries no Docker multiplex framing, so AttachContainer skips the
	// demultiplexer when this is set.
	TTY bool
}

// CreateContainer creates (but does not start) a container with stdin
// attached and stdout/stderr captured. Tty follows spec.TTY: without a
// tty the attach stream uses Docker's multiplexed framing, with one it
// is a raw stream (see ContainerSpec.TTY).
func (c *Client) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	containerCfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		Env:          spec.Env,
		WorkingDir:   spec.WorkingDir,
		OpenStdin:    true,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          spec.TTY,
		StdinOnce:    false,
	}
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.HostWorkspaceDir,
			Target: spec.WorkingDir,
		}},
		AutoRemove: false,
	}
	resp, err := c.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("creating runner container: %w", err)
	}
	return resp.ID, nil
}

// AttachResult bundles the pipes returned by AttachContainer: Stdin
// writes to the container's stdin, Stdout yields the demultiplexed
// plain byte stream (stdout+stderr interleaved, frame headers stripped).
type AttachResult struct {
	Stdin  io.WriteCloser
	Stdout io.Reader
	conn   net.Conn
}

// AttachContainer attaches to a created container's stdio. The returned
// Stdout reader demultiplexes Docker's stream-copy framing (one byte
// stream type, three bytes padding, four-byte big-endian size, then the
// frame payload) into a single plain stream, the same shape ProcessRunner
// already scans with bufio.Scanner for a local child process.
func (c *Client) AttachContainer(ctx context.Context, containerID string, tty bool) (*AttachResult, error) {
	resp, err := c.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("attaching runner container: %w", err)
	}

	if tty {
		return &AttachResult{Stdin: resp.Conn, Stdout: resp.Reader, conn: resp.Conn}, nil
	}

	pr, pw := io.Pipe()
	go demultiplexStream(pw, resp.Reader)

	return &AttachResult{Stdin: resp.Conn, Stdout: pr, conn: resp.Conn}, nil
}

// demultiplexStream decodes Docker's multiplexed attach stream into plain
// bytes, grounded on the teacher's demultiplexStream: byte 0 selects
// stdout/stderr/stdin, bytes 4-7 are the big-endian uint32 frame size.
func demultiplexStream(dst *io.PipeWriter, src io.Reader) {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(src, header); err != nil {
			dst.CloseWithError(err)
			return
		}
		size := binary.BigEndian.Uint32(header[4:8])
		if size == 0 {
			continue
		}
		if _, err := io.CopyN(dst, src, int64(size)); err != nil {
			dst.CloseWithError(err)
			return
		}
	}
}

// StartContainer starts a created, attached container.
func (c *Client) StartContainer(ctx context.Context, containerID string) error {
	return c.cli.ContainerStart(ctx, containerID, container.StartOptions{})
}

// StopContainer sends SIGTERM and waits grace before the daemon escalates
// to SIGKILL, mirroring ProcessRunner.Stop's local-process behavior.
func (c *Client) StopContainer(ctx context.Context, containerID string, grace time.Duration) error {
	timeoutSeconds := int(grace.Seconds())
	return c.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeoutSeconds})
}

// RemoveContainer force-removes a stopped container.
func (c *Client) RemoveContainer(ctx context.Context, containerID string) error {
	return c.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// WaitContainer blocks until the container stops and returns its exit
// code, the container equivalent of cmd.Wait() in process.go's waitLoop.
func (c *Client) WaitContainer(ctx context.Context, containerID string) (int64, error) {
	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			return -1, fmt.Errorf("waiting for runner container: %w", err)
		}
		return -1, nil
	case status := <-statusCh:
		return status.StatusCode, nil
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}
