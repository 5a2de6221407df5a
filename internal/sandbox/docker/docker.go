// Package docker implements the sandbox.Provider interface with long-lived
// docker containers.
//
// One container per kernel: Create starts a container running
// `sleep infinity` and every execution is a `docker exec` inside it, so
// files written by one execution (notably the pickled namespace under /tmp)
// survive until the container is terminated.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/sakif/kernel-server/internal/sandbox"
)

// Container labels recording kernel ownership and lifetime deadlines.
const (
	labelWorkspace    = "kernel-server.workspace"
	labelMaxDeadline  = "kernel-server.max-deadline"
	labelIdleDeadline = "kernel-server.idle-deadline"
)

// Provider implements sandbox.Provider using the docker engine API.
type Provider struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
}

var _ sandbox.Provider = (*Provider)(nil)

// New creates a docker Provider and verifies the kernel image is available.
func New(cfg Config, logger *slog.Logger) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring kernel image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	io.Copy(io.Discard, reader)
	logger.Info("kernel image is ready")

	return &Provider{
		cli:    cli,
		config: cfg,
		logger: logger,
	}, nil
}

// Close releases the docker client. Running kernel containers are left
// alone; their ids remain valid in the state store.
func (p *Provider) Close() error {
	return p.cli.Close()
}

// Create starts a fresh kernel container and returns its id.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (string, error) {
	img := opts.Image
	if img == "" {
		img = p.config.Image
	}
	maxLifetime := opts.MaxLifetime
	if maxLifetime == 0 {
		maxLifetime = p.config.MaxLifetime
	}
	idleLifetime := opts.IdleLifetime
	if idleLifetime == 0 {
		idleLifetime = p.config.IdleLifetime
	}

	now := time.Now()
	hostConfig := &container.HostConfig{
		NetworkMode: "bridge",
		Resources: container.Resources{
			Memory:         p.config.MemoryLimit,
			NanoCPUs:       int64(p.config.CPULimit * 1e9),
			DeviceRequests: deviceRequests(opts.Accelerator),
		},
		AutoRemove: false,
	}

	resp, err := p.cli.ContainerCreate(ctx, &container.Config{
		Image: img,
		Cmd:   []string{"sleep", "infinity"},
		Tty:   false,
		Labels: map[string]string{
			labelWorkspace:    opts.WorkspaceID,
			labelMaxDeadline:  strconv.FormatInt(now.Add(maxLifetime).Unix(), 10),
			labelIdleDeadline: strconv.FormatInt(now.Add(idleLifetime).Unix(), 10),
		},
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("ContainerCreate failed: %w", err)
	}

	if err := p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID) // Cleanup
		return "", fmt.Errorf("ContainerStart failed: %w", err)
	}

	p.logger.Info("kernel container started",
		slog.String("id", resp.ID),
		slog.String("workspace", opts.WorkspaceID),
		slog.String("accelerator", opts.Accelerator),
	)
	return resp.ID, nil
}

// Lookup resolves a kernel container id to a spawn handle. A missing or
// stopped container fails with sandbox.ErrNotFound.
func (p *Provider) Lookup(ctx context.Context, id string) (sandbox.Handle, error) {
	info, err := p.cli.ContainerInspect(ctx, id)
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", id, sandbox.ErrNotFound)
		}
		return nil, fmt.Errorf("inspecting container %s: %w", id, err)
	}
	if info.State == nil || !info.State.Running {
		return nil, fmt.Errorf("container %s not running: %w", id, sandbox.ErrNotFound)
	}
	return &handle{cli: p.cli, id: id}, nil
}

// Terminate force-removes a kernel container. Removing an already-gone
// container is not an error.
func (p *Provider) Terminate(ctx context.Context, id string) error {
	err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("removing container %s: %w", id, err)
	}
	return nil
}

func (p *Provider) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
}

// deviceRequests maps an accelerator token to a docker GPU request. Docker
// cannot select a GPU model, so any non-CPU token becomes a generic
// all-GPUs request.
func deviceRequests(accelerator string) []container.DeviceRequest {
	if accelerator == "" || accelerator == "cpu" || accelerator == "none" {
		return nil
	}
	return []container.DeviceRequest{{
		Driver:       "nvidia",
		Count:        -1,
		Capabilities: [][]string{{"gpu"}},
	}}
}

// handle spawns processes inside one kernel container.
type handle struct {
	cli *client.Client
	id  string
}

var _ sandbox.Handle = (*handle)(nil)

// Spawn runs argv inside the container via docker exec and returns the
// running process with its output streams attached.
func (h *handle) Spawn(ctx context.Context, argv []string) (sandbox.Process, error) {
	execResp, err := h.cli.ContainerExecCreate(ctx, h.id, container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		Cmd:          argv,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", h.id, sandbox.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to create exec: %w", err)
	}

	attachResp, err := h.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to exec: %w", err)
	}

	return newProcess(h.cli, execResp.ID, attachResp.Reader, attachResp.Close), nil
}
