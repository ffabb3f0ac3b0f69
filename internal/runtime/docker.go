package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
)

const stopTimeoutSecs = 10

// DockerRuntime implements Runtime against the local Docker daemon.
type DockerRuntime struct {
	cli *client.Client
}

// NewDocker creates a Docker-backed runtime using environment configuration
// (DOCKER_HOST etc.) with API version negotiation.
func NewDocker() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	slog.Info("Docker client initialized")
	return &DockerRuntime{cli: cli}, nil
}

// Ping checks that the Docker daemon is reachable.
func (r *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker daemon: %w", err)
	}
	return nil
}

// ImageExists reports whether the named image is present locally.
func (r *DockerRuntime) ImageExists(ctx context.Context, name string) (bool, error) {
	if _, err := r.cli.ImageInspect(ctx, name); err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect image %s: %w", name, err)
	}
	return true, nil
}

// Create creates a lab container with its service port published on the host.
func (r *DockerRuntime) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	exposed := nat.Port(fmt.Sprintf("%d/tcp", spec.ExposedPort))

	config := &container.Config{
		Image: spec.Image,
		ExposedPorts: nat.PortSet{
			exposed: struct{}{},
		},
	}
	hostConfig := &container.HostConfig{
		AutoRemove: spec.AutoRemove,
		PortBindings: nat.PortMap{
			exposed: []nat.PortBinding{
				{HostPort: fmt.Sprintf("%d", spec.HostPort)},
			},
		},
	}

	resp, err := r.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	return resp.ID, nil
}

// Start starts a created container.
func (r *DockerRuntime) Start(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return fmt.Errorf("start container %s: %w", containerID, err)
	}
	return nil
}

// Stop stops a container. A container that is already gone is treated as
// stopped so the call stays idempotent under concurrent cleanup.
func (r *DockerRuntime) Stop(ctx context.Context, containerID string) error {
	timeout := stopTimeoutSecs
	if err := r.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already removed", "container_id", containerID)
			return nil
		}
		return fmt.Errorf("stop container %s: %w", containerID, err)
	}
	return nil
}

// Remove force-deletes a container. Missing containers and removals already
// in progress are not errors.
func (r *DockerRuntime) Remove(ctx context.Context, containerID string) error {
	if err := r.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		if errdefs.IsNotFound(err) {
			slog.Debug("Container already removed", "container_id", containerID)
			return nil
		}
		if strings.Contains(err.Error(), "is already in progress") {
			slog.Debug("Container removal already in progress", "container_id", containerID)
			return nil
		}
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	return nil
}

// IsRunning reports whether the container exists and is running.
func (r *DockerRuntime) IsRunning(ctx context.Context, containerID string) (bool, error) {
	inspect, err := r.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect container %s: %w", containerID, err)
	}
	return inspect.State.Running, nil
}
