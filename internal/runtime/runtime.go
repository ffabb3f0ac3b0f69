// Package runtime abstracts the container engine used to host lab containers.
package runtime

import (
	"context"
)

// ContainerSpec describes a lab container to create.
type ContainerSpec struct {
	Name string
	// Image is the lab image to run. Callers resolve it from a fixed
	// lab-type mapping; it must never come from user input.
	Image string
	// HostPort is the host TCP port bound to the container's exposed port.
	HostPort int
	// ExposedPort is the port the lab service listens on inside the container.
	ExposedPort int
	// AutoRemove asks the engine to delete the container once it stops, so
	// the common stop path needs no separate remove call.
	AutoRemove bool
}

// Runtime is the narrow contract the lifecycle manager depends on.
// Implementations wrap a concrete container engine.
type Runtime interface {
	// Ping checks that the engine is reachable.
	Ping(ctx context.Context) error

	// ImageExists reports whether the named image is present locally.
	ImageExists(ctx context.Context, name string) (bool, error)

	// Create creates a container from spec and returns its engine-assigned ID.
	Create(ctx context.Context, spec ContainerSpec) (string, error)

	// Start starts a created container.
	Start(ctx context.Context, containerID string) error

	// Stop stops a container. Stopping a missing container is not an error.
	Stop(ctx context.Context, containerID string) error

	// Remove deletes a container. Removing a missing container is not an error.
	Remove(ctx context.Context, containerID string) error

	// IsRunning reports whether the container currently exists and is running.
	IsRunning(ctx context.Context, containerID string) (bool, error)
}
