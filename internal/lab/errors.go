package lab

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the lifecycle manager. HTTP handlers map these
// to response codes; raw engine errors never reach callers.
var (
	// ErrRuntimeUnavailable means the container engine could not be reached.
	// The condition is recoverable: availability is re-checked on demand.
	ErrRuntimeUnavailable = errors.New("container runtime is not available")

	// ErrInvalidLabType means the requested lab type is not in the supported set.
	ErrInvalidLabType = errors.New("invalid lab type")

	// ErrNoPortAvailable means the lab port range is exhausted.
	ErrNoPortAvailable = errors.New("no lab port available")

	// ErrForbidden means the targeted session belongs to another user.
	ErrForbidden = errors.New("session belongs to another user")
)

// ImageNotFoundError means the image backing a lab type is not present in the
// runtime. This is an operator setup error, not retried automatically.
type ImageNotFoundError struct {
	Image string
}

func (e *ImageNotFoundError) Error() string {
	return fmt.Sprintf("docker image %q not found: build it first with: docker build -t %s <path-to-dockerfile>", e.Image, e.Image)
}

// StartError wraps an engine failure during container create/start.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start lab container: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}
