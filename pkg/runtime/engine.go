package runtime

import (
	"context"
	"errors"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// ErrWaitTimeout is returned when a container outlives the wait timeout
// and had to be killed.
var ErrWaitTimeout = errors.New("timed out waiting for container exit")

// RunSpec describes a single one-shot container run.
type RunSpec struct {
	// ID is the container ID; it must be unique per run.
	ID string
	// Image is the image reference. Images are expected to be present
	// already; the engine does not pull.
	Image string
	// Command is the full argv executed in the container.
	Command []string
	// Mounts are bind mounts applied on top of the image config.
	Mounts []specs.Mount
}

// Result carries the exit status and captured output of a finished run.
type Result struct {
	ExitCode uint32
	Output   []byte
}

// Engine runs one-shot containers to completion.
type Engine interface {
	// Run creates, starts, and reaps a container. It blocks until the
	// container exits or waitTimeout elapses; on timeout the container
	// is killed and ErrWaitTimeout is returned. The container and its
	// snapshot are removed on every path.
	Run(ctx context.Context, spec RunSpec, waitTimeout time.Duration) (*Result, error)

	// Close releases the engine's connection.
	Close() error
}
