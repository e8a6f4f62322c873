package runtime

import (
	"bytes"
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/rs/zerolog"

	"github.com/sunblaze-ucb/cybergym-server/pkg/log"
)

const (
	// DefaultNamespace is the containerd namespace for PoC runs
	DefaultNamespace = "cybergym"

	// DefaultSocketPath is the default containerd socket
	DefaultSocketPath = "/run/containerd/containerd.sock"

	// cleanupTimeout bounds container teardown after a run. Teardown
	// uses a fresh context so request cancellation cannot leak
	// containers or snapshots.
	cleanupTimeout = 30 * time.Second

	// killDrainTimeout bounds how long a killed task gets to report
	// its exit before deletion proceeds anyway.
	killDrainTimeout = 10 * time.Second
)

// ContainerdEngine implements Engine using containerd
type ContainerdEngine struct {
	client    *containerd.Client
	namespace string
	logger    zerolog.Logger
}

// NewContainerdEngine creates a new containerd-backed engine
func NewContainerdEngine(socketPath string) (*ContainerdEngine, error) {
	if socketPath == "" {
		socketPath = DefaultSocketPath
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &ContainerdEngine{
		client:    client,
		namespace: DefaultNamespace,
		logger:    log.WithComponent("runtime"),
	}, nil
}

// Close closes the containerd client connection
func (e *ContainerdEngine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Pull fetches an image into the engine's namespace. Normal operation
// expects task images provisioned out of band; Pull exists for
// bootstrap tooling and integration environments.
func (e *ContainerdEngine) Pull(ctx context.Context, ref string) error {
	ctx = namespaces.WithNamespace(ctx, e.namespace)
	if _, err := e.client.Pull(ctx, ref, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// cleanupContext returns a namespaced context detached from any request
// so teardown always completes.
func (e *ContainerdEngine) cleanupContext() (context.Context, context.CancelFunc) {
	ctx := namespaces.WithNamespace(context.Background(), e.namespace)
	return context.WithTimeout(ctx, cleanupTimeout)
}

// Run creates and starts a container, waits for it to exit (or for
// waitTimeout), and returns its exit status with the captured output.
func (e *ContainerdEngine) Run(ctx context.Context, spec RunSpec, waitTimeout time.Duration) (*Result, error) {
	ctx = namespaces.WithNamespace(ctx, e.namespace)

	// Get the image; task images are provisioned out of band
	image, err := e.client.GetImage(ctx, spec.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", spec.Image, err)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithProcessArgs(spec.Command...),
	}
	if len(spec.Mounts) > 0 {
		opts = append(opts, oci.WithMounts(spec.Mounts))
	}

	// Create the container
	container, err := e.client.NewContainer(
		ctx,
		spec.ID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(spec.ID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	defer func() {
		cleanupCtx, cancel := e.cleanupContext()
		defer cancel()
		if err := container.Delete(cleanupCtx, containerd.WithSnapshotCleanup); err != nil {
			e.logger.Warn().Err(err).Str("container_id", spec.ID).Msg("failed to delete container")
		}
	}()

	// Capture stdout and stderr into one stream
	var output bytes.Buffer
	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStreams(nil, &output, &output)))
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	// Wait must be registered before Start so the exit is never missed
	statusC, err := task.Wait(ctx)
	if err != nil {
		e.deleteTask(task)
		return nil, fmt.Errorf("failed to wait for task: %w", err)
	}

	if err := task.Start(ctx); err != nil {
		e.deleteTask(task)
		return nil, fmt.Errorf("failed to start task: %w", err)
	}

	select {
	case status := <-statusC:
		code, _, err := status.Result()
		if err != nil {
			e.deleteTask(task)
			return nil, fmt.Errorf("failed to read exit status: %w", err)
		}
		e.deleteTask(task)
		return &Result{ExitCode: code, Output: output.Bytes()}, nil

	case <-time.After(waitTimeout):
		e.killTask(task, statusC)
		return nil, ErrWaitTimeout

	case <-ctx.Done():
		e.killTask(task, statusC)
		return nil, fmt.Errorf("canceled while waiting for container: %w", ctx.Err())
	}
}

// deleteTask reaps a finished task and flushes its IO.
func (e *ContainerdEngine) deleteTask(task containerd.Task) {
	cleanupCtx, cancel := e.cleanupContext()
	defer cancel()
	if _, err := task.Delete(cleanupCtx); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID()).Msg("failed to delete task")
	}
}

// killTask force-kills a running task, drains its exit, and deletes it.
func (e *ContainerdEngine) killTask(task containerd.Task, statusC <-chan containerd.ExitStatus) {
	cleanupCtx, cancel := e.cleanupContext()
	defer cancel()

	if err := task.Kill(cleanupCtx, syscall.SIGKILL); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID()).Msg("failed to kill task")
	}

	select {
	case <-statusC:
	case <-time.After(killDrainTimeout):
		e.logger.Warn().Str("task_id", task.ID()).Msg("killed task did not report exit")
	}

	if _, err := task.Delete(cleanupCtx, containerd.WithProcessKill); err != nil {
		e.logger.Warn().Err(err).Str("task_id", task.ID()).Msg("failed to delete task")
	}
}
