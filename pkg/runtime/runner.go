package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/rs/zerolog"

	"github.com/sunblaze-ucb/cybergym-server/pkg/log"
	"github.com/sunblaze-ucb/cybergym-server/pkg/metrics"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

const (
	// DefaultDockerTimeout bounds a container run end to end.
	DefaultDockerTimeout = 30 * time.Second

	// DefaultCmdTimeout bounds the reproduction command inside the
	// container; the wrapper kills it with SIGKILL when it expires.
	DefaultCmdTimeout = 10 * time.Second
)

// Options configures runner policy.
type Options struct {
	// BinaryDir, when set, switches fixed-revision oss-fuzz tasks to
	// their prebuilt per-task images instead of the mounted build tree.
	BinaryDir string

	// OSSFuzzDir is the root of OSS-Fuzz build trees
	// (<dir>/<id>-<mode>/ for fixed revisions, <dir>/<project>/ for
	// latest builds).
	OSSFuzzDir string

	// DockerTimeout bounds the whole container run.
	DockerTimeout time.Duration

	// CmdTimeout bounds the command inside the container.
	CmdTimeout time.Duration
}

// Runner turns task IDs into container runs and engine results into
// the exit codes the coordinator records.
type Runner struct {
	engine Engine
	opts   Options
	logger zerolog.Logger
}

// NewRunner creates a runner over an engine. Zero timeouts fall back
// to the defaults.
func NewRunner(engine Engine, opts Options) *Runner {
	if opts.DockerTimeout <= 0 {
		opts.DockerTimeout = DefaultDockerTimeout
	}
	if opts.CmdTimeout <= 0 {
		opts.CmdTimeout = DefaultCmdTimeout
	}
	return &Runner{
		engine: engine,
		opts:   opts,
		logger: log.WithComponent("runtime"),
	}
}

// Run executes the PoC at pocPath against the given task and mode. It
// returns the exit code to record and the captured output. A run killed
// by the in-container timeout comes back as the synthetic timeout code
// with empty output.
func (r *Runner) Run(ctx context.Context, taskID, pocPath string, mode types.Mode) (int, []byte, error) {
	id, err := task.Parse(taskID)
	if err != nil {
		return 0, nil, err
	}

	spec, err := r.buildSpec(id, pocPath, mode)
	if err != nil {
		return 0, nil, err
	}

	kind := string(id.Kind)
	logger := r.logger.With().
		Str("task_id", taskID).
		Str("mode", string(mode)).
		Str("image", spec.Image).
		Logger()
	logger.Debug().Str("container_id", spec.ID).Msg("starting poc run")

	timer := metrics.NewTimer()
	result, err := r.engine.Run(ctx, *spec, r.opts.DockerTimeout)
	duration := timer.ObserveDurationVec(metrics.ContainerRunDuration, kind, string(mode))
	metrics.ContainerRunsTotal.WithLabelValues(kind, string(mode)).Inc()

	if err != nil {
		if errors.Is(err, ErrWaitTimeout) {
			metrics.ContainerRunTimeouts.WithLabelValues(kind, string(mode)).Inc()
			logger.Warn().Dur("duration", duration).Msg("poc run hit wait timeout")
			return 0, nil, types.NewHTTPError(http.StatusInternalServerError, "Timeout waiting for the program")
		}
		logger.Error().Err(err).Msg("poc run failed")
		return 0, nil, types.HTTPErrorf(http.StatusInternalServerError, "Running error: %v", err)
	}

	exitCode := int(result.ExitCode)
	output := result.Output
	if exitCode == types.SIGKILLExitCode {
		// The in-container timeout wrapper killed the program.
		exitCode = types.ExitCodeTimeout
		output = nil
	}

	logger.Info().Int("exit_code", exitCode).Dur("duration", duration).Msg("poc run finished")
	return exitCode, output, nil
}

// buildSpec resolves a task to the container spec that reproduces it.
func (r *Runner) buildSpec(id task.ID, pocPath string, mode types.Mode) (*RunSpec, error) {
	absPoc, err := filepath.Abs(pocPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve poc path: %w", err)
	}

	runID := "poc-run-" + uuid.New().String()

	switch id.Kind {
	case task.KindArvo:
		return &RunSpec{
			ID:      runID,
			Image:   id.Image(mode),
			Command: r.shellCommand(id.Command()),
			Mounts:  []specs.Mount{bindMount(absPoc, "/tmp/poc")},
		}, nil

	case task.KindOSSFuzz:
		if r.opts.BinaryDir != "" {
			// Prebuilt per-task images carry the target binaries.
			return &RunSpec{
				ID:      runID,
				Image:   id.Image(mode),
				Command: r.shellCommand(id.Command()),
				Mounts:  []specs.Mount{bindMount(absPoc, "/tmp/poc")},
			}, nil
		}
		return r.treeSpec(runID, absPoc, fmt.Sprintf("%s-%s", id.Name, mode), func(meta *buildMetadata) (string, error) {
			if meta.FuzzTarget == "" {
				return "", fmt.Errorf("fuzz_target missing in build metadata for %s", id)
			}
			return meta.FuzzTarget, nil
		})

	case task.KindOSSFuzzLatest:
		if mode == types.ModeFix {
			return nil, types.NewHTTPError(http.StatusBadRequest, "Fix mode is not supported for oss-fuzz-latest")
		}
		if r.opts.OSSFuzzDir == "" {
			// Latest-revision tasks only exist where build trees are
			// deployed; elsewhere the whole kind is refused up front.
			return nil, types.NewHTTPError(http.StatusBadRequest, "oss-fuzz-latest is not supported on this server")
		}
		project, index, err := id.SplitProject()
		if err != nil {
			return nil, err
		}
		return r.treeSpec(runID, absPoc, project, func(meta *buildMetadata) (string, error) {
			if index < 0 || index >= len(meta.FuzzTargets) {
				return "", fmt.Errorf("fuzz target index %d out of range for project %s", index, project)
			}
			return meta.FuzzTargets[index], nil
		})
	}

	return nil, types.NewHTTPError(http.StatusBadRequest, "Invalid task_id")
}

// buildMetadata is the metadata.json written next to each build tree.
type buildMetadata struct {
	FuzzTarget  string   `json:"fuzz_target"`
	FuzzTargets []string `json:"fuzz_targets"`
}

// treeSpec builds a run over the shared base runner image with the
// task's build tree bind-mounted file by file under /out.
func (r *Runner) treeSpec(runID, pocPath, dir string, target func(*buildMetadata) (string, error)) (*RunSpec, error) {
	if r.opts.OSSFuzzDir == "" {
		return nil, fmt.Errorf("oss-fuzz build tree not configured")
	}

	base := filepath.Join(r.opts.OSSFuzzDir, dir)
	meta, err := readBuildMetadata(filepath.Join(base, "metadata.json"))
	if err != nil {
		return nil, err
	}
	fuzzer, err := target(meta)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(base, "out")
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list build dir: %w", err)
	}

	mounts := []specs.Mount{bindMount(pocPath, "/testcase")}
	for _, entry := range entries {
		src, err := filepath.Abs(filepath.Join(outDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve build file: %w", err)
		}
		mounts = append(mounts, bindMount(src, "/out/"+entry.Name()))
	}

	return &RunSpec{
		ID:      runID,
		Image:   task.BaseRunnerImage,
		Command: r.shellCommand("reproduce", fuzzer),
		Mounts:  mounts,
	}, nil
}

// shellCommand wraps args in the in-container timeout, merging stderr
// into the captured stream.
func (r *Runner) shellCommand(args ...string) []string {
	line := fmt.Sprintf("timeout -s SIGKILL %d %s 2>&1",
		int(r.opts.CmdTimeout.Seconds()), shellquote.Join(args...))
	return []string{"/bin/bash", "-c", line}
}

func bindMount(source, destination string) specs.Mount {
	return specs.Mount{
		Source:      source,
		Destination: destination,
		Type:        "bind",
		Options:     []string{"ro", "bind"}, // Read-only bind mount
	}
}

func readBuildMetadata(path string) (*buildMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build metadata: %w", err)
	}
	var meta buildMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse build metadata: %w", err)
	}
	return &meta, nil
}
