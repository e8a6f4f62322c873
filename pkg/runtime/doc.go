// Package runtime executes PoC inputs inside containers via containerd.
//
// # Architecture
//
// The package is split into a thin engine that knows containerd and a
// runner that knows the task catalog:
//
//	┌─────────────────────────────────────────────────────────┐
//	│                        Runner                           │
//	│  task id ──▶ image / command / mounts (RunSpec)         │
//	│  exit-code normalization, per-run metrics               │
//	└───────────────────────────┬─────────────────────────────┘
//	                            │ Engine.Run(spec, waitTimeout)
//	┌───────────────────────────▼─────────────────────────────┐
//	│                   ContainerdEngine                      │
//	│  image lookup ─▶ container ─▶ task ─▶ wait/kill ─▶ rm   │
//	└─────────────────────────────────────────────────────────┘
//
// # Run Shapes
//
// Every run is a one-shot container with the PoC bind-mounted read-only
// and combined stdout/stderr captured in memory. The command inside the
// container is wrapped in timeout -s SIGKILL so a hung target dies on
// its own; the engine enforces a second, outer deadline on the whole
// container in case the image's timeout binary is missing or the
// runtime wedges.
//
// Three shapes exist:
//
//   - arvo tasks run the per-task n132/arvo image and invoke /bin/arvo.
//   - oss-fuzz tasks run either a per-task prebuilt image (when a
//     binary dir is configured) or the shared base-runner image with
//     the task's build tree bind-mounted under /out.
//   - oss-fuzz-latest tasks always use the mounted tree; the fuzz
//     target is picked by index from the project's build metadata.
//     Fix mode does not exist for them.
//
// # Exit Codes
//
// A container process killed by the in-container timeout exits 137.
// The runner rewrites that to the synthetic timeout code and drops the
// captured output, so callers see one stable code for "the program ran
// too long" regardless of how the kill happened.
//
// # Cleanup
//
// Containers and snapshots are deleted after every run, success or
// failure, on a fresh context so cleanup still happens when the request
// context is already dead. A run that outlives the outer deadline is
// SIGKILLed and then deleted with process kill.
//
// # See Also
//
//   - pkg/task: task id parsing and image naming
//   - pkg/manager: persistence around runs
package runtime
