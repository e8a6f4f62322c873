/*
Package log provides structured logging for the PoC server using zerolog.

The log package wraps the zerolog library to provide JSON-structured
logging with component-specific child loggers and configurable log
levels. All logs include timestamps and support filtering by severity
level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ─────────────────────┐
	│                                                          │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                   │          │
	│  │  - Zerolog instance                        │          │
	│  │  - Initialized via log.Init()              │          │
	│  │  - Thread-safe for concurrent use          │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                    │          │
	│  │  - Level: debug/info/warn/error            │          │
	│  │  - Format: JSON or console (human)         │          │
	│  │  - Output: stdout, file, or custom writer  │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                    │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                  │          │
	│  │  - WithComponent("manager")                │          │
	│  │  - WithAgentID("agent-abc123")             │          │
	│  │  - WithTaskID("arvo:10400")                │          │
	│  │  - WithPocID("7f3a…")                      │          │
	│  └────────────────────────────────────────────┘          │
	└──────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init() from the serve command
  - Accessible from all packages
  - Thread-safe concurrent writes

Component Loggers:
  - Child loggers carrying a fixed field
  - WithComponent for subsystems (api, manager, runtime, storage)
  - WithAgentID / WithTaskID / WithPocID for request-scoped context

# Usage

Initialization (done once at startup):

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Component logging:

	logger := log.WithComponent("runtime")
	logger.Info().
		Str("image", image).
		Str("mode", string(mode)).
		Int("exit_code", code).
		Dur("duration", elapsed).
		Msg("container run finished")

Request-scoped context:

	logger := log.WithAgentID(payload.AgentID)
	logger.Debug().Str("task_id", payload.TaskID).Msg("submission accepted")

# Integration Points

  - cmd/cybergym-server: calls Init from the serve command before
    anything else logs
  - pkg/api: request logging middleware
  - pkg/runtime: per-run logging with image, mode, and exit status
  - pkg/manager: submission lifecycle logging
  - pkg/events: the debug subscriber logs every published event

# Design Patterns

The package keeps zerolog's API surface visible on purpose: callers
build events fluently (.Str().Int().Msg()) instead of going through a
leveled printf facade, so fields stay structured end to end. Console
output exists for interactive runs; production deployments set
JSONOutput and ship the stream as-is.

# Security

PoC bytes are never logged, at any level. Log payloads carry hashes,
lengths, and identifiers only; the API key is never written to the log
stream.

# See Also

  - pkg/api: request logging middleware
  - pkg/events: event subscriber that mirrors events into the log
*/
package log
