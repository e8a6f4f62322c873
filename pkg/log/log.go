package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide root logger. Its zero value discards
// everything, so packages can log unconditionally and tests never need
// to call Init.
var Logger zerolog.Logger

// Level names a log verbosity. Unknown values mean info.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

func (l Level) zerologLevel() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logging configuration.
type Config struct {
	Level Level

	// JSONOutput emits machine-readable JSON instead of the human
	// console format.
	JSONOutput bool

	// Output defaults to stdout.
	Output io.Writer
}

// Init installs the root logger. Call it once at startup, before any
// child loggers are derived.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(cfg.Level.zerologLevel())
	Logger = zerolog.New(newWriter(cfg)).With().Timestamp().Logger()
}

func newWriter(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.JSONOutput {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// WithComponent derives a child logger tagged with a subsystem name.
func WithComponent(name string) zerolog.Logger {
	return withField("component", name)
}

// WithAgentID derives a child logger tagged with an agent.
func WithAgentID(id string) zerolog.Logger {
	return withField("agent_id", id)
}

// WithTaskID derives a child logger tagged with a task.
func WithTaskID(id string) zerolog.Logger {
	return withField("task_id", id)
}

// WithPocID derives a child logger tagged with a PoC record.
func WithPocID(id string) zerolog.Logger {
	return withField("poc_id", id)
}

func withField(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}
