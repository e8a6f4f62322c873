package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sunblaze-ucb/cybergym-server/pkg/blob"
	"github.com/sunblaze-ucb/cybergym-server/pkg/events"
	"github.com/sunblaze-ucb/cybergym-server/pkg/log"
	"github.com/sunblaze-ucb/cybergym-server/pkg/metrics"
	"github.com/sunblaze-ucb/cybergym-server/pkg/storage"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// PocRunner executes a stored PoC against one side of a task.
type PocRunner interface {
	Run(ctx context.Context, taskID, pocPath string, mode types.Mode) (exitCode int, output []byte, err error)
}

// Manager coordinates PoC submissions: checksum gate, content-addressed
// dedup, persistence, and container runs
type Manager struct {
	store  storage.Store
	blobs  *blob.Store
	runner PocRunner
	salt   string
	broker *events.Broker
	logger zerolog.Logger
}

// Config holds the collaborators for creating a Manager
type Config struct {
	Store  storage.Store
	Blobs  *blob.Store
	Runner PocRunner
	Salt   string
	Broker *events.Broker // optional
}

// NewManager creates a new Manager instance
func NewManager(cfg *Config) *Manager {
	return &Manager{
		store:  cfg.Store,
		blobs:  cfg.Blobs,
		runner: cfg.Runner,
		salt:   cfg.Salt,
		broker: cfg.Broker,
		logger: log.WithComponent("manager"),
	}
}

// newPocID returns a fresh 32-char lowercase hex identifier.
func newPocID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Submit validates, stores and executes one PoC submission and returns
// the raw run result. Response shaping (synthetic exit-code messages,
// flag release) is the transport's job, so two submissions of the same
// PoC always report the same stored facts.
func (m *Manager) Submit(ctx context.Context, payload *types.Payload, mode types.Mode) (*types.SubmitResult, error) {
	logger := m.logger.With().
		Str("agent_id", payload.AgentID).
		Str("task_id", payload.TaskID).
		Str("mode", string(mode)).
		Logger()

	if !task.Verify(payload.TaskID, payload.AgentID, payload.Checksum, m.salt) {
		metrics.SubmissionsTotal.WithLabelValues(string(mode), "rejected").Inc()
		logger.Warn().Msg("Rejected submission with invalid checksum")
		return nil, types.NewHTTPError(http.StatusBadRequest, "Invalid checksum")
	}

	sum := sha256.Sum256(payload.Data)
	pocHash := hex.EncodeToString(sum[:])
	logger = logger.With().Str("poc_hash", pocHash).Logger()

	records, err := m.store.FindPoCs(payload.AgentID, payload.TaskID, pocHash)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, fmt.Errorf("failed to look up poc records: %w", err)
	}
	if len(records) > 1 {
		metrics.SubmissionsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, types.NewHTTPError(http.StatusInternalServerError,
			"Multiple PoC records for same agent/task/hash found")
	}

	pocID := newPocID()
	if len(records) == 1 {
		pocID = records[0].PocID
		if code := records[0].ExitCode(mode); code != nil {
			// Already executed for this mode: answer from the record
			// without touching a container.
			metrics.SubmissionsTotal.WithLabelValues(string(mode), "cached").Inc()
			logger.Info().Str("poc_id", pocID).Int("exit_code", *code).
				Msg("Returning cached result for duplicate PoC")
			m.publish(events.EventPocDeduplicated, "duplicate PoC answered from cache", map[string]string{
				"poc_id":  pocID,
				"task_id": payload.TaskID,
				"mode":    string(mode),
			})
			return &types.SubmitResult{
				TaskID:   payload.TaskID,
				ExitCode: *code,
				Output:   m.blobs.ReadOutput(pocID, mode),
				PocID:    pocID,
			}, nil
		}
	}

	pocPath, err := m.blobs.WritePoC(pocID, payload.Data)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, fmt.Errorf("failed to save poc file: %w", err)
	}

	record, err := m.store.GetOrCreatePoC(&types.PoCRecord{
		PocID:     pocID,
		AgentID:   payload.AgentID,
		TaskID:    payload.TaskID,
		PocHash:   pocHash,
		PocLength: len(payload.Data),
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, fmt.Errorf("failed to save poc record: %w", err)
	}
	if record.PocID != pocID {
		// Lost a first-submission race. The stored record is the source
		// of truth, so adopt its id and lay the bytes down again under
		// it (the content is identical by construction).
		pocID = record.PocID
		logger.Debug().Str("poc_id", pocID).Msg("Adopted poc_id from concurrent submission")
		if pocPath, err = m.blobs.WritePoC(pocID, payload.Data); err != nil {
			metrics.SubmissionsTotal.WithLabelValues(string(mode), "error").Inc()
			return nil, fmt.Errorf("failed to save poc file: %w", err)
		}
	}
	logger = logger.With().Str("poc_id", pocID).Logger()

	if len(records) == 0 && record.PocID == pocID {
		m.publish(events.EventPocCreated, "new PoC recorded", map[string]string{
			"poc_id":   pocID,
			"agent_id": payload.AgentID,
			"task_id":  payload.TaskID,
		})
	}

	exitCode, output, err := m.runAndRecord(payload.TaskID, pocID, pocPath, mode)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(mode), "error").Inc()
		return nil, err
	}

	metrics.SubmissionsTotal.WithLabelValues(string(mode), "completed").Inc()
	logger.Info().Int("exit_code", exitCode).Msg("PoC submission completed")

	return &types.SubmitResult{
		TaskID:   payload.TaskID,
		ExitCode: exitCode,
		Output:   string(output),
		PocID:    pocID,
	}, nil
}

// runAndRecord executes the PoC and persists the outcome (output file
// first, then the exit code on the record).
func (m *Manager) runAndRecord(taskID, pocID, pocPath string, mode types.Mode) (int, []byte, error) {
	// Runs are detached from the request context: a client that gives
	// up must not kill the container mid-flight, or the record would
	// stay unverified with its blob already written.
	exitCode, output, err := m.runner.Run(context.Background(), taskID, pocPath, mode)
	if err != nil {
		return 0, nil, err
	}

	if err := m.blobs.WriteOutput(pocID, mode, output); err != nil {
		return 0, nil, fmt.Errorf("failed to save run output: %w", err)
	}
	if _, err := m.store.SetExitCode(pocID, mode, exitCode); err != nil {
		return 0, nil, fmt.Errorf("failed to record exit code: %w", err)
	}

	m.publish(events.EventRunFinished, "PoC run finished", map[string]string{
		"poc_id":    pocID,
		"task_id":   taskID,
		"mode":      string(mode),
		"exit_code": strconv.Itoa(exitCode),
	})
	return exitCode, output, nil
}

// RunPocID re-executes a stored PoC by id. With rerun unset, only the
// modes that never produced an exit code are executed. Fix mode is
// skipped for tasks that have no fixed build.
func (m *Manager) RunPocID(ctx context.Context, pocID string, rerun bool) error {
	record, err := m.store.GetPoC(pocID)
	if err != nil {
		return fmt.Errorf("failed to look up poc record: %w", err)
	}
	if record == nil {
		return types.HTTPErrorf(http.StatusInternalServerError,
			"%d PoC records for same poc_id found", 0)
	}

	if !m.blobs.HasPoC(pocID) {
		return types.NewHTTPError(http.StatusInternalServerError, "PoC binary not found")
	}
	pocPath := m.blobs.PoCPath(pocID)

	if rerun || record.VulExitCode == nil {
		if _, _, err := m.runAndRecord(record.TaskID, pocID, pocPath, types.ModeVul); err != nil {
			return err
		}
	}

	if !task.HasFixBuild(record.TaskID) {
		return nil
	}
	if rerun || record.FixExitCode == nil {
		if _, _, err := m.runAndRecord(record.TaskID, pocID, pocPath, types.ModeFix); err != nil {
			return err
		}
	}
	return nil
}

// VerifyAgent runs every PoC an agent ever submitted, oldest first,
// filling in any missing exit codes. Any single failure aborts the
// sweep so the caller sees it.
func (m *Manager) VerifyAgent(ctx context.Context, agentID string) (*types.VerifyResult, error) {
	records, err := m.store.ListPoCs(&types.PocQuery{AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("failed to list poc records: %w", err)
	}
	if len(records) == 0 {
		return nil, types.NewHTTPError(http.StatusNotFound, "No records found for this agent_id")
	}

	pocIDs := make([]string, 0, len(records))
	for _, record := range records {
		if err := m.RunPocID(ctx, record.PocID, false); err != nil {
			return nil, err
		}
		pocIDs = append(pocIDs, record.PocID)
	}

	m.logger.Info().Str("agent_id", agentID).Int("count", len(pocIDs)).
		Msg("Verified all PoCs for agent")
	m.publish(events.EventAgentVerified, "all PoCs for agent verified", map[string]string{
		"agent_id": agentID,
		"count":    strconv.Itoa(len(pocIDs)),
	})

	return &types.VerifyResult{
		Message: fmt.Sprintf("All %d PoCs for this agent_id have been verified", len(pocIDs)),
		PocIDs:  pocIDs,
	}, nil
}

// Query returns stored PoC records matching the filter, oldest first.
func (m *Manager) Query(ctx context.Context, query *types.PocQuery) ([]*types.PoCRecord, error) {
	records, err := m.store.ListPoCs(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list poc records: %w", err)
	}
	return records, nil
}

func (m *Manager) publish(eventType events.EventType, message string, metadata map[string]string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: metadata,
	})
}
