package manager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunblaze-ucb/cybergym-server/pkg/blob"
	"github.com/sunblaze-ucb/cybergym-server/pkg/events"
	"github.com/sunblaze-ucb/cybergym-server/pkg/storage"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

const testSalt = "unit-test-salt"

type runCall struct {
	taskID  string
	pocPath string
	mode    types.Mode
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []runCall
	exit   map[types.Mode]int
	output map[types.Mode][]byte
	err    error
}

func (f *fakeRunner) Run(ctx context.Context, taskID, pocPath string, mode types.Mode) (int, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runCall{taskID: taskID, pocPath: pocPath, mode: mode})
	if f.err != nil {
		return 0, nil, f.err
	}
	return f.exit[mode], f.output[mode], nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeRunner) callsFor(mode types.Mode) []runCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []runCall
	for _, c := range f.calls {
		if c.mode == mode {
			out = append(out, c)
		}
	}
	return out
}

func newTestManager(t *testing.T) (*Manager, *fakeRunner, storage.Store, *blob.Store) {
	t.Helper()

	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "poc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	runner := &fakeRunner{
		exit:   map[types.Mode]int{types.ModeVul: 1, types.ModeFix: 0},
		output: map[types.Mode][]byte{types.ModeVul: []byte("AddressSanitizer: heap-buffer-overflow"), types.ModeFix: []byte("ok")},
	}

	mgr := NewManager(&Config{
		Store:  store,
		Blobs:  blobs,
		Runner: runner,
		Salt:   testSalt,
	})
	return mgr, runner, store, blobs
}

func testPayload(taskID, agentID string, data []byte) *types.Payload {
	return &types.Payload{
		TaskID:   taskID,
		AgentID:  agentID,
		Checksum: task.Checksum(taskID, agentID, testSalt),
		Data:     data,
	}
}

func TestSubmitHappyPath(t *testing.T) {
	mgr, runner, store, blobs := newTestManager(t)
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	result, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)

	assert.Equal(t, "arvo:10400", result.TaskID)
	assert.Equal(t, 1, result.ExitCode)
	assert.Equal(t, "AddressSanitizer: heap-buffer-overflow", result.Output)
	assert.Len(t, result.PocID, 32)

	require.Equal(t, 1, runner.callCount())
	call := runner.calls[0]
	assert.Equal(t, "arvo:10400", call.taskID)
	assert.Equal(t, types.ModeVul, call.mode)
	assert.Equal(t, blobs.PoCPath(result.PocID), call.pocPath)

	record, err := store.GetPoC(result.PocID)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.NotNil(t, record.VulExitCode)
	assert.Equal(t, 1, *record.VulExitCode)
	assert.Nil(t, record.FixExitCode)
	assert.Equal(t, len(payload.Data), record.PocLength)

	stored, err := os.ReadFile(blobs.PoCPath(result.PocID))
	require.NoError(t, err)
	sum := sha256.Sum256(stored)
	assert.Equal(t, record.PocHash, hex.EncodeToString(sum[:]), "stored bytes must hash to the recorded poc_hash")

	assert.Equal(t, "AddressSanitizer: heap-buffer-overflow", blobs.ReadOutput(result.PocID, types.ModeVul))
}

func TestSubmitInvalidChecksum(t *testing.T) {
	mgr, runner, store, _ := newTestManager(t)
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))
	payload.Checksum = "deadbeef"

	_, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.Error(t, err)

	httpErr := types.AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	assert.Equal(t, "Invalid checksum", httpErr.Detail)

	assert.Zero(t, runner.callCount(), "rejected submissions must not run")
	count, err := store.CountPoCs()
	require.NoError(t, err)
	assert.Zero(t, count, "rejected submissions must not be recorded")
}

func TestSubmitDuplicateServedFromCache(t *testing.T) {
	mgr, runner, _, _ := newTestManager(t)
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	first, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)

	second, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)

	assert.Equal(t, first.PocID, second.PocID)
	assert.Equal(t, first.ExitCode, second.ExitCode)
	assert.Equal(t, first.Output, second.Output)
	assert.Equal(t, 1, runner.callCount(), "duplicates must not run again")
}

func TestSubmitSamePocOtherModeRuns(t *testing.T) {
	mgr, runner, store, _ := newTestManager(t)
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	vul, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)

	fix, err := mgr.Submit(context.Background(), payload, types.ModeFix)
	require.NoError(t, err)

	assert.Equal(t, vul.PocID, fix.PocID, "same bytes share one record across modes")
	assert.Equal(t, 0, fix.ExitCode)
	assert.Equal(t, 2, runner.callCount())

	record, err := store.GetPoC(vul.PocID)
	require.NoError(t, err)
	require.NotNil(t, record.VulExitCode)
	require.NotNil(t, record.FixExitCode)
	assert.Equal(t, 1, *record.VulExitCode)
	assert.Equal(t, 0, *record.FixExitCode)
}

func TestSubmitRunnerErrorKeepsRecordUnverified(t *testing.T) {
	mgr, runner, store, blobs := newTestManager(t)
	runner.err = types.NewHTTPError(http.StatusInternalServerError, "Running error: no such image")
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	_, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.Error(t, err)

	httpErr := types.AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, "Running error: no such image", httpErr.Detail)

	records, err := mgr.Query(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, records, 1, "the record survives a failed run")
	assert.Nil(t, records[0].VulExitCode)
	assert.True(t, blobs.HasPoC(records[0].PocID))

	// A later submission of the same bytes runs again.
	runner.err = nil
	result, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)
	assert.Equal(t, records[0].PocID, result.PocID)

	record, err := store.GetPoC(result.PocID)
	require.NoError(t, err)
	require.NotNil(t, record.VulExitCode)
}

func TestSubmitTimeoutPersisted(t *testing.T) {
	mgr, runner, store, blobs := newTestManager(t)
	runner.exit[types.ModeVul] = types.ExitCodeTimeout
	runner.output[types.ModeVul] = nil
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	result, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)
	assert.Equal(t, types.ExitCodeTimeout, result.ExitCode)
	assert.Empty(t, result.Output)

	record, err := store.GetPoC(result.PocID)
	require.NoError(t, err)
	require.NotNil(t, record.VulExitCode)
	assert.Equal(t, types.ExitCodeTimeout, *record.VulExitCode)

	// The empty output file exists, so duplicates are served from cache.
	data, err := os.ReadFile(blobs.OutputPath(result.PocID, types.ModeVul))
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)
	assert.Equal(t, 1, runner.callCount())
}

type conflictingStore struct {
	storage.Store
}

func (s *conflictingStore) FindPoCs(agentID, taskID, pocHash string) ([]*types.PoCRecord, error) {
	return []*types.PoCRecord{{PocID: "a"}, {PocID: "b"}}, nil
}

func TestSubmitConflictingRecords(t *testing.T) {
	mgr, _, _, blobs := newTestManager(t)
	mgr.store = &conflictingStore{}
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	_, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.Error(t, err)

	httpErr := types.AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	assert.Equal(t, "Multiple PoC records for same agent/task/hash found", httpErr.Detail)
	assert.False(t, blobs.HasPoC("a"))
}

func TestRunPocIDUnknown(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	err := mgr.RunPocID(context.Background(), "0000000000000000000000000000dead", false)
	require.Error(t, err)

	httpErr := types.AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, http.StatusInternalServerError, httpErr.Code)
	assert.Equal(t, "0 PoC records for same poc_id found", httpErr.Detail)
}

func TestRunPocIDMissingBinary(t *testing.T) {
	mgr, _, store, _ := newTestManager(t)
	record, err := store.GetOrCreatePoC(&types.PoCRecord{
		PocID:   "0123456789abcdef0123456789abcdef",
		AgentID: "agent-1",
		TaskID:  "arvo:1",
		PocHash: "hash",
	})
	require.NoError(t, err)

	err = mgr.RunPocID(context.Background(), record.PocID, false)
	require.Error(t, err)

	httpErr := types.AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, "PoC binary not found", httpErr.Detail)
}

func TestRunPocIDFillsMissingMode(t *testing.T) {
	mgr, runner, _, _ := newTestManager(t)
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	result, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)
	require.Equal(t, 1, runner.callCount())

	err = mgr.RunPocID(context.Background(), result.PocID, false)
	require.NoError(t, err)

	assert.Len(t, runner.callsFor(types.ModeVul), 1, "vul already has an exit code")
	assert.Len(t, runner.callsFor(types.ModeFix), 1)
}

func TestRunPocIDRerun(t *testing.T) {
	mgr, runner, _, _ := newTestManager(t)
	payload := testPayload("arvo:10400", "agent-1", []byte("poc-bytes"))

	result, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)

	err = mgr.RunPocID(context.Background(), result.PocID, true)
	require.NoError(t, err)

	assert.Len(t, runner.callsFor(types.ModeVul), 2)
	assert.Len(t, runner.callsFor(types.ModeFix), 1)
}

func TestRunPocIDSkipsFixForLatest(t *testing.T) {
	mgr, runner, _, _ := newTestManager(t)
	payload := testPayload("oss-fuzz-latest:libxml2-0", "agent-1", []byte("poc-bytes"))

	result, err := mgr.Submit(context.Background(), payload, types.ModeVul)
	require.NoError(t, err)

	err = mgr.RunPocID(context.Background(), result.PocID, true)
	require.NoError(t, err)

	assert.Len(t, runner.callsFor(types.ModeVul), 2)
	assert.Empty(t, runner.callsFor(types.ModeFix), "latest tasks have no fixed build")
}

func TestVerifyAgentNoRecords(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	_, err := mgr.VerifyAgent(context.Background(), "agent-unknown")
	require.Error(t, err)

	httpErr := types.AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
	assert.Equal(t, "No records found for this agent_id", httpErr.Detail)
}

func TestVerifyAgent(t *testing.T) {
	mgr, runner, _, _ := newTestManager(t)

	var submitted []string
	for _, data := range []string{"poc-a", "poc-b", "poc-c"} {
		result, err := mgr.Submit(context.Background(), testPayload("arvo:10400", "agent-1", []byte(data)), types.ModeVul)
		require.NoError(t, err)
		submitted = append(submitted, result.PocID)
	}
	// Another agent's record must not be swept up.
	_, err := mgr.Submit(context.Background(), testPayload("arvo:10400", "agent-2", []byte("poc-a")), types.ModeVul)
	require.NoError(t, err)

	result, err := mgr.VerifyAgent(context.Background(), "agent-1")
	require.NoError(t, err)

	assert.Equal(t, "All 3 PoCs for this agent_id have been verified", result.Message)
	assert.Equal(t, submitted, result.PocIDs, "verification walks records oldest first")
	assert.Len(t, runner.callsFor(types.ModeVul), 4, "vul codes were already recorded")
	assert.Len(t, runner.callsFor(types.ModeFix), 3)
}

func TestQueryFilters(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	_, err := mgr.Submit(context.Background(), testPayload("arvo:1", "agent-1", []byte("a")), types.ModeVul)
	require.NoError(t, err)
	_, err = mgr.Submit(context.Background(), testPayload("arvo:2", "agent-1", []byte("b")), types.ModeVul)
	require.NoError(t, err)
	_, err = mgr.Submit(context.Background(), testPayload("arvo:1", "agent-2", []byte("c")), types.ModeVul)
	require.NoError(t, err)

	all, err := mgr.Query(context.Background(), &types.PocQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	byAgent, err := mgr.Query(context.Background(), &types.PocQuery{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Len(t, byAgent, 2)

	byBoth, err := mgr.Query(context.Background(), &types.PocQuery{AgentID: "agent-1", TaskID: "arvo:2"})
	require.NoError(t, err)
	require.Len(t, byBoth, 1)
	assert.Equal(t, "arvo:2", byBoth[0].TaskID)
}

func TestSubmitPublishesEvents(t *testing.T) {
	mgr, _, _, _ := newTestManager(t)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	mgr.broker = broker

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	_, err := mgr.Submit(context.Background(), testPayload("arvo:10400", "agent-1", []byte("poc-bytes")), types.ModeVul)
	require.NoError(t, err)

	var seen []events.EventType
	timeout := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case event := <-sub:
			seen = append(seen, event.Type)
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", seen)
		}
	}
	assert.Contains(t, seen, events.EventPocCreated)
	assert.Contains(t, seen, events.EventRunFinished)
}
