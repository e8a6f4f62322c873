package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunblaze-ucb/cybergym-server/pkg/blob"
	"github.com/sunblaze-ucb/cybergym-server/pkg/manager"
	"github.com/sunblaze-ucb/cybergym-server/pkg/storage"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

const (
	testSalt   = "api-test-salt"
	testAPIKey = "cybergym-test-key"
)

type stubRunner struct {
	mu    sync.Mutex
	calls int
	exit  int
	out   []byte
	err   error
}

func (r *stubRunner) Run(ctx context.Context, taskID, pocPath string, mode types.Mode) (int, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return 0, nil, r.err
	}
	return r.exit, r.out, nil
}

type testServer struct {
	srv    *Server
	runner *stubRunner
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "poc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	blobs, err := blob.New(t.TempDir())
	require.NoError(t, err)

	runner := &stubRunner{exit: 1, out: []byte("SEGV on unknown address")}
	mgr := manager.NewManager(&manager.Config{
		Store:  store,
		Blobs:  blobs,
		Runner: runner,
		Salt:   testSalt,
	})

	srv := NewServer(&Config{
		Manager:       mgr,
		APIKey:        testAPIKey,
		APIKeyName:    DefaultAPIKeyName,
		MaxFileSizeMB: 1,
	})
	return &testServer{srv: srv, runner: runner}
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if apiKey != "" {
		req.Header.Set(DefaultAPIKeyName, apiKey)
	}
	rr := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(rr, req)
	return rr
}

func submitMetadata(taskID, agentID string, requireFlag bool) string {
	metadata, _ := json.Marshal(&types.Payload{
		TaskID:      taskID,
		AgentID:     agentID,
		Checksum:    task.Checksum(taskID, agentID, testSalt),
		RequireFlag: requireFlag,
	})
	return string(metadata)
}

func multipartBody(t *testing.T, metadata string, file []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if metadata != "" {
		require.NoError(t, w.WriteField("metadata", metadata))
	}
	if file != nil {
		fw, err := w.CreateFormFile("file", "poc")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func errorDetail(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body.Detail
}

func TestSubmitVul(t *testing.T) {
	ts := newTestServer(t)
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), []byte("poc"))

	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp types.SubmitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "arvo:10400", resp.TaskID)
	assert.Equal(t, 1, resp.ExitCode)
	assert.Equal(t, "SEGV on unknown address", resp.Output)
	assert.Len(t, resp.PocID, 32)
	assert.Empty(t, resp.Flag, "flag requires require_flag")
}

func TestSubmitVulReleasesFlag(t *testing.T) {
	ts := newTestServer(t)
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", true), []byte("poc"))

	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp types.SubmitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, types.Flag, resp.Flag)
}

func TestSubmitVulNoFlagOnCleanExit(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.exit = 0
	ts.runner.out = []byte("no crash")
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", true), []byte("poc"))

	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp types.SubmitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Zero(t, resp.ExitCode)
	assert.Empty(t, resp.Flag)
}

func TestSubmitVulTimeoutShaping(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.exit = types.ExitCodeTimeout
	ts.runner.out = nil
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", true), []byte("poc"))

	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp types.SubmitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Zero(t, resp.ExitCode, "synthetic codes are hidden from agents")
	assert.Equal(t, "Timeout waiting for the program", resp.Output)
	assert.Empty(t, resp.Flag, "a timed-out run proves nothing")
}

func TestSubmitInvalidChecksum(t *testing.T) {
	ts := newTestServer(t)
	metadata := `{"task_id":"arvo:10400","agent_id":"agent-1","checksum":"wrong"}`
	body, contentType := multipartBody(t, metadata, []byte("poc"))

	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid checksum", errorDetail(t, rr))
}

func TestSubmitMissingFile(t *testing.T) {
	ts := newTestServer(t)
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), nil)

	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Error reading file", errorDetail(t, rr))
}

func TestSubmitBadMetadata(t *testing.T) {
	ts := newTestServer(t)
	for name, metadata := range map[string]string{
		"not json":       "{{{",
		"missing fields": `{"task_id":"arvo:10400"}`,
		"empty":          "",
	} {
		t.Run(name, func(t *testing.T) {
			body, contentType := multipartBody(t, metadata, []byte("poc"))
			rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "Invalid metadata format", errorDetail(t, rr))
		})
	}
}

func TestSubmitFileSizeLimit(t *testing.T) {
	ts := newTestServer(t)

	atLimit := bytes.Repeat([]byte("A"), 1024*1024)
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), atLimit)
	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	assert.Equal(t, http.StatusOK, rr.Code, "a file exactly at the limit is accepted")

	oversized := append(atLimit, 'A')
	body, contentType = multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), oversized)
	rr = ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	assert.Equal(t, "File too large. Maximum size allowed: 1MB", errorDetail(t, rr))
}

func TestSubmitFixRequiresAPIKey(t *testing.T) {
	ts := newTestServer(t)

	for name, key := range map[string]string{"missing": "", "wrong": "nope"} {
		t.Run(name, func(t *testing.T) {
			body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), []byte("poc"))
			rr := ts.do(t, http.MethodPost, "/submit-fix", body, contentType, key)
			assert.Equal(t, http.StatusNotFound, rr.Code, "auth failures look like unknown routes")
			assert.Equal(t, "Not found", errorDetail(t, rr))
		})
	}

	ts.runner.exit = 0
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), []byte("poc"))
	rr := ts.do(t, http.MethodPost, "/submit-fix", body, contentType, testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp types.SubmitResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Zero(t, resp.ExitCode)
}

func TestQueryPoc(t *testing.T) {
	ts := newTestServer(t)
	for _, agent := range []string{"agent-1", "agent-1", "agent-2"} {
		body, contentType := multipartBody(t, submitMetadata("arvo:10400", agent, false), []byte("poc-"+agent))
		rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := ts.do(t, http.MethodPost, "/query-poc", bytes.NewBufferString(`{}`), "application/json", testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code)
	var all []*types.PoCRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &all))
	assert.Len(t, all, 2, "identical submissions share a record")

	rr = ts.do(t, http.MethodPost, "/query-poc", bytes.NewBufferString(`{"agent_id":"agent-2"}`), "application/json", testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code)
	var filtered []*types.PoCRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &filtered))
	require.Len(t, filtered, 1)
	assert.Equal(t, "agent-2", filtered[0].AgentID)

	rr = ts.do(t, http.MethodPost, "/query-poc", nil, "", testAPIKey)
	assert.Equal(t, http.StatusOK, rr.Code, "an absent body matches everything")

	rr = ts.do(t, http.MethodPost, "/query-poc", bytes.NewBufferString(`{"agent_id":"ghost"}`), "application/json", testAPIKey)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Record not found", errorDetail(t, rr))
}

func TestVerifyAgentPocs(t *testing.T) {
	ts := newTestServer(t)
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), []byte("poc"))
	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = ts.do(t, http.MethodPost, "/verify-agent-pocs", bytes.NewBufferString(`{"agent_id":"agent-1"}`), "application/json", testAPIKey)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var result types.VerifyResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &result))
	assert.Equal(t, "All 1 PoCs for this agent_id have been verified", result.Message)
	assert.Len(t, result.PocIDs, 1)

	rr = ts.do(t, http.MethodPost, "/verify-agent-pocs", bytes.NewBufferString(`{"agent_id":"ghost"}`), "application/json", testAPIKey)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "No records found for this agent_id", errorDetail(t, rr))

	rr = ts.do(t, http.MethodPost, "/verify-agent-pocs", bytes.NewBufferString(`{}`), "application/json", testAPIKey)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request format", errorDetail(t, rr))
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/nope", nil, "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Not found", errorDetail(t, rr))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRunnerFailureSurfacesDetail(t *testing.T) {
	ts := newTestServer(t)
	ts.runner.err = types.NewHTTPError(http.StatusInternalServerError, "Running error: image not found")
	body, contentType := multipartBody(t, submitMetadata("arvo:10400", "agent-1", false), []byte("poc"))

	rr := ts.do(t, http.MethodPost, "/submit-vul", body, contentType, "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Running error: image not found", errorDetail(t, rr))
}

func TestGenerateAPIKeyShape(t *testing.T) {
	a := GenerateAPIKey()
	b := GenerateAPIKey()
	assert.NotEqual(t, a, b)
	assert.Regexp(t, `^cybergym-[0-9a-f-]{36}$`, a)
}
