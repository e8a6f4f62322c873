package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sunblaze-ucb/cybergym-server/pkg/log"
	"github.com/sunblaze-ucb/cybergym-server/pkg/manager"
	"github.com/sunblaze-ucb/cybergym-server/pkg/metrics"
	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// DefaultAPIKeyName is the header carrying the API key for the
// operator endpoints.
const DefaultAPIKeyName = "X-API-Key"

// Server exposes the submission API over HTTP
type Server struct {
	manager    *manager.Manager
	router     *mux.Router
	httpServer *http.Server
	logger     zerolog.Logger

	apiKey       string
	apiKeyName   string
	maxFileBytes int64
	maxFileMB    int
}

// Config holds configuration for creating a Server
type Config struct {
	Manager       *manager.Manager
	APIKey        string
	APIKeyName    string
	MaxFileSizeMB int
}

// NewServer creates a new API server
func NewServer(cfg *Config) *Server {
	s := &Server{
		manager:      cfg.Manager,
		logger:       log.WithComponent("api"),
		apiKey:       cfg.APIKey,
		apiKeyName:   cfg.APIKeyName,
		maxFileBytes: int64(cfg.MaxFileSizeMB) * 1024 * 1024,
		maxFileMB:    cfg.MaxFileSizeMB,
	}
	if s.apiKeyName == "" {
		s.apiKeyName = DefaultAPIKeyName
	}

	r := mux.NewRouter()
	r.Use(s.recoveryMiddleware, s.loggingMiddleware, s.metricsMiddleware)
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)

	// Agent-facing.
	r.HandleFunc("/submit-vul", s.handleSubmitVul).Methods(http.MethodPost)

	// Operator endpoints sit behind the API key.
	r.HandleFunc("/submit-fix", s.requireAPIKey(s.handleSubmitFix)).Methods(http.MethodPost)
	r.HandleFunc("/query-poc", s.requireAPIKey(s.handleQueryPoc)).Methods(http.MethodPost)
	r.HandleFunc("/verify-agent-pocs", s.requireAPIKey(s.handleVerifyAgentPocs)).Methods(http.MethodPost)

	// Operational surface.
	r.HandleFunc("/health", metrics.HealthHandler()).Methods(http.MethodGet)
	r.HandleFunc("/ready", metrics.ReadyHandler()).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.router = r
	return s
}

// Router returns the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until it shuts down.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// Submissions hold the connection open while containers run and
		// a verification sweep can legitimately take minutes, so only
		// the header read is bounded.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	metrics.UpdateComponent("api", true, "")
	s.logger.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	metrics.UpdateComponent("api", false, "shutting down")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleSubmitVul(w http.ResponseWriter, r *http.Request) {
	s.handleSubmit(w, r, types.ModeVul)
}

func (s *Server) handleSubmitFix(w http.ResponseWriter, r *http.Request) {
	s.handleSubmit(w, r, types.ModeFix)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, mode types.Mode) {
	payload, err := s.readSubmission(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.manager.Submit(r.Context(), payload, mode)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, shapeSubmitResponse(result, payload.RequireFlag))
}

// readSubmission pulls the PoC bytes and their metadata out of the
// multipart form. The size limit is enforced before the metadata is
// even looked at.
func (s *Server) readSubmission(r *http.Request) (*types.Payload, error) {
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, types.NewHTTPError(http.StatusBadRequest, "Error reading file")
	}
	defer file.Close()

	// Read one byte past the limit so an at-limit file is
	// distinguishable from an oversized one.
	data, err := io.ReadAll(io.LimitReader(file, s.maxFileBytes+1))
	if err != nil {
		return nil, types.NewHTTPError(http.StatusBadRequest, "Error reading file")
	}
	if int64(len(data)) > s.maxFileBytes {
		return nil, types.HTTPErrorf(http.StatusRequestEntityTooLarge,
			"File too large. Maximum size allowed: %dMB", s.maxFileMB)
	}
	metrics.UploadBytes.Observe(float64(len(data)))

	var payload types.Payload
	if err := json.Unmarshal([]byte(r.FormValue("metadata")), &payload); err != nil {
		return nil, types.NewHTTPError(http.StatusBadRequest, "Invalid metadata format")
	}
	if payload.TaskID == "" || payload.AgentID == "" || payload.Checksum == "" {
		return nil, types.NewHTTPError(http.StatusBadRequest, "Invalid metadata format")
	}
	payload.Data = data
	return &payload, nil
}

// shapeSubmitResponse applies the agent-facing view of a run result:
// synthetic exit codes collapse to their message with exit code zero,
// and the flag is released only for a real non-zero exit.
func shapeSubmitResponse(result *types.SubmitResult, requireFlag bool) *types.SubmitResponse {
	resp := &types.SubmitResponse{
		TaskID:   result.TaskID,
		ExitCode: result.ExitCode,
		Output:   result.Output,
		PocID:    result.PocID,
	}
	if msg, ok := types.ExitMessage(resp.ExitCode); ok {
		resp.Output = msg
		resp.ExitCode = 0
	}
	if requireFlag && resp.ExitCode != 0 {
		resp.Flag = types.Flag
	}
	return resp
}

func (s *Server) handleQueryPoc(w http.ResponseWriter, r *http.Request) {
	// An empty body is a query for everything.
	var query types.PocQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, types.NewHTTPError(http.StatusBadRequest, "Invalid request format"))
		return
	}

	records, err := s.manager.Query(r.Context(), &query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(records) == 0 {
		s.writeError(w, types.NewHTTPError(http.StatusNotFound, "Record not found"))
		return
	}
	s.writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleVerifyAgentPocs(w http.ResponseWriter, r *http.Request) {
	var req types.VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AgentID == "" {
		s.writeError(w, types.NewHTTPError(http.StatusBadRequest, "Invalid request format"))
		return
	}

	result, err := s.manager.VerifyAgent(r.Context(), req.AgentID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusNotFound, &types.HTTPError{Detail: "Not found"})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusMethodNotAllowed, &types.HTTPError{Detail: "Method Not Allowed"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps an error to its response. Errors without an HTTP
// status are infrastructure failures and become a generic 500 so
// internals never leak structure, only the message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if httpErr := types.AsHTTPError(err); httpErr != nil {
		s.writeJSON(w, httpErr.Code, httpErr)
		return
	}
	s.logger.Error().Err(err).Msg("Request failed")
	s.writeJSON(w, http.StatusInternalServerError,
		&types.HTTPError{Detail: fmt.Sprintf("Unexpected error: %v", err)})
}
