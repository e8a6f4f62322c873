package framework

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sunblaze-ucb/cybergym-server/pkg/client"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
)

// DefaultServerConfig returns a configuration for a local single-server
// test. CYBERGYM_TEST_BINARY and CYBERGYM_TEST_DATA_DIR override the
// binary path and data directory.
func DefaultServerConfig() *ServerConfig {
	binary := os.Getenv("CYBERGYM_TEST_BINARY")
	if binary == "" {
		binary = "bin/cybergym-server"
	}

	dataDir := os.Getenv("CYBERGYM_TEST_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), fmt.Sprintf("cybergym-test-%d", os.Getpid()))
	}

	return &ServerConfig{
		Binary:        binary,
		DataDir:       dataDir,
		Host:          "127.0.0.1",
		Salt:          task.DefaultSalt,
		APIKey:        "cybergym-e2e-test-key",
		LogLevel:      "debug",
		KeepOnFailure: false,
	}
}

// Server drives one cybergym-server process under test.
type Server struct {
	Config  *ServerConfig
	Process *Process
	BaseURL string
	Client  *Client
}

// NewServer creates a server harness with the given configuration.
func NewServer(config *ServerConfig) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid server config: %w", err)
	}
	return &Server{Config: config}, nil
}

// Start launches the server process and waits for its API to become
// ready.
func (s *Server) Start() error {
	if s.Config.Port == 0 {
		port, err := freePort(s.Config.Host)
		if err != nil {
			return fmt.Errorf("failed to pick a port: %w", err)
		}
		s.Config.Port = port
	}

	if err := os.MkdirAll(s.Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	process := NewProcess(s.Config.Binary)
	process.Args = []string{
		"serve",
		"--host=" + s.Config.Host,
		"--port=" + strconv.Itoa(s.Config.Port),
		"--salt=" + s.Config.Salt,
		"--db_path=" + filepath.Join(s.Config.DataDir, "poc.db"),
		"--log_dir=" + filepath.Join(s.Config.DataDir, "logs"),
		"--api_key=" + s.Config.APIKey,
		"--log_level=" + s.Config.LogLevel,
	}
	if s.Config.SweepInterval > 0 {
		process.Args = append(process.Args, "--sweep_interval="+strconv.Itoa(s.Config.SweepInterval))
	}

	if err := process.Start(); err != nil {
		return fmt.Errorf("failed to start server process: %w", err)
	}

	s.Process = process
	s.BaseURL = fmt.Sprintf("http://%s:%d", s.Config.Host, s.Config.Port)
	s.Client = NewClient(
		client.NewClient(s.BaseURL, client.WithAPIKey(s.Config.APIKey)),
		s.Config.Salt,
	)

	if err := s.WaitForReady(30 * time.Second); err != nil {
		_ = process.Kill()
		return fmt.Errorf("server never became ready: %w\nserver logs:\n%s", err, process.Logs())
	}
	return nil
}

// Stop stops the server process gracefully.
func (s *Server) Stop() error {
	if s.Process == nil {
		return nil
	}
	return s.Process.Stop()
}

// Restart stops the process and starts a fresh one over the same data
// directory and port, for crash-recovery coverage.
func (s *Server) Restart() error {
	if err := s.Stop(); err != nil {
		_ = s.Process.Kill()
	}
	s.Process = nil
	return s.Start()
}

// Cleanup stops the server and removes its data directory.
func (s *Server) Cleanup() error {
	if s.Process != nil && s.Process.IsRunning() {
		if err := s.Process.Stop(); err != nil {
			fmt.Printf("Warning: error stopping server: %v\n", err)
		}
	}

	if s.Config.KeepOnFailure {
		fmt.Printf("Keeping data dir for inspection: %s\n", s.Config.DataDir)
		return nil
	}
	if err := os.RemoveAll(s.Config.DataDir); err != nil {
		return fmt.Errorf("failed to remove data dir: %w", err)
	}
	return nil
}

// WaitForReady polls /ready until every critical component reports up.
func (s *Server) WaitForReady(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := PollUntil(ctx, 200*time.Millisecond, func() bool {
		status, _, err := s.GetRaw("/ready")
		return err == nil && status == http.StatusOK
	})
	if err != nil {
		return fmt.Errorf("timeout waiting for %s/ready: %w", s.BaseURL, err)
	}
	return nil
}

// GetRaw performs a GET against the server and returns the status code
// and body.
func (s *Server) GetRaw(path string) (int, string, error) {
	resp, err := http.Get(s.BaseURL + path)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

func freePort(host string) (int, error) {
	l, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

func validateConfig(config *ServerConfig) error {
	if config.Binary == "" {
		return fmt.Errorf("Binary cannot be empty")
	}
	if config.DataDir == "" {
		return fmt.Errorf("DataDir cannot be empty")
	}
	if config.Host == "" {
		return fmt.Errorf("Host cannot be empty")
	}
	return nil
}
