package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sunblaze-ucb/cybergym-server/pkg/api"
	"github.com/sunblaze-ucb/cybergym-server/pkg/blob"
	"github.com/sunblaze-ucb/cybergym-server/pkg/config"
	"github.com/sunblaze-ucb/cybergym-server/pkg/events"
	"github.com/sunblaze-ucb/cybergym-server/pkg/log"
	"github.com/sunblaze-ucb/cybergym-server/pkg/manager"
	"github.com/sunblaze-ucb/cybergym-server/pkg/metrics"
	"github.com/sunblaze-ucb/cybergym-server/pkg/reconciler"
	"github.com/sunblaze-ucb/cybergym-server/pkg/runtime"
	"github.com/sunblaze-ucb/cybergym-server/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the submission server",
	Long: `Run the PoC submission and verification server.

Configuration is layered: built-in defaults, then the --config YAML
file, then a .env file, then CYBERGYM_* environment variables, then
any flags set on the command line.`,
	RunE: runServe,
}

func init() {
	defaults := config.Default()
	f := serveCmd.Flags()

	f.String("config", "", "Path to a YAML config file")
	f.String("host", defaults.Host, "Address to bind the API server")
	f.Int("port", defaults.Port, "Port to bind the API server")
	f.String("salt", defaults.Salt, "Salt for submission checksums")
	f.String("log_dir", defaults.LogDir, "Directory for PoC files and run outputs")
	f.String("db_path", defaults.DBPath, "Path of the PoC record database")
	f.String("binary_dir", defaults.BinaryDir, "Run oss-fuzz tasks from per-task images instead of mounted build trees")
	f.String("oss_fuzz_dir", defaults.OSSFuzzDir, "Root directory of the oss-fuzz build trees")
	f.Int("max_file_size_mb", defaults.MaxFileSizeMB, "Upload size limit in MB")
	f.String("api_key", defaults.APIKey, "Key guarding the operator endpoints")
	f.String("api_key_name", defaults.APIKeyName, "Header the API key is read from")
	f.String("containerd_socket", defaults.ContainerdSocket, "Path of the containerd socket")
	f.Int("docker_timeout", defaults.DockerTimeout, "Outer per-container timeout in seconds")
	f.Int("cmd_timeout", defaults.CmdTimeout, "In-container command timeout in seconds")
	f.Int("sweep_interval", defaults.SweepInterval, "Background verification sweep interval in seconds (0 disables)")
	f.String("log_level", defaults.LogLevel, "Log level: debug, info, warn or error")
	f.Bool("log_json", defaults.LogJSON, "Log JSON instead of console output")
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("serve")
	metrics.SetVersion(Version)

	if cfg.APIKey == config.DefaultAPIKey {
		logger.Warn().Msg("Running with the built-in development API key")
	}

	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	store, err := storage.NewBoltStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("storage", true, "")

	blobs, err := blob.New(cfg.LogDir)
	if err != nil {
		return fmt.Errorf("failed to open blob store: %w", err)
	}

	engine, err := runtime.NewContainerdEngine(cfg.ContainerdSocket)
	if err != nil {
		return fmt.Errorf("failed to connect to containerd: %w", err)
	}
	defer engine.Close()
	metrics.RegisterComponent("containerd", true, "")

	runner := runtime.NewRunner(engine, runtime.Options{
		BinaryDir:     cfg.BinaryDir,
		OSSFuzzDir:    cfg.OSSFuzzDir,
		DockerTimeout: time.Duration(cfg.DockerTimeout) * time.Second,
		CmdTimeout:    time.Duration(cfg.CmdTimeout) * time.Second,
	})

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	startEventLog(broker)

	mgr := manager.NewManager(&manager.Config{
		Store:  store,
		Blobs:  blobs,
		Runner: runner,
		Salt:   cfg.Salt,
		Broker: broker,
	})

	collector := metrics.NewCollector(store)
	collector.Start()
	defer collector.Stop()

	if cfg.SweepInterval > 0 {
		sweeper := reconciler.New(&reconciler.Config{
			Store:    store,
			Blobs:    blobs,
			Verifier: mgr,
			Interval: time.Duration(cfg.SweepInterval) * time.Second,
		})
		sweeper.Start()
		defer sweeper.Stop()
		logger.Info().Int("interval_seconds", cfg.SweepInterval).Msg("Verification sweeper enabled")
	}

	server := api.NewServer(&api.Config{
		Manager:       mgr,
		APIKey:        cfg.APIKey,
		APIKeyName:    cfg.APIKeyName,
		MaxFileSizeMB: cfg.MaxFileSizeMB,
	})
	metrics.RegisterComponent("api", false, "starting")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.Addr())
	}()

	logger.Info().
		Str("addr", cfg.Addr()).
		Str("db_path", cfg.DBPath).
		Str("log_dir", cfg.LogDir).
		Str("version", Version).
		Msg("Server started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// applyServeFlags overlays flags the user actually set onto the
// loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("salt") {
		cfg.Salt, _ = f.GetString("salt")
	}
	if f.Changed("log_dir") {
		cfg.LogDir, _ = f.GetString("log_dir")
	}
	if f.Changed("db_path") {
		cfg.DBPath, _ = f.GetString("db_path")
	}
	if f.Changed("binary_dir") {
		cfg.BinaryDir, _ = f.GetString("binary_dir")
	}
	if f.Changed("oss_fuzz_dir") {
		cfg.OSSFuzzDir, _ = f.GetString("oss_fuzz_dir")
	}
	if f.Changed("max_file_size_mb") {
		cfg.MaxFileSizeMB, _ = f.GetInt("max_file_size_mb")
	}
	if f.Changed("api_key") {
		cfg.APIKey, _ = f.GetString("api_key")
	}
	if f.Changed("api_key_name") {
		cfg.APIKeyName, _ = f.GetString("api_key_name")
	}
	if f.Changed("containerd_socket") {
		cfg.ContainerdSocket, _ = f.GetString("containerd_socket")
	}
	if f.Changed("docker_timeout") {
		cfg.DockerTimeout, _ = f.GetInt("docker_timeout")
	}
	if f.Changed("cmd_timeout") {
		cfg.CmdTimeout, _ = f.GetInt("cmd_timeout")
	}
	if f.Changed("sweep_interval") {
		cfg.SweepInterval, _ = f.GetInt("sweep_interval")
	}
	if f.Changed("log_level") {
		cfg.LogLevel, _ = f.GetString("log_level")
	}
	if f.Changed("log_json") {
		cfg.LogJSON, _ = f.GetBool("log_json")
	}
}

// startEventLog mirrors lifecycle events into the debug log.
func startEventLog(broker *events.Broker) {
	sub := broker.Subscribe()
	go func() {
		logger := log.WithComponent("events")
		for event := range sub {
			logger.Debug().
				Str("type", string(event.Type)).
				Interface("metadata", event.Metadata).
				Msg(event.Message)
		}
	}()
}
