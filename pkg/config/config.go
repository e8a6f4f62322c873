package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sunblaze-ucb/cybergym-server/pkg/runtime"
	"github.com/sunblaze-ucb/cybergym-server/pkg/task"
)

// EnvPrefix is prepended to every environment variable the server
// reads, e.g. CYBERGYM_DB_PATH.
const EnvPrefix = "CYBERGYM_"

// DefaultAPIKey is the well-known development key. Deployments must
// override it.
const DefaultAPIKey = "cybergym-030a0cd7-5908-4862-8ab9-91f2bfc7b56d"

// Config is the complete server configuration. Timeouts are in seconds.
type Config struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`

	Salt          string `yaml:"salt" env:"SALT"`
	LogDir        string `yaml:"log_dir" env:"LOG_DIR"`
	DBPath        string `yaml:"db_path" env:"DB_PATH"`
	BinaryDir     string `yaml:"binary_dir" env:"BINARY_DIR"`
	OSSFuzzDir    string `yaml:"oss_fuzz_dir" env:"OSS_FUZZ_DIR"`
	APIKey        string `yaml:"api_key" env:"API_KEY"`
	APIKeyName    string `yaml:"api_key_name" env:"API_KEY_NAME"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB"`

	ContainerdSocket string `yaml:"containerd_socket" env:"CONTAINERD_SOCKET"`
	DockerTimeout    int    `yaml:"docker_timeout" env:"DOCKER_TIMEOUT"`
	CmdTimeout       int    `yaml:"cmd_timeout" env:"CMD_TIMEOUT"`

	// SweepInterval > 0 enables the background verification sweeper.
	SweepInterval int `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`

	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	LogJSON  bool   `yaml:"log_json" env:"LOG_JSON"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Host:             "127.0.0.1",
		Port:             8666,
		Salt:             task.DefaultSalt,
		LogDir:           "./logs",
		DBPath:           "./poc.db",
		APIKey:           DefaultAPIKey,
		APIKeyName:       "X-API-Key",
		MaxFileSizeMB:    10,
		ContainerdSocket: runtime.DefaultSocketPath,
		DockerTimeout:    30,
		CmdTimeout:       10,
		LogLevel:         "info",
	}
}

// Load builds the effective configuration: defaults, then the optional
// YAML file at path, then a .env file in the working directory, then
// CYBERGYM_-prefixed environment variables. Later sources win. Flags
// are layered on top by the command layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Best-effort: no .env file is the normal case. Load never
	// overrides variables already present in the environment.
	_ = godotenv.Load()

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Addr returns the host:port the API server binds.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
