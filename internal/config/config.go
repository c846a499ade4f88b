package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the traffmeter configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Ledger    LedgerConfig    `yaml:"ledger"`
	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	Session   SessionConfig   `yaml:"session"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Reporting ReportingConfig `yaml:"reporting"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds HTTP API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// LedgerConfig holds the connection to the external usage ledger database.
type LedgerConfig struct {
	DSN             string `yaml:"dsn"`
	QueryTimeoutSec int    `yaml:"query_timeout_sec"`
}

// SnapshotConfig holds the snapshot database settings. An empty DSN means
// the snapshot table lives in the ledger database.
type SnapshotConfig struct {
	DSN string `yaml:"dsn"`
}

// SessionConfig holds the Redis-backed wizard session store settings.
type SessionConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	TTLMin           int      `yaml:"ttl_min"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// TelegramConfig holds the chat front end settings.
type TelegramConfig struct {
	Token          string  `yaml:"token"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids"`
	PollTimeoutSec int     `yaml:"poll_timeout_sec"`
}

// ReportingConfig holds scheduled consumption cycle settings.
// IntervalMin = 0 disables the scheduler.
type ReportingConfig struct {
	IntervalMin  int   `yaml:"interval_min"`
	TargetChatID int64 `yaml:"target_chat_id"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Ledger.QueryTimeoutSec <= 0 {
		c.Ledger.QueryTimeoutSec = 15
	}
	if c.Snapshot.DSN == "" {
		c.Snapshot.DSN = c.Ledger.DSN
	}
	if c.Session.TTLMin <= 0 {
		c.Session.TTLMin = 15
	}
	if c.Session.ReadinessTimeout <= 0 {
		c.Session.ReadinessTimeout = 10
	}
	if c.Telegram.PollTimeoutSec <= 0 {
		c.Telegram.PollTimeoutSec = 30
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Ledger.DSN == "" {
		return fmt.Errorf("ledger.dsn is required")
	}
	if c.Telegram.Token != "" && len(c.Telegram.AllowedChatIDs) == 0 {
		return fmt.Errorf("telegram.allowed_chat_ids is required when telegram.token is set")
	}
	if c.Telegram.Token != "" && len(c.Session.Addrs) == 0 {
		return fmt.Errorf("session.addrs is required when telegram.token is set")
	}
	if c.Reporting.IntervalMin > 0 && c.Reporting.TargetChatID == 0 {
		return fmt.Errorf("reporting.target_chat_id is required when reporting.interval_min is set")
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
