// Package config loads jadwal settings and resolves the remote endpoint.
//
// Settings live in .jadwal/config.yaml, created with defaults on first run,
// and can be overridden with JADWAL_* environment variables. The remote
// endpoint has its own three-layer resolution, see EndpointResolver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// DirName is the per-project configuration directory.
	DirName = ".jadwal"

	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// EnvPrefix prefixes every environment override, e.g. JADWAL_ROLE.
	EnvPrefix = "JADWAL"
)

// Config keys.
const (
	KeyEndpoint       = "endpoint"
	KeyBackend        = "backend"
	KeyDebounce       = "debounce"
	KeyWriteTimeout   = "write_timeout"
	KeyRetryAttempts  = "retry.attempts"
	KeyRetryDelay     = "retry.delay"
	KeyRole           = "role"
	KeyUser           = "user"
	KeyDataDir        = "data_dir"
	KeySubscribe      = "subscribe"
	KeyPollInterval   = "poll_interval"
	KeyAssistantModel = "assistant.model"
)

// Backends.
const (
	BackendSheet    = "sheet"
	BackendRealtime = "realtime"
)

// defaultConfigYAML is the content written to config.yaml on first run.
const defaultConfigYAML = `# jadwal configuration
# Every key can be overridden with a JADWAL_ environment variable,
# e.g. JADWAL_ROLE=teacher or JADWAL_RETRY_ATTEMPTS=5.

# Remote store: "sheet" (HTTP web app) or "realtime" (websocket hub)
backend: sheet

# Remote URL. Leave empty for local-only use; an override set with
# "jadwal config set-endpoint" takes precedence.
# endpoint:

# Session role: admin, teacher or none
role: admin

# Teacher name used with the teacher role
# user:

# Delay after the last edit before changes are written
debounce: 1s

# A batch of writes that takes longer than this is reported as failed
write_timeout: 15s

retry:
  attempts: 3
  delay: 1.5s

# Follow remote changes while "jadwal watch" runs
subscribe: true
poll_interval: 30s

# Data directory for the local cache (default: the config directory)
# data_dir:

assistant:
  model: claude-sonnet-4-5
`

// Config is the effective configuration.
type Config struct {
	// Dir is the configuration directory the values were read from.
	Dir            string
	Endpoint       string
	Backend        string
	Debounce       time.Duration
	WriteTimeout   time.Duration
	RetryAttempts  uint
	RetryDelay     time.Duration
	Role           string
	User           string
	DataDir        string
	Subscribe      bool
	PollInterval   time.Duration
	AssistantModel string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, BackendSheet)
	v.SetDefault(KeyDebounce, time.Second)
	v.SetDefault(KeyWriteTimeout, 15*time.Second)
	v.SetDefault(KeyRetryAttempts, 3)
	v.SetDefault(KeyRetryDelay, 1500*time.Millisecond)
	v.SetDefault(KeyRole, "admin")
	v.SetDefault(KeySubscribe, true)
	v.SetDefault(KeyPollInterval, 30*time.Second)
	v.SetDefault(KeyAssistantModel, "claude-sonnet-4-5")
}

// LoadViper reads config.yaml from dir using Viper, creating the directory
// and a default config.yaml on first run. A missing config.yaml is not an
// error.
func LoadViper(dir string) (*viper.Viper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(dir); err != nil {
		return nil, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(dir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// VITE_SHEET_URL is honoured for installs configured for the web app.
	_ = v.BindEnv(KeyEndpoint, EnvPrefix+"_ENDPOINT", "VITE_SHEET_URL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// Load reads and validates the configuration in dir.
func Load(dir string) (*Config, error) {
	v, err := LoadViper(dir)
	if err != nil {
		return nil, err
	}
	return FromViper(v, dir)
}

// FromViper extracts the configuration from v and validates it.
func FromViper(v *viper.Viper, dir string) (*Config, error) {
	cfg := &Config{
		Dir:            dir,
		Endpoint:       strings.TrimSpace(v.GetString(KeyEndpoint)),
		Backend:        strings.ToLower(strings.TrimSpace(v.GetString(KeyBackend))),
		Debounce:       v.GetDuration(KeyDebounce),
		WriteTimeout:   v.GetDuration(KeyWriteTimeout),
		RetryAttempts:  v.GetUint(KeyRetryAttempts),
		RetryDelay:     v.GetDuration(KeyRetryDelay),
		Role:           strings.ToLower(strings.TrimSpace(v.GetString(KeyRole))),
		User:           strings.TrimSpace(v.GetString(KeyUser)),
		DataDir:        v.GetString(KeyDataDir),
		Subscribe:      v.GetBool(KeySubscribe),
		PollInterval:   v.GetDuration(KeyPollInterval),
		AssistantModel: v.GetString(KeyAssistantModel),
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSheet, BackendRealtime:
	default:
		return fmt.Errorf("invalid backend %q (want %s or %s)", c.Backend, BackendSheet, BackendRealtime)
	}
	switch c.Role {
	case "admin", "teacher", "none", "":
	default:
		return fmt.Errorf("invalid role %q (want admin, teacher or none)", c.Role)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive (got %s)", c.Debounce)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive (got %s)", c.WriteTimeout)
	}
	if c.RetryAttempts == 0 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll_interval cannot be negative (got %s)", c.PollInterval)
	}
	return nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in dir.
func ensureDefaultConfigFile(dir string) error {
	path := filepath.Join(dir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
