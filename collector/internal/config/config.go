package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCollectInterval = 60 * time.Second
	DefaultBufferSize      = 100
)

// Config is the top-level collector configuration.
// Fields map 1:1 to config.example.yaml; the `server:` section of a shared
// config file is ignored here.
type Config struct {
	Collector CollectorConfig `yaml:"collector"`
}

// CollectorConfig holds all collector-side settings.
type CollectorConfig struct {
	// ServerEndpoint is the base URL of qualtrack-server
	// (e.g. "http://localhost:8080").
	ServerEndpoint string `yaml:"server_endpoint"`

	// CollectInterval controls how often each metric is measured.
	CollectInterval time.Duration `yaml:"collect_interval"`

	// BufferSize is the maximum number of measurement payloads held in
	// memory when the server is unreachable.
	BufferSize int `yaml:"buffer_size"`

	// Metrics is the list of metrics to measure.
	Metrics []Metric `yaml:"metrics"`

	// ServerAuth configures how the collector authenticates to
	// qualtrack-server.
	ServerAuth AuthConfig `yaml:"server_auth"`
}

// Metric binds one catalog metric to the sources that measure it.
type Metric struct {
	// MetricUUID identifies the metric in the server's catalog.
	MetricUUID string `yaml:"metric_uuid"`

	// Sources are the tools consulted to produce this metric's value.
	Sources []Source `yaml:"sources"`
}

// Source describes one measured tool endpoint.
type Source struct {
	// SourceUUID is a stable identifier for this source within the metric.
	SourceUUID string `yaml:"source_uuid"`

	// Type is the tool type: jenkins | prometheus | robotframework.
	Type string `yaml:"type"`

	// Endpoint is the base URL of the tool.
	Endpoint string `yaml:"endpoint"`

	// Params tunes what the source reports, e.g. failure_types or
	// inactive_days for jenkins, metric for prometheus.
	Params map[string]string `yaml:"params"`

	// Auth configures how the collector authenticates to this source.
	Auth AuthConfig `yaml:"auth"`

	// TLS holds optional TLS dial options.
	TLS TLSConfig `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for a source or the server.
type AuthConfig struct {
	// Mode is one of: apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// API key fields — used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// Bearer token fields — used when Mode == "bearer".
	// TokenEnv is the name of the environment variable that holds the token.
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields — used when Mode == "basic".
	// Username is the literal username (safe to store in config).
	Username string `yaml:"username"`
	// PasswordEnv is the name of the environment variable that holds the password.
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// TLSConfig holds per-source TLS dial options.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Collector: CollectorConfig{
			CollectInterval: DefaultCollectInterval,
			BufferSize:      DefaultBufferSize,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.Collector.ServerEndpoint == "" {
		return fmt.Errorf("collector.server_endpoint is required")
	}
	if cfg.Collector.CollectInterval <= 0 {
		return fmt.Errorf("collector.collect_interval must be positive")
	}
	if cfg.Collector.BufferSize <= 0 {
		return fmt.Errorf("collector.buffer_size must be positive")
	}
	for i, m := range cfg.Collector.Metrics {
		if m.MetricUUID == "" {
			return fmt.Errorf("metrics[%d]: metric_uuid is required", i)
		}
		if len(m.Sources) == 0 {
			return fmt.Errorf("metrics[%d] %q: at least one source is required", i, m.MetricUUID)
		}
		for j, src := range m.Sources {
			if src.SourceUUID == "" {
				return fmt.Errorf("metrics[%d].sources[%d]: source_uuid is required", i, j)
			}
			if src.Endpoint == "" {
				return fmt.Errorf("metrics[%d].sources[%d] %q: endpoint is required", i, j, src.SourceUUID)
			}
			switch src.Type {
			case "jenkins", "prometheus", "robotframework":
			default:
				return fmt.Errorf("metrics[%d].sources[%d] %q: unknown type %q", i, j, src.SourceUUID, src.Type)
			}
			switch src.Auth.Mode {
			case "apikey", "bearer", "basic", "none", "":
			default:
				return fmt.Errorf("metrics[%d].sources[%d] %q: unknown auth mode %q", i, j, src.SourceUUID, src.Auth.Mode)
			}
		}
	}
	return nil
}
