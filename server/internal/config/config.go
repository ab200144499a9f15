package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NotifyConfig holds status change notification rules and webhook delivery
// targets.
type NotifyConfig struct {
	Rules    []NotifyRule    `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// NotifyRule defines one status change notification condition.
type NotifyRule struct {
	// Name is the human-readable rule identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression over a metric's evaluated status:
	// "status == target_not_met", "status != target_met",
	// "old_status == target_met", "scale == count", or the bare word
	// "changed" which matches any status transition.
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after a rule fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// Default values for the server configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultDatabasePath   = "qualtrack.db"
	DefaultCatalogPath    = "catalog.yaml"
	DefaultStreamInterval = 10 * time.Second
)

// Config holds the server-side configuration parsed from the `server:`
// section of config.yaml. The `collector:` key in the same file is ignored.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// HTTPPort is the port the JSON API, SSE stream and WebSocket hub listen
	// on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// Database configures measurement storage.
	Database DatabaseConfig `yaml:"database"`

	// Catalog configures the metric catalog file.
	Catalog CatalogConfig `yaml:"catalog"`

	// Stream controls the live measurement count stream.
	Stream StreamConfig `yaml:"stream"`

	// Auth configures how the server authenticates incoming collectors.
	Auth AuthConfig `yaml:"auth"`

	// Notify holds status change rules and webhook delivery targets.
	Notify NotifyConfig `yaml:"notify"`
}

// AuthConfig controls collector authentication on the server side.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected
	// API key. Used when Mode == "apikey".
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header name to read the key from.
	// Defaults to "x-api-key" if empty.
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return "x-api-key"
}

// DatabaseConfig locates the SQLite measurement database.
type DatabaseConfig struct {
	// Path is the SQLite database file. Default: "qualtrack.db".
	Path string `yaml:"path"`
}

// CatalogConfig locates the metric catalog.
type CatalogConfig struct {
	// Path is the metric catalog YAML file. Default: "catalog.yaml".
	Path string `yaml:"path"`
}

// StreamConfig controls the live measurement count stream.
type StreamConfig struct {
	// Interval is how often each connected observer polls the measurement
	// count. Default: 10s.
	Interval time.Duration `yaml:"interval"`
}

// Load reads and parses the config file at path, returning the server
// configuration. Missing fields are filled with sensible defaults before
// validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			Database: DatabaseConfig{
				Path: DefaultDatabasePath,
			},
			Catalog: CatalogConfig{
				Path: DefaultCatalogPath,
			},
			Stream: StreamConfig{
				Interval: DefaultStreamInterval,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	if cfg.Server.Database.Path == "" {
		return fmt.Errorf("server.database.path must not be empty")
	}
	if cfg.Server.Catalog.Path == "" {
		return fmt.Errorf("server.catalog.path must not be empty")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Server.Stream.Interval < 0 {
		return fmt.Errorf("server.stream.interval must not be negative")
	}
	for i, rule := range cfg.Server.Notify.Rules {
		if rule.Name == "" {
			return fmt.Errorf("server.notify.rules[%d]: name must not be empty", i)
		}
		if rule.Condition == "" {
			return fmt.Errorf("server.notify.rules[%d]: condition must not be empty", i)
		}
	}
	return nil
}
