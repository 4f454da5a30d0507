// Package config handles loading and validating gitcreds configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/gitcreds/internal/credstore"
	"github.com/jkaninda/gitcreds/internal/selection"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for gitcreds.
type Config struct {
	ScratchDir string `json:"scratch_dir,omitempty" yaml:"scratch_dir,omitempty"` // Secret artifact area. Default: ~/.gitcreds/scratch. Override: GITCREDS_SCRATCH_DIR.
	DataDir    string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`       // Persistent data directory. Default: ~/.gitcreds/data. Override: GITCREDS_DATA_DIR.

	Store *credstore.Config `json:"store,omitempty" yaml:"store,omitempty"` // nil = SQLite default (derived from data dir).

	// Job is the default per-job credential configuration used by the CLI
	// harness. A real host supplies this per job instead.
	Job selection.Config `json:"git_credentials" yaml:"git_credentials"`

	HTTP          *HTTPConfig          `json:"http,omitempty" yaml:"http,omitempty"`                   // nil = listing API disabled.
	Janitor       *JanitorConfig       `json:"janitor,omitempty" yaml:"janitor,omitempty"`             // nil = scratch janitor disabled.
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = metrics/tracing disabled.
}

// HTTPConfig configures the credential listing API.
type HTTPConfig struct {
	ListenAddr string            `json:"listen_addr" yaml:"listen_addr"` // e.g. ":8080".
	EnableDocs bool              `json:"enable_docs" yaml:"enable_docs"`
	APIKeys    map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // API key → principal. GITCREDS_API_KEY adds one.
}

// JanitorConfig configures the scratch-area sweeper.
type JanitorConfig struct {
	Schedule      string `json:"schedule,omitempty" yaml:"schedule,omitempty"`               // Cron expression. Default: "@every 1h".
	MaxAgeMinutes int    `json:"max_age_minutes,omitempty" yaml:"max_age_minutes,omitempty"` // Default: 360.
}

// MaxAge returns the configured max age as a duration.
func (j *JanitorConfig) MaxAge() time.Duration {
	if j == nil || j.MaxAgeMinutes <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(j.MaxAgeMinutes) * time.Minute
}

// ObservabilityConfig configures metrics and tracing.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"` // nil = metrics disabled.
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"` // nil = tracing disabled.
}

// MetricsConfig configures the Prometheus registry exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // Default: "/metrics".
}

// TracingConfig configures the OTLP trace exporter.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	ServiceName string  `json:"service_name,omitempty" yaml:"service_name,omitempty"` // Default: "gitcreds".
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`                             // OTLP collector endpoint.
	Protocol    string  `json:"protocol,omitempty" yaml:"protocol,omitempty"`         // "grpc" (default) or "http".
	Insecure    bool    `json:"insecure,omitempty" yaml:"insecure,omitempty"`
	SampleRate  float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"` // Default: 1.0.
}

// Default returns a configuration with all defaults applied and no optional
// features enabled.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML or JSON configuration file, applies environment
// overrides, and fills in defaults.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()
	return &cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over file
// values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GITCREDS_SCRATCH_DIR"); v != "" {
		c.ScratchDir = v
	}
	if v := os.Getenv("GITCREDS_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GITCREDS_POSTGRES_DSN"); v != "" {
		if c.Store == nil {
			c.Store = &credstore.Config{Driver: credstore.DriverPostgres}
		}
		c.Store.Postgres.DSN = v
	}
	if v := os.Getenv("GITCREDS_API_KEY"); v != "" {
		if c.HTTP == nil {
			c.HTTP = &HTTPConfig{}
		}
		if c.HTTP.APIKeys == nil {
			c.HTTP.APIKeys = make(map[string]string)
		}
		c.HTTP.APIKeys[v] = "env"
	}
}

func (c *Config) applyDefaults() {
	if c.ScratchDir == "" {
		c.ScratchDir = "~/.gitcreds/scratch"
	}
	if c.DataDir == "" {
		c.DataDir = "~/.gitcreds/data"
	}
}

// ScratchPath returns the resolved scratch directory.
func (c *Config) ScratchPath() (string, error) {
	return resolvePath(c.ScratchDir)
}

// StoreConfig returns the effective credential store configuration, deriving
// the SQLite path from the data directory when nothing is configured.
func (c *Config) StoreConfig() (credstore.Config, error) {
	if c.Store != nil && c.Store.Driver == credstore.DriverPostgres {
		return *c.Store, nil
	}

	cfg := credstore.Config{Driver: credstore.DriverSQLite}
	if c.Store != nil {
		cfg = *c.Store
		cfg.Driver = credstore.DriverSQLite
	}
	if cfg.SQLite.Path == "" {
		dataDir, err := resolvePath(c.DataDir)
		if err != nil {
			return credstore.Config{}, fmt.Errorf("resolving data dir: %w", err)
		}
		cfg.SQLite.Path = filepath.Join(dataDir, "credentials.db")
	} else {
		path, err := resolvePath(cfg.SQLite.Path)
		if err != nil {
			return credstore.Config{}, fmt.Errorf("resolving sqlite path: %w", err)
		}
		cfg.SQLite.Path = path
	}
	return cfg, nil
}

// resolvePath expands a leading ~ to the user's home directory.
func resolvePath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
