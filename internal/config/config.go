// Package config loads the observer's configuration.
//
// Values are resolved in three layers, later layers winning:
//   - built-in defaults (Default)
//   - an optional YAML file, named by --config or PULSE_OBSERVER_CONFIG
//   - PULSE_* environment variables
//
// MCP hosts usually launch the server with no arguments, so a missing
// config file is not an error; an unreadable or malformed one is.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pulse-os/pulse-observer/internal/storage"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config file path.
const EnvConfig = "PULSE_OBSERVER_CONFIG"

// Config is the complete observer configuration.
type Config struct {
	// MaxQueryLimit is the hard ceiling on rows returned by one query.
	// Default: 100
	MaxQueryLimit int `yaml:"max_query_limit"`

	// CallTimeout bounds every tool call, including its storage round trip.
	// Default: 15s
	CallTimeout time.Duration `yaml:"call_timeout"`

	// LogLevel is a zap level name (debug, info, warn, error).
	// Default: info
	LogLevel string `yaml:"log_level"`

	Storage  StorageConfig  `yaml:"storage"`
	Autonomy AutonomyConfig `yaml:"autonomy"`
	Brain    BrainConfig    `yaml:"brain"`
	HTTP     HTTPConfig     `yaml:"http"`
}

// StorageConfig selects the row store.
type StorageConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver"`

	// DataDir holds the SQLite database file.
	// Default: ~/.pulse-observer
	DataDir string `yaml:"data_dir"`

	// DatabaseURL is the Postgres DSN. Required for the postgres driver.
	DatabaseURL string `yaml:"database_url"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AutonomyConfig tunes the autonomy lookup.
type AutonomyConfig struct {
	// CacheTTL is how long autonomy tier reference rows are reused.
	// Default: 10m
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// BrainConfig configures the brain module loader. The loader is disabled
// when Repo is empty.
type BrainConfig struct {
	// Repo is "owner/name" on GitHub.
	Repo string `yaml:"repo"`

	// Ref is the branch, tag or commit to read. Empty means the default branch.
	Ref string `yaml:"ref"`

	// Dir is the directory inside the repo holding module files.
	// Default: brain
	Dir string `yaml:"dir"`

	// Token is an optional GitHub token for private repos or higher rate limits.
	Token string `yaml:"token"`

	// CacheTTL is how long fetched modules are reused.
	// Default: 5m
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// APIURL overrides the GitHub API base URL.
	// Default: https://api.github.com
	APIURL string `yaml:"api_url"`
}

// HTTPConfig configures the optional streamable HTTP transport.
type HTTPConfig struct {
	// Addr enables HTTP serving when non-empty, e.g. ":8080".
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		MaxQueryLimit: 100,
		CallTimeout:   15 * time.Second,
		LogLevel:      "info",
		Storage: StorageConfig{
			Driver:          storage.DriverSQLite,
			DataDir:         filepath.Join(home, ".pulse-observer"),
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Autonomy: AutonomyConfig{CacheTTL: 10 * time.Minute},
		Brain: BrainConfig{
			Dir:      "brain",
			CacheTTL: 5 * time.Minute,
			APIURL:   "https://api.github.com",
		},
	}
}

// Load resolves the configuration. path may be empty, in which case
// PULSE_OBSERVER_CONFIG is consulted; if that is empty too, only defaults
// and environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.expandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a YAML file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and leaves the defaults untouched.
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overlays PULSE_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a duration", key, v))
				return
			}
			*dst = d
		}
	}

	num("PULSE_MAX_QUERY_LIMIT", &c.MaxQueryLimit)
	dur("PULSE_CALL_TIMEOUT", &c.CallTimeout)
	str("PULSE_LOG_LEVEL", &c.LogLevel)
	str("PULSE_STORAGE_DRIVER", &c.Storage.Driver)
	str("PULSE_DATA_DIR", &c.Storage.DataDir)
	str("PULSE_DATABASE_URL", &c.Storage.DatabaseURL)
	dur("PULSE_AUTONOMY_CACHE_TTL", &c.Autonomy.CacheTTL)
	str("PULSE_BRAIN_REPO", &c.Brain.Repo)
	str("PULSE_BRAIN_REF", &c.Brain.Ref)
	str("PULSE_BRAIN_TOKEN", &c.Brain.Token)
	str("PULSE_HTTP_ADDR", &c.HTTP.Addr)

	return errors.Join(errs...)
}

// expandVariables expands ${VAR} and ${VAR:-default} in paths.
func (c *Config) expandVariables() {
	c.Storage.DataDir = expandVars(c.Storage.DataDir)
	c.Storage.DatabaseURL = expandVars(c.Storage.DatabaseURL)
	c.Brain.Token = expandVars(c.Brain.Token)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.MaxQueryLimit <= 0 {
		errs = append(errs, fmt.Errorf("max_query_limit must be positive, got %d", c.MaxQueryLimit))
	}
	if c.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("call_timeout must be positive, got %s", c.CallTimeout))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	switch c.Storage.Driver {
	case storage.DriverSQLite:
		if c.Storage.DataDir == "" {
			errs = append(errs, errors.New("storage.data_dir is required for the sqlite driver"))
		}
	case storage.DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be %q or %q, got %q",
			storage.DriverSQLite, storage.DriverPostgres, c.Storage.Driver))
	}

	if c.Brain.Repo != "" && strings.Count(c.Brain.Repo, "/") != 1 {
		errs = append(errs, fmt.Errorf("brain.repo must be owner/name, got %q", c.Brain.Repo))
	}

	return errors.Join(errs...)
}

// StorageBackend converts the storage section for storage.Open.
func (c *Config) StorageBackend() storage.Config {
	return storage.Config{
		Driver:          c.Storage.Driver,
		DataDir:         c.Storage.DataDir,
		DSN:             c.Storage.DatabaseURL,
		MaxOpenConns:    c.Storage.MaxOpenConns,
		MaxIdleConns:    c.Storage.MaxIdleConns,
		ConnMaxLifetime: c.Storage.ConnMaxLifetime,
	}
}
