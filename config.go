package spcline

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config defines server and persistence configuration. The engine itself
// needs no configuration; everything here shapes the boundary layers around
// it.
type Config struct {
	// Analysis holds defaults applied to every analysis request.
	Analysis AnalysisConfig `yaml:"analysis"`

	// Store configures metric persistence.
	Store StoreConfig `yaml:"store"`

	// HTTP configures the HTTP API server.
	HTTP HTTPConfig `yaml:"http"`

	// Snapshot configures snapshot archival.
	Snapshot SnapshotConfig `yaml:"snapshot"`

	// Auth configures HTTP API authentication.
	// If nil or Enabled is false, no authentication is required.
	Auth *AuthConfig `yaml:"auth"`

	// RateLimitPerSecond is the maximum requests per second per IP.
	// Default: 1000. Set to 0 to disable rate limiting.
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`
}

// AnalysisConfig groups analysis defaults.
type AnalysisConfig struct {
	// Mode is the default limit mode, "mean" or "median".
	// Default: "mean".
	Mode string `yaml:"mode"`

	// Outliers tunes the consensus outlier detector.
	Outliers OutlierConfig `yaml:"outliers"`

	// AutoLock proposes a locked baseline on ingest when the series
	// qualifies. Default: false.
	AutoLock bool `yaml:"auto_lock"`
}

// StoreConfig groups persistence settings.
type StoreConfig struct {
	// Backend selects the store implementation, "memory" or "sqlite".
	// Default: "memory".
	Backend string `yaml:"backend"`

	// SQLite tunes the SQLite backend when selected.
	SQLite SQLiteStoreConfig `yaml:"sqlite"`
}

// HTTPConfig groups HTTP server settings.
type HTTPConfig struct {
	// Enabled enables the HTTP API server.
	// Default: false.
	Enabled bool `yaml:"enabled"`

	// Port is the port for the HTTP API server.
	// Default: 8090.
	Port int `yaml:"port"`

	// RemoteWriteEnabled enables the Prometheus remote write endpoint.
	// Default: false.
	RemoteWriteEnabled bool `yaml:"remote_write_enabled"`

	// StreamEnabled enables the WebSocket result stream.
	// Default: false.
	StreamEnabled bool `yaml:"stream_enabled"`
}

// AuthConfig configures HTTP API authentication.
type AuthConfig struct {
	// Enabled enables authentication on HTTP endpoints.
	Enabled bool `yaml:"enabled"`

	// APIKeys is a list of valid API keys. At least one must be provided
	// if Enabled is true.
	APIKeys []string `yaml:"api_keys"`

	// ReadOnlyKeys is a list of API keys that only allow read operations.
	// These keys cannot ingest or delete data.
	ReadOnlyKeys []string `yaml:"read_only_keys"`

	// ExcludePaths are paths that don't require authentication (e.g., /health).
	ExcludePaths []string `yaml:"exclude_paths"`
}

// SnapshotConfig groups snapshot archival settings.
type SnapshotConfig struct {
	// Enabled wires a snapshot manager into the server.
	// Default: false.
	Enabled bool `yaml:"enabled"`

	// Dir is the local directory snapshots are written to.
	// Default: "snapshots".
	Dir string `yaml:"dir"`

	// Compress applies Snappy compression to snapshot payloads.
	// Default: true.
	Compress bool `yaml:"compress"`

	// RetainCount is how many snapshots to keep; older ones are pruned.
	// 0 means keep everything.
	RetainCount int `yaml:"retain_count"`

	// Encryption configures encryption at rest for snapshots.
	// If nil or Enabled is false, snapshots are stored unencrypted.
	Encryption *EncryptionConfig `yaml:"encryption"`

	// S3 uploads snapshots to object storage when configured.
	S3 *S3Config `yaml:"s3"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Analysis: AnalysisConfig{
			Mode:     "mean",
			Outliers: DefaultOutlierConfig(),
		},
		Store: StoreConfig{
			Backend: "memory",
			SQLite:  DefaultSQLiteStoreConfig(),
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Port:    8090,
		},
		Snapshot: SnapshotConfig{
			Dir:      "snapshots",
			Compress: true,
		},
		RateLimitPerSecond: 1000,
	}
}

// normalize fills unset fields with defaults and resolves the mode name.
func (c *Config) normalize() error {
	if c.Analysis.Mode == "" {
		c.Analysis.Mode = "mean"
	}
	if _, err := ParseLimitMode(c.Analysis.Mode); err != nil {
		return err
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Store.Backend != "memory" && c.Store.Backend != "sqlite" {
		return fmt.Errorf("%w: store backend %q", ErrBadInput, c.Store.Backend)
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8090
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "snapshots"
	}
	if c.Auth != nil && c.Auth.Enabled && len(c.Auth.APIKeys) == 0 && len(c.Auth.ReadOnlyKeys) == 0 {
		return fmt.Errorf("%w: auth enabled without API keys", ErrBadInput)
	}
	return nil
}

// Mode returns the parsed default limit mode.
func (c *Config) Mode() LimitMode {
	mode, err := ParseLimitMode(c.Analysis.Mode)
	if err != nil {
		return ModeMean
	}
	return mode
}

// NewStore builds the configured metric store.
func (c *Config) NewStore() (MetricStore, error) {
	if c.Store.Backend == "sqlite" {
		return NewSQLiteStore(c.Store.SQLite)
	}
	return NewMemoryStore(), nil
}

// LoadConfig reads a YAML configuration file layered over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
