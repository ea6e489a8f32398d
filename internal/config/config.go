// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Storage    StorageConfig    `mapstructure:"storage"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Ops        OpsConfig        `mapstructure:"ops"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// HTTPConfig configures the fetcher's timeouts, retries, and the
// download size ceiling.
type HTTPConfig struct {
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int64  `mapstructure:"max_body_bytes"`
	UserAgent        string `mapstructure:"user_agent"`
}

// StorageConfig selects the blob store backend.
type StorageConfig struct {
	// Backend is gcs, local, or memory.
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
}

// DBConfig controls access to the registry database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// PubSubConfig holds metadata for record publication.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ExtractionConfig points at the external content-extraction engine.
type ExtractionConfig struct {
	Endpoint       string `mapstructure:"endpoint"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// OpsConfig controls the metrics/health HTTP listener.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LEXHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("http.max_body_bytes", int64(200<<20))
	v.SetDefault("http.user_agent", "lexharvest/1.0 (+https://github.com/civicarchive/lexharvest)")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "blobs")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("extraction.timeout_seconds", 300)
	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 9090)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("http.max_body_bytes must be > 0")
	}
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when backend is gcs")
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set when backend is local")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be gcs, local, or memory")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	return nil
}

// HTTPTimeout converts the fetcher timeout config into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// ExtractionTimeout converts the engine timeout config into a
// duration.
func (c Config) ExtractionTimeout() time.Duration {
	return time.Duration(c.Extraction.TimeoutSeconds) * time.Second
}

// Backoff returns the retry backoff bounds.
func (c Config) Backoff() (initial, max time.Duration) {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond,
		time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
