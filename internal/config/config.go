// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - Load layers a YAML file and environment variables over the defaults.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DatabaseURL is a Postgres DSN. Empty selects the in-memory store.
	DatabaseURL    string `koanf:"database_url"`
	DBMaxOpenConns int    `koanf:"db_max_open_conns"`
	SamplesTable   string `koanf:"samples_table"`

	// DBConnMaxLifetimeSeconds recycles pooled connections; zero uses one hour.
	DBConnMaxLifetimeSeconds int `koanf:"db_conn_max_lifetime_seconds"`

	// DatasetCacheTTLSeconds bounds how long a loaded dataset is reused.
	// Zero disables the cache.
	DatasetCacheTTLSeconds int `koanf:"dataset_cache_ttl_seconds"`

	// DedupeSize sets how many submission IDs are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	// Estimator settings.
	DominanceThreshold float64 `koanf:"dominance_threshold"`
	SignalCeiling      float64 `koanf:"signal_ceiling"`
	MinTrainingSamples int     `koanf:"min_training_samples"`
	BlendTolerance     float64 `koanf:"blend_tolerance"`
	RangeCheck         bool    `koanf:"range_check"`
	ModelKind          string  `koanf:"model_kind"`

	// RequireIdentity rejects sample writes without a submitter identity.
	RequireIdentity bool `koanf:"require_identity"`
	// IdentityHeader names the request header set by the identity proxy.
	IdentityHeader string `koanf:"identity_header"`

	// TraceExporter selects the span exporter: none or stdout.
	TraceExporter string `koanf:"trace_exporter"`
}

// New creates a Config populated with defaults. The context is unused and
// kept so every constructor in the package takes one first.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		DBMaxOpenConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		SamplesTable:             "reference_samples",
		DatasetCacheTTLSeconds:   300,
		DedupeSize:               10_000,
		DominanceThreshold:       50,
		MinTrainingSamples:       3,
		BlendTolerance:           0.5,
		RangeCheck:               true,
		ModelKind:                "linear",
		RequireIdentity:          true,
		IdentityHeader:           "X-Submitted-By",
		TraceExporter:            "none",
	}
}

// DatasetCacheTTL returns the dataset cache TTL as a duration.
func (c *Config) DatasetCacheTTL() time.Duration {
	return time.Duration(c.DatasetCacheTTLSeconds) * time.Second
}
