package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/fibertrace/internal/domain/regression"
)

// Environment variables read by Load.
const (
	EnvPrefix     = "FIBERTRACE_"
	EnvConfigFile = "FIBERTRACE_CONFIG"
)

var (
	// ErrLoadConfig wraps failures reading the file or the environment.
	ErrLoadConfig = errors.New("load config failed")
	// ErrInvalidConfig marks a loaded value that fails Validate.
	ErrInvalidConfig = errors.New("invalid config")
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if FIBERTRACE_CONFIG is set
//  3. env (prefix FIBERTRACE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", ErrLoadConfig, path, err)
		}
	}

	// FIBERTRACE_DATABASE_URL -> database_url; underscores are kept to match
	// the flat koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		if s == "CONFIG" {
			return ""
		}
		return strings.ToLower(s)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DominanceThreshold <= 0 || c.DominanceThreshold > 100:
		return fmt.Errorf("%w: dominance_threshold must be in (0, 100]", ErrInvalidConfig)
	case c.SignalCeiling < 0:
		return fmt.Errorf("%w: signal_ceiling must not be negative", ErrInvalidConfig)
	case c.MinTrainingSamples < 1:
		return fmt.Errorf("%w: min_training_samples must be at least 1", ErrInvalidConfig)
	case c.BlendTolerance < 0:
		return fmt.Errorf("%w: blend_tolerance must not be negative", ErrInvalidConfig)
	case c.DatasetCacheTTLSeconds < 0:
		return fmt.Errorf("%w: dataset_cache_ttl_seconds must not be negative", ErrInvalidConfig)
	case c.DBMaxOpenConns < 1:
		return fmt.Errorf("%w: db_max_open_conns must be at least 1", ErrInvalidConfig)
	case c.DBConnMaxLifetimeSeconds < 0:
		return fmt.Errorf("%w: db_conn_max_lifetime_seconds must not be negative", ErrInvalidConfig)
	case !tableName.MatchString(c.SamplesTable):
		return fmt.Errorf("%w: samples_table %q is not a valid identifier", ErrInvalidConfig, c.SamplesTable)
	case strings.TrimSpace(c.IdentityHeader) == "":
		return fmt.Errorf("%w: identity_header must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.TraceExporter) {
	case "", "none", "stdout":
	default:
		return fmt.Errorf("%w: trace_exporter %q", ErrInvalidConfig, c.TraceExporter)
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	if _, err := regression.ParseKind(c.ModelKind); err != nil {
		return fmt.Errorf("%w: model_kind: %w", ErrInvalidConfig, err)
	}
	return nil
}
