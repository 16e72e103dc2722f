// Package seed generates synthetic reference samples and drives a running
// fibertrace instance over HTTP.
package seed

import (
	"runtime"
	"time"
)

// Defaults for Config.
const (
	DefaultBaseURL  = "http://localhost:9080"
	DefaultCount    = 200
	DefaultTimeout  = 30 * time.Second
	DefaultIdentity = "fiberctl"
)

// Config holds the settings of a seeding run.
type Config struct {
	BaseURL        string        // Base URL of the service
	Identity       string        // Value sent in the identity header
	IdentityHeader string        // Header name; must match the service's identity_header
	Count          int           // Number of samples to generate
	Workers        int           // Number of concurrent submitters
	Timeout        time.Duration // HTTP request timeout
	Seed           uint64        // Generator seed; 0 picks one from the clock
	Noise          float64       // Standard deviation of the marker noise
}

// DefaultConfig returns a Config with defaults filled in.
func DefaultConfig() Config {
	return Config{
		BaseURL:        DefaultBaseURL,
		Identity:       DefaultIdentity,
		IdentityHeader: DefaultIdentityHeader,
		Count:          DefaultCount,
		Workers:        runtime.NumCPU() * 2,
		Timeout:        DefaultTimeout,
		Noise:          0.5,
	}
}

// Stats summarises a seeding run.
type Stats struct {
	Generated int           `json:"generated"`
	Submitted int           `json:"submitted"`
	Created   int           `json:"created"`
	Duplicate int           `json:"duplicate"`
	Failed    int           `json:"failed"`
	Models    int           `json:"models"`
	Duration  time.Duration `json:"duration"`
}
