// Package config loads orchestrator configuration from environment
// variables (with an optional .env overlay) and an optional YAML file,
// the same combination the teacher lineage's config package uses.
package config

import (
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GraphConfig controls default execution-graph scheduling behavior.
type GraphConfig struct {
	DefaultConcurrency int           `yaml:"default_concurrency" env:"GRAPH_DEFAULT_CONCURRENCY"`
	DefaultTimeout     time.Duration `yaml:"default_timeout" env:"GRAPH_DEFAULT_TIMEOUT"`
	DefaultMaxRetries  int           `yaml:"default_max_retries" env:"GRAPH_DEFAULT_MAX_RETRIES"`
	DefaultBackoff     time.Duration `yaml:"default_backoff" env:"GRAPH_DEFAULT_BACKOFF"`
	HistorySize        int           `yaml:"history_size" env:"GRAPH_HISTORY_SIZE"`
}

// BusConfig controls message-bus queueing behavior.
type BusConfig struct {
	MaxQueueSize    int           `yaml:"max_queue_size" env:"BUS_MAX_QUEUE_SIZE"`
	DefaultTTL      time.Duration `yaml:"default_ttl" env:"BUS_DEFAULT_TTL"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"BUS_CLEANUP_INTERVAL"`
	DefaultMaxRetry int           `yaml:"default_max_retry" env:"BUS_DEFAULT_MAX_RETRY"`
	PerAgentRPS     float64       `yaml:"per_agent_rps" env:"BUS_PER_AGENT_RPS"`
	PerAgentBurst   int           `yaml:"per_agent_burst" env:"BUS_PER_AGENT_BURST"`
}

// ContextConfig controls the shared context store.
type ContextConfig struct {
	MaxEntries        int           `yaml:"max_entries" env:"CONTEXT_MAX_ENTRIES"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" env:"CONTEXT_CLEANUP_INTERVAL"`
	MaxScanIterations int           `yaml:"max_scan_iterations" env:"CONTEXT_MAX_SCAN_ITERATIONS"`
	VersioningEnabled bool          `yaml:"versioning_enabled" env:"CONTEXT_VERSIONING_ENABLED"`
}

// SLOConfig controls the SLO monitor's cadence.
type SLOConfig struct {
	CheckInterval       time.Duration `yaml:"check_interval" env:"SLO_CHECK_INTERVAL"`
	RegressionLookback  int           `yaml:"regression_lookback" env:"SLO_REGRESSION_LOOKBACK"`
	RegressionThreshold float64       `yaml:"regression_threshold" env:"SLO_REGRESSION_THRESHOLD"`
	HistorySize         int           `yaml:"history_size" env:"SLO_HISTORY_SIZE"`
}

// LoggingConfig controls log verbosity and format.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Config is the root orchestrator configuration.
type Config struct {
	Graph   GraphConfig   `yaml:"graph"`
	Bus     BusConfig     `yaml:"bus"`
	Context ContextConfig `yaml:"context"`
	SLO     SLOConfig     `yaml:"slo"`
	Logging LoggingConfig `yaml:"logging"`
}

// Default returns a Config with the defaults spec.md names explicitly
// (concurrency=10, bus queue=10000, bus TTL=5m, SLO check=30s, etc).
func Default() Config {
	return Config{
		Graph: GraphConfig{
			DefaultConcurrency: 10,
			DefaultTimeout:     0,
			DefaultMaxRetries:  0,
			DefaultBackoff:     0,
			HistorySize:        100,
		},
		Bus: BusConfig{
			MaxQueueSize:    10000,
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: time.Minute,
			DefaultMaxRetry: 3,
		},
		Context: ContextConfig{
			MaxEntries:        100000,
			CleanupInterval:   time.Minute,
			MaxScanIterations: 10000,
			VersioningEnabled: true,
		},
		SLO: SLOConfig{
			CheckInterval:       30 * time.Second,
			RegressionLookback:  50,
			RegressionThreshold: 0.2,
			HistorySize:         1000,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config starting from defaults, optionally overlaying a YAML
// file at path (if non-empty and present), loading a local .env, then
// applying environment variable overrides via envdecode.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}

	if err := envdecode.Decode(&cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return cfg, nil
	}

	return cfg, nil
}
