package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/david/launchpad/internal/ingest"
)

type Config struct {
	OutputFile  string // snapshot path (ex: "opportunities.json")
	SourcesFile string // optional sources.yaml override, empty = embedded registry

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	Workers        int           // concurrent adapters (default: 4)
	AdapterTimeout time.Duration // per-adapter deadline (default: 2m)
	MergeOrder     ingest.MergeOrder

	DatabaseURL string // optional Postgres mirror, empty = disabled
	RunsLimit   int    // rows shown by "launchpad runs" (default: 10)
}

// Load reads the configuration from the environment. Invalid values are
// errors; unset values take their defaults.
func Load() (*Config, error) {
	cfg := &Config{
		OutputFile:  getenv("LAUNCHPAD_OUTPUT", "opportunities.json"),
		SourcesFile: getenv("LAUNCHPAD_SOURCES", ""),

		LogLevel: getenv("LAUNCHPAD_LOG_LEVEL", "info"),

		DatabaseURL: getenv("DATABASE_URL", ""),
	}

	var err error
	if cfg.PrettyLog, err = envBool("LAUNCHPAD_PRETTY_LOG", false); err != nil {
		return nil, err
	}
	if cfg.RunsLimit, err = envInt("LAUNCHPAD_RUNS_LIMIT", 10); err != nil {
		return nil, err
	}
	if cfg.Workers, err = envInt("LAUNCHPAD_WORKERS", ingest.DefaultWorkers); err != nil {
		return nil, err
	}
	if cfg.AdapterTimeout, err = envDuration("LAUNCHPAD_ADAPTER_TIMEOUT", ingest.DefaultAdapterTimeout); err != nil {
		return nil, err
	}
	if cfg.MergeOrder, err = ingest.ParseMergeOrder(os.Getenv("LAUNCHPAD_MERGE_ORDER")); err != nil {
		return nil, fmt.Errorf("LAUNCHPAD_MERGE_ORDER: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that flags may have overridden after Load.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.OutputFile) == "" {
		return fmt.Errorf("output file is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.AdapterTimeout <= 0 {
		return fmt.Errorf("adapter timeout must be positive, got %s", c.AdapterTimeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.DatabaseURL != "" {
		c.DatabaseURL = "***REDACTED***"
	}
	return c
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %s", key, v)
	}
	return i, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value for %s: %s", key, v)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value for %s: %s", key, v)
	}
	return b, nil
}
