// Package config parses application configuration from environment variables
// using caarlos0/env/v11. Postgres-standard variable names (PGHOST, PGPORT,
// PGUSER) are honored; command-line flags override whatever was parsed.
//
// Call [Load] once at startup, let the CLI layer apply flag overrides, then
// [Config.Validate] before use.
package config

import (
	"errors"
	"os"
	"runtime"

	"github.com/caarlos0/env/v11"
)

// Config holds all settings for one verification run. The password is never
// configured here — the Postgres binaries and driver read ~/.pgpass.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────────────────
	Host string `env:"PGHOST" envDefault:"/var/run/postgresql/"`
	Port int    `env:"PGPORT" envDefault:"5432"`
	User string `env:"PGUSER"`

	// ── Verification ─────────────────────────────────────────────────────────────
	// BinDir is the directory holding pg_dump and pg_dumpall. Required.
	BinDir string `env:"PGVERIFY_BINDIR"`
	// Jobs is the worker count; 0 means max(NumCPU/4, 1).
	Jobs int `env:"PGVERIFY_JOBS"`
	// Database restricts the run to a single database when non-empty.
	Database string `env:"PGVERIFY_DBNAME"`

	// ── Logging ──────────────────────────────────────────────────────────────────
	// Quiet raises the log level to error, leaving only failures visible.
	Quiet     bool   `env:"PGVERIFY_QUIET" envDefault:"false"`
	LogFormat string `env:"LOG_FORMAT"     envDefault:"text"`
}

// Load parses Config from environment variables and fills computed defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if cfg.User == "" {
		cfg.User = os.Getenv("USER")
	}
	if cfg.Jobs == 0 {
		cfg.Jobs = DefaultJobs()
	}
	return cfg, nil
}

// DefaultJobs returns the default worker count: a quarter of the CPUs, at
// least one. Dumps are I/O heavy, so saturating every core just contends on
// the replica's disks.
func DefaultJobs() int {
	if n := runtime.NumCPU() / 4; n > 1 {
		return n
	}
	return 1
}

// Validate checks settings that have no usable default. Called after flag
// overrides have been applied.
func (c *Config) Validate() error {
	if c.BinDir == "" {
		return errors.New("bindir is required (--bindir or PGVERIFY_BINDIR)")
	}
	if c.User == "" {
		return errors.New("username is required (--username, PGUSER or USER)")
	}
	if c.Jobs < 1 {
		return errors.New("jobs must be at least 1")
	}
	return nil
}
