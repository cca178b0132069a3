package config_test

import (
	"os"
	"testing"

	"github.com/kmoppel/pgverify/internal/config"
)

// unsetenv removes key for the duration of the test. t.Setenv alone would
// leave the variable present-but-empty, which env.Parse treats as a value.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	os.Unsetenv(key)
}

func TestLoad_Defaults(t *testing.T) {
	unsetenv(t, "PGHOST")
	unsetenv(t, "PGPORT")
	unsetenv(t, "PGUSER")
	unsetenv(t, "PGVERIFY_JOBS")
	unsetenv(t, "PGVERIFY_QUIET")
	t.Setenv("USER", "alice")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "/var/run/postgresql/" {
		t.Errorf("Host = %q, want unix socket dir default", cfg.Host)
	}
	if cfg.Port != 5432 {
		t.Errorf("Port = %d, want 5432", cfg.Port)
	}
	if cfg.User != "alice" {
		t.Errorf("User = %q, want fallback to $USER", cfg.User)
	}
	if cfg.Jobs < 1 {
		t.Errorf("Jobs = %d, want >= 1", cfg.Jobs)
	}
	if cfg.Quiet {
		t.Error("Quiet = true, want false by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PGHOST", "db.example.com")
	t.Setenv("PGPORT", "6432")
	t.Setenv("PGUSER", "replicator")
	t.Setenv("PGVERIFY_BINDIR", "/usr/lib/postgresql/16/bin")
	t.Setenv("PGVERIFY_JOBS", "8")
	t.Setenv("PGVERIFY_DBNAME", "appdb")
	t.Setenv("PGVERIFY_QUIET", "true")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host != "db.example.com" || cfg.Port != 6432 || cfg.User != "replicator" {
		t.Errorf("connection = %s:%d as %s, env not honored", cfg.Host, cfg.Port, cfg.User)
	}
	if cfg.BinDir != "/usr/lib/postgresql/16/bin" {
		t.Errorf("BinDir = %q", cfg.BinDir)
	}
	if cfg.Jobs != 8 {
		t.Errorf("Jobs = %d, want 8", cfg.Jobs)
	}
	if cfg.Database != "appdb" {
		t.Errorf("Database = %q, want appdb", cfg.Database)
	}
	if !cfg.Quiet {
		t.Error("Quiet = false, want true")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate_RequiresBinDir(t *testing.T) {
	unsetenv(t, "PGVERIFY_BINDIR")
	t.Setenv("PGUSER", "postgres")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate passed without a bindir")
	}
}
