// ABOUTME: Wraps the external pg_dump/pg_dumpall binaries: locates them under
// ABOUTME: a configured bindir and runs them with stdout discarded.
package pgbin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Tools invokes the Postgres client binaries used for verification. All
// invocations use explicit argument slices — never a shell — and send the
// dump itself to io.Discard; only stderr is captured for diagnostics.
type Tools struct {
	pgDump    string
	pgDumpall string
	host      string
	port      int
	user      string
	log       *slog.Logger
}

// New locates pg_dump and pg_dumpall under binDir and returns a Tools bound
// to the given connection parameters. A missing binary is a setup error that
// should abort the run. Passwords are expected in ~/.pgpass.
func New(binDir, host string, port int, user string, log *slog.Logger) (*Tools, error) {
	if log == nil {
		log = slog.Default()
	}
	t := &Tools{
		pgDump:    filepath.Join(binDir, "pg_dump"),
		pgDumpall: filepath.Join(binDir, "pg_dumpall"),
		host:      host,
		port:      port,
		user:      user,
		log:       log,
	}
	for _, bin := range []string{t.pgDumpall, t.pgDump} {
		if _, err := os.Stat(bin); err != nil {
			return nil, fmt.Errorf("invalid bindir, could not find %s: %w", filepath.Base(bin), err)
		}
	}
	return t, nil
}

// connArgs are the flags shared by every invocation.
func (t *Tools) connArgs() []string {
	return []string{"-h", t.host, "-p", strconv.Itoa(t.port), "-U", t.user}
}

// VerifyGlobals dumps cluster-wide objects (roles, tablespaces) to the
// discard sink. A non-zero exit is returned as an error carrying stderr.
func (t *Tools) VerifyGlobals(ctx context.Context) error {
	t.log.Info("dumping globals with pg_dumpall")
	args := append([]string{"-g"}, t.connArgs()...)
	code, output := t.run(ctx, t.pgDumpall, args)
	if code != 0 {
		return fmt.Errorf("pg_dumpall -g exited with %d: %s", code, output)
	}
	return nil
}

// VerifySchema dumps db's schema (no table data) to the discard sink.
func (t *Tools) VerifySchema(ctx context.Context, db string) error {
	t.log.Info("dumping schema with pg_dump --schema-only", "database", db)
	args := append(t.connArgs(), "--schema-only", db)
	code, output := t.run(ctx, t.pgDump, args)
	if code != 0 {
		return fmt.Errorf("pg_dump --schema-only %s exited with %d: %s", db, code, output)
	}
	return nil
}

// DumpTable dumps one table of db in full to the discard sink. It returns
// the exit code and captured stderr; classification is the caller's job.
// A spawn failure (binary unrunnable) is reported as exit -1 with the error
// text as output.
func (t *Tools) DumpTable(ctx context.Context, db, table string) (int, string) {
	args := append(t.connArgs(), "-t", table, db)
	return t.run(ctx, t.pgDump, args)
}

// run executes one binary with stdout discarded and stderr captured, logging
// the argv first so failed runs can be reproduced by hand.
func (t *Tools) run(ctx context.Context, bin string, args []string) (int, string) {
	t.log.Info("executing", "bin", bin, "args", args)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		output := bytes.TrimSpace(stderr.Bytes())
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), string(output)
		}
		// The process never started (bad path, permissions).
		if len(output) == 0 {
			return -1, err.Error()
		}
		return -1, string(output) + ": " + err.Error()
	}
	return 0, ""
}
