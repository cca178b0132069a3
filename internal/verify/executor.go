// ABOUTME: Runs one table dump via the external pg_dump collaborator and
// ABOUTME: classifies the result as success, benign table-gone, or failure.
package verify

import (
	"context"
	"log/slog"
	"strings"
)

// tableGoneMarker is the pg_dump stderr text emitted when the requested
// table no longer exists. A table dropped between discovery and execution
// is expected on a live cluster and is not an integrity failure.
const tableGoneMarker = "No matching tables were found"

// Outcome classifies one table dump attempt.
type Outcome int

const (
	// OutcomeSuccess — the table was read end-to-end.
	OutcomeSuccess Outcome = iota
	// OutcomeTableGone — the table vanished after discovery; benign.
	OutcomeTableGone
	// OutcomeFailure — the dump failed for any other reason.
	OutcomeFailure
)

// Dumper is the external collaborator that dumps one table to a discard
// sink. It returns the process exit code and the captured diagnostic output
// (a spawn failure is reported as a non-zero code with the error text).
type Dumper interface {
	DumpTable(ctx context.Context, database, table string) (exitCode int, output string)
}

// Executor invokes the Dumper for one Item and classifies the result.
type Executor struct {
	dumper Dumper
	log    *slog.Logger
}

// NewExecutor creates an Executor over dumper. A nil log uses slog.Default.
func NewExecutor(dumper Dumper, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{dumper: dumper, log: log}
}

// Execute dumps item's table and classifies the outcome. Benign and failure
// outcomes are logged here with their diagnostics; the caller only decides
// whether to keep its worker alive.
func (e *Executor) Execute(ctx context.Context, item Item) Outcome {
	code, output := e.dumper.DumpTable(ctx, item.Database, item.Table)
	if code == 0 {
		return OutcomeSuccess
	}
	if strings.Contains(output, tableGoneMarker) {
		e.log.Warn("table could not be found",
			"table", item.Table, "database", item.Database)
		return OutcomeTableGone
	}
	e.log.Error("failed to dump contents of table",
		"table", item.Table, "database", item.Database,
		"exit_code", code, "output", output)
	return OutcomeFailure
}
