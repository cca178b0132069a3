// ABOUTME: Coordinator: discovers databases/tables, feeds the queue, supervises
// ABOUTME: the worker pool during drain, and turns the error counter into a verdict.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// defaultPollInterval is how often the drain loop re-checks queue size
	// and worker liveness.
	defaultPollInterval = 5 * time.Second

	// defaultProgressInterval is how often the drain loop logs the number
	// of tables still queued.
	defaultProgressInterval = 60 * time.Second
)

// ErrVerificationFailed is returned by Run when the queue drained but at
// least one table dump failed. The per-table diagnostics were already logged;
// this only carries the verdict to the exit code.
var ErrVerificationFailed = errors.New("errors encountered during verification")

// Source enumerates what to verify. Implemented by catalog.Catalog.
type Source interface {
	// ListDatabases returns connectable, non-template databases.
	ListDatabases(ctx context.Context) ([]string, error)
	// ListTables returns the ordinary persistent tables of db, qualified and
	// quoted, largest first so long dumps start early.
	ListTables(ctx context.Context, db string) ([]string, error)
}

// ClusterVerifier runs the fatal, non-parallel verifications. Implemented by
// pgbin.Tools.
type ClusterVerifier interface {
	// VerifyGlobals dumps cluster-wide objects to a discard sink.
	VerifyGlobals(ctx context.Context) error
	// VerifySchema dumps db's schema (no data) to a discard sink.
	VerifySchema(ctx context.Context, db string) error
}

// Coordinator runs one verification pass over the cluster.
type Coordinator struct {
	Source   Source
	Verifier ClusterVerifier
	Dumper   Dumper

	// Jobs is the worker count. Must be >= 1.
	Jobs int
	// Database, when non-empty, restricts the run to that single database
	// and skips globals verification.
	Database string

	// PollInterval and ProgressInterval override the drain loop cadence.
	// Zero values use the defaults. Shrunk by tests.
	PollInterval     time.Duration
	ProgressInterval time.Duration

	Log *slog.Logger
}

// Run performs the whole verification: globals, per-database schema and
// table discovery, parallel drain, verdict. Any returned error is fatal and
// maps to a non-zero process exit.
func (c *Coordinator) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	dbs, err := c.Source.ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("list databases: %w", err)
	}
	log.Info("databases found", "count", len(dbs), "databases", dbs)

	if c.Database != "" {
		found := false
		for _, db := range dbs {
			if db == c.Database {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("database not found: %s", c.Database)
		}
		dbs = []string{c.Database}
	} else {
		// Globals are relevant to every database, so a corrupt globals dump
		// invalidates the whole run.
		if err := c.Verifier.VerifyGlobals(ctx); err != nil {
			return fmt.Errorf("verify globals: %w", err)
		}
	}
	if len(dbs) == 0 {
		return errors.New("no databases found to verify")
	}

	queue := NewQueue()
	defer queue.Close()

	// Workers start before per-database discovery so the first databases
	// drain while later ones are still being enumerated.
	pool := NewPool(log)
	pool.Launch(ctx, c.Jobs, queue, NewExecutor(c.Dumper, log))

	total := 0
	for _, db := range dbs {
		if err := c.Verifier.VerifySchema(ctx, db); err != nil {
			return fmt.Errorf("verify schema for %s: %w", db, err)
		}
		log.Info("processing database", "database", db)
		tables, err := c.Source.ListTables(ctx, db)
		if err != nil {
			return fmt.Errorf("list tables for %s: %w", db, err)
		}
		if len(tables) == 0 {
			log.Info("no tables found", "database", db)
			continue
		}
		for _, tbl := range tables {
			queue.Push(Item{Database: db, Table: tbl})
		}
		log.Info("added tables to the queue", "database", db, "count", len(tables))
		total += len(tables)
	}

	if total == 0 {
		return errors.New("no tables found to be dumped")
	}
	log.Info("waiting for tables to be dumped", "count", total)

	if err := c.drain(ctx, queue, pool, log); err != nil {
		return err
	}

	// Closing the queue releases parked workers; waiting for in-flight dumps
	// ensures the counter read below sees every outcome.
	queue.Close()
	pool.Wait()

	if n := pool.Errors(); n > 0 {
		log.Info("errors encountered", "count", n)
		return ErrVerificationFailed
	}
	log.Info("done, no errors encountered")
	return nil
}

// drain polls until the queue is empty, aborting if any worker has been
// retired — a dead worker means the remaining work may never complete.
func (c *Coordinator) drain(ctx context.Context, queue *Queue, pool *Pool, log *slog.Logger) error {
	poll := c.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	progress := c.ProgressInterval
	if progress <= 0 {
		progress = defaultProgressInterval
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var elapsed time.Duration
	for queue.Len() > 0 {
		if !pool.AllAlive() {
			return errors.New("not all workers are alive, aborting")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		elapsed += poll
		if elapsed >= progress {
			log.Info("tables still in the queue", "count", queue.Len())
			elapsed = 0
		}
	}
	return nil
}
