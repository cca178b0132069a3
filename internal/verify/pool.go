// Package verify implements the parallel table verification core: an
// unbounded task queue fed by catalog discovery, a fixed pool of worker
// goroutines that drain it through an external dump collaborator, and a
// coordinator that supervises the drain and produces the final verdict.
package verify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Pool owns a fixed set of workers draining one queue. Capacity only
// shrinks: a worker retired by a dump failure is never replaced.
type Pool struct {
	runID   string
	workers []*worker
	errs    atomic.Int64
	wg      sync.WaitGroup
	log     *slog.Logger
}

// NewPool creates an empty pool. A random runID distinguishes this run's
// log lines. A nil log uses slog.Default.
func NewPool(log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{
		runID: uuid.New().String(),
		log:   log,
	}
}

// Launch spawns n workers, each immediately entering its drain loop against
// queue and exec. Call at most once.
func (p *Pool) Launch(ctx context.Context, n int, queue *Queue, exec *Executor) {
	p.log.Info("launching workers", "count", n, "run_id", p.runID)
	for i := 0; i < n; i++ {
		w := &worker{id: i}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.log.Info("starting worker", "worker", w.id)
			w.run(ctx, queue, exec, &p.errs)
		}()
	}
}

// AllAlive reports whether no worker has been retired by a failure.
func (p *Pool) AllAlive() bool {
	for _, w := range p.workers {
		if !w.alive() {
			return false
		}
	}
	return true
}

// Errors returns the aggregate count of hard dump failures.
func (p *Pool) Errors() int64 {
	return p.errs.Load()
}

// Wait blocks until every worker goroutine has exited. The queue must be
// closed first or parked workers will never return.
func (p *Pool) Wait() {
	p.wg.Wait()
}
