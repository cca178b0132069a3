package verify

import (
	"context"
	"sync/atomic"
)

// worker is one draining goroutine. It pops items until the queue is closed
// and empty, or until a hard dump failure retires it. Retirement is
// deliberate fail-fast: a hard failure usually means something structural
// (bad credentials, broken binary path), so the worker stops rather than
// plowing through more tables that will fail the same way.
type worker struct {
	id      int
	retired atomic.Bool
}

// run is the worker loop. errs is the pool-wide failure counter.
func (w *worker) run(ctx context.Context, queue *Queue, exec *Executor, errs *atomic.Int64) {
	for {
		item, ok := queue.Pop()
		if !ok {
			return // queue closed and drained; clean exit
		}
		switch exec.Execute(ctx, item) {
		case OutcomeSuccess, OutcomeTableGone:
			// keep going
		case OutcomeFailure:
			errs.Add(1)
			w.retired.Store(true)
			return
		}
	}
}

// alive reports whether the worker has not been retired by a failure.
// A worker that exited cleanly on queue close still counts as alive.
func (w *worker) alive() bool {
	return !w.retired.Load()
}
