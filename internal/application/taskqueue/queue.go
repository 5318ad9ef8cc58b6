// Package taskqueue implements C10, the Background Task Queue + Worker:
// a bounded FIFO of closures drained by a single long-lived goroutine,
// used by C5 to run program executions and C8 to kick off workflow runs
// off the request path.
package taskqueue

import (
	"context"
	"sync"

	"github.com/smilemakc/mbflow/internal/infrastructure/logger"
)

// Task is one unit of background work; ctx carries cancellation from the
// host's shutdown signal.
type Task func(ctx context.Context)

// Queue is a bounded FIFO of Tasks drained by one worker goroutine.
// Enqueue blocks once the buffer is full — callers are expected to
// surface that backpressure to their HTTP layer (e.g. as a 503) rather
// than this package dropping work silently.
type Queue struct {
	tasks  chan Task
	log    *logger.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a Queue with the given buffer size and immediately starts
// its single worker goroutine bound to ctx; cancelling ctx (or calling
// Stop) ends the worker once its current task returns. Tasks still
// buffered, or enqueued afterwards, are not run.
func New(ctx context.Context, bufferSize int, log *logger.Logger) *Queue {
	workerCtx, cancel := context.WithCancel(ctx)
	q := &Queue{tasks: make(chan Task, bufferSize), log: log, cancel: cancel}
	q.wg.Add(1)
	go q.run(workerCtx)
	return q
}

func (q *Queue) run(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-q.tasks:
			if !ok {
				return
			}
			q.execute(ctx, task)
		}
	}
}

func (q *Queue) execute(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("background task panicked", "recover", r)
		}
	}()
	task(ctx)
}

// Enqueue blocks until the task is accepted or ctx is done, whichever
// comes first.
func (q *Queue) Enqueue(ctx context.Context, task Task) error {
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryEnqueue enqueues task without blocking. It returns false if the
// queue is full, letting the caller surface backpressure immediately.
func (q *Queue) TryEnqueue(task Task) bool {
	select {
	case q.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop cancels the worker's context and waits for the current task (if
// any) to return.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
}

// Len reports how many tasks are currently buffered, for metrics/health.
func (q *Queue) Len() int {
	return len(q.tasks)
}
