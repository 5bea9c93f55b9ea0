package filetypes

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// SerialExecutor runs submitted tasks one at a time in submission order on
// at most one goroutine. Its queue is unbounded so a task may resubmit
// without blocking.
type SerialExecutor struct {
	name string

	mu      sync.Mutex
	tasks   []func()
	running bool
	closed  bool
	waiters []chan struct{}

	wg conc.WaitGroup
}

func NewSerialExecutor(name string) *SerialExecutor {
	return &SerialExecutor{name: name}
}

// Submit queues task and reports whether it was accepted.
func (e *SerialExecutor) Submit(task func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.tasks = append(e.tasks, task)
	if !e.running {
		e.running = true
		e.wg.Go(e.run)
	}
	return true
}

func (e *SerialExecutor) run() {
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.running = false
			for _, w := range e.waiters {
				close(w)
			}
			e.waiters = nil
			e.mu.Unlock()
			return
		}
		task := e.tasks[0]
		e.tasks[0] = nil
		e.tasks = e.tasks[1:]
		e.mu.Unlock()

		var pc panics.Catcher
		pc.Try(task)
		if r := pc.Recovered(); r != nil {
			slog.Error("Executor task panicked", "executor", e.name, "error", r.AsError())
		}
	}
}

// Pending returns the number of queued tasks.
func (e *SerialExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// WaitIdle blocks until no task is queued or running.
func (e *SerialExecutor) WaitIdle(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects new tasks, drops queued ones and waits for the running task.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	e.closed = true
	dropped := len(e.tasks)
	e.tasks = nil
	e.mu.Unlock()

	if dropped > 0 {
		slog.Debug("Dropped queued executor tasks", "executor", e.name, "count", dropped)
	}
	e.wg.Wait()
}
