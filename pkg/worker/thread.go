package worker

import (
	"context"
	"sync"

	"github.com/enku/gentoo-build-publisher/pkg/worker/status"
)

// NewThread creates the goroutine backend: each task runs on its own
// goroutine. When wait is set, Enqueue blocks until the task finishes
// instead of returning a pending handle.
func NewThread(runner *Runner, wait bool) Worker {
	return &thread{runner: runner, wait: wait}
}

type thread struct {
	runner *Runner
	wait   bool

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (w *thread) Name() string { return BackendThread }

func (w *thread) Enqueue(ctx context.Context, task Task) (*Handle, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, status.ErrWorkerClosed
	}
	w.wg.Add(1)
	w.mu.Unlock()

	handle := newHandle(task)
	go func() {
		defer w.wg.Done()
		handle.complete(w.runner.Run(ctx, task))
	}()

	if w.wait {
		if err := handle.Wait(ctx); err != nil {
			return handle, err
		}
	}
	return handle, nil
}

// Close waits for in-flight tasks to finish
func (w *thread) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.wg.Wait()
	return nil
}
