package worker

import "context"

// NewImmediate creates the inline backend: Enqueue runs the task to
// completion on the calling goroutine. Suited to one-shot CLI
// invocations and tests.
func NewImmediate(runner *Runner) Worker {
	return &immediate{runner: runner}
}

type immediate struct {
	runner *Runner
}

func (w *immediate) Name() string { return BackendImmediate }

func (w *immediate) Enqueue(ctx context.Context, task Task) (*Handle, error) {
	handle := newHandle(task)
	handle.complete(w.runner.Run(ctx, task))
	return handle, nil
}

func (w *immediate) Close() error { return nil }
