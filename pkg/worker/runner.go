package worker

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/enku/gentoo-build-publisher/pkg/worker/status"
)

const defaultMaxAttempts = 5

// Runner executes one task with the orchestrator's retry policy. All
// backends run tasks through a Runner, so policy does not depend on
// which backend is configured.
type Runner struct {
	handler     Handler
	maxAttempts int
	onFailure   FailureFunc
	l           *zap.Logger
	minDelay    time.Duration
	maxDelay    time.Duration
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// MaxAttempts caps task attempts, first try included
func MaxAttempts(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// OnFailure registers the sink for permanent task failures
func OnFailure(fn FailureFunc) RunnerOption {
	return func(r *Runner) {
		if fn != nil {
			r.onFailure = fn
		}
	}
}

// RunnerLogger sets a logger
func RunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.l = l
		}
	}
}

// RetryDelays bounds the backoff between attempts
func RetryDelays(min, max time.Duration) RunnerOption {
	return func(r *Runner) {
		if min > 0 && max >= min {
			r.minDelay = min
			r.maxDelay = max
		}
	}
}

// NewRunner creates a Runner over the given handler
func NewRunner(handler Handler, opts ...RunnerOption) *Runner {
	r := &Runner{
		handler:     handler,
		maxAttempts: defaultMaxAttempts,
		onFailure:   func(Task, error) {},
		l:           zap.NewNop(),
		minDelay:    500 * time.Millisecond,
		maxDelay:    30 * time.Second,
	}
	for _, apply := range opts {
		apply(r)
	}
	return r
}

// Run executes the task, retrying transient failures with jittered
// exponential backoff. A permanent failure, or a transient one past
// the attempt ceiling, goes to the failure sink and is returned.
func (r *Runner) Run(ctx context.Context, task Task) error {
	delays := &backoff.Backoff{
		Min:    r.minDelay,
		Max:    r.maxDelay,
		Factor: 2,
		Jitter: true,
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = r.handler.Handle(ctx, task)
		if err == nil {
			return nil
		}
		if !Transient(err) {
			break
		}
		if attempt >= r.maxAttempts {
			err = status.ErrRetriesExhausted.Wrap(err)
			break
		}
		delay := delays.Duration()
		r.l.Warn("task failed, retrying",
			zap.Stringer("task", task),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.l.Error("task failed permanently", zap.Stringer("task", task), zap.Error(err))
	r.onFailure(task, err)
	return err
}
