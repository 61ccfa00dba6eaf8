// Package worker is the task orchestrator. Callers enqueue named
// tasks against a single Worker contract; interchangeable backends
// execute them inline, on goroutines, or through a NATS JetStream
// queue consumed by separate worker processes.
//
// Execution is at-least-once, so every task run through a Worker must
// be idempotent. Transient failures are retried with backoff up to an
// attempt ceiling; structural failures are never retried. Exhausted or
// structural failures are handed to the configured failure sink, never
// dropped.
package worker

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	artifactstatus "github.com/enku/gentoo-build-publisher/pkg/artifact/status"
	"github.com/enku/gentoo-build-publisher/pkg/errors"
	recordsstatus "github.com/enku/gentoo-build-publisher/pkg/records/status"
	storestatus "github.com/enku/gentoo-build-publisher/pkg/store/status"
)

// Backend names accepted by configuration
const (
	BackendImmediate = "immediate"
	BackendThread    = "thread"
	BackendNATS      = "nats"
)

// Task is one unit of work: a name dispatched to a handler plus its
// string arguments. Tasks cross process boundaries on the queue
// backend, so arguments stay plain strings.
type Task struct {
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

func (t Task) String() string {
	return fmt.Sprintf("%s%v", t.Name, t.Args)
}

// Arg returns a task argument, empty when absent
func (t Task) Arg(name string) string {
	return t.Args[name]
}

// Handler executes tasks by name. Handlers fail with
// status.ErrUnknownTask for names they do not implement.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

// FailureFunc receives a task whose execution permanently failed
type FailureFunc func(task Task, err error)

// Worker enqueues tasks for execution
type Worker interface {
	// Name identifies the backend
	Name() string

	// Enqueue schedules one task. The in-process backends complete
	// the returned handle when the task finishes; the queue backend
	// completes it once the task is durably queued, and its outcome
	// is observed through build records instead.
	Enqueue(ctx context.Context, task Task) (*Handle, error)

	// Close stops accepting tasks and releases the backend
	Close() error
}

// Handle tracks one enqueued task
type Handle struct {
	id   string
	done chan struct{}
	err  error
}

var handleSeq atomic.Uint64

func newHandle(task Task) *Handle {
	return &Handle{
		id:   fmt.Sprintf("%s-%d", task.Name, handleSeq.Add(1)),
		done: make(chan struct{}),
	}
}

// complete resolves the handle; must be called exactly once
func (h *Handle) complete(err error) {
	h.err = err
	close(h.done)
}

// ID identifies the task within this process
func (h *Handle) ID() string { return h.id }

// Wait blocks until the handle resolves or the context ends
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transient reports whether a task failure may succeed on retry.
// Structural failures (bad archives, unknown builds) and unrecognized
// errors are permanent; network and backend I/O classes are transient.
func Transient(err error) bool {
	switch {
	case errors.Is(err, artifactstatus.ErrCorruptArchive),
		errors.Is(err, artifactstatus.ErrIncompleteArtifact),
		errors.Is(err, storestatus.ErrBuildNotFound),
		errors.Is(err, storestatus.ErrBuildNotPulled),
		errors.Is(err, storestatus.ErrBuildPublished),
		errors.Is(err, storestatus.ErrInvalidTag),
		errors.Is(err, recordsstatus.ErrInvalidRecord),
		errors.Is(err, recordsstatus.ErrUnknownField):
		return false
	case errors.Is(err, artifactstatus.ErrFetchTimeout),
		errors.Is(err, artifactstatus.ErrFetchFailed),
		errors.Is(err, storestatus.ErrStorageIO),
		errors.Is(err, recordsstatus.ErrRecordsIO),
		errors.Is(err, context.DeadlineExceeded):
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}
