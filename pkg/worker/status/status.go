// Package status declares the sentinel errors of the task orchestrator.
package status

import "github.com/enku/gentoo-build-publisher/pkg/errors"

var (
	// ErrUnknownTask indicates a task name no handler is registered for
	ErrUnknownTask = errors.New("unknown task")

	// ErrRetriesExhausted wraps the last transient failure once the
	// attempt ceiling is reached
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrWorkerClosed indicates an enqueue after Close
	ErrWorkerClosed = errors.New("worker closed")

	// ErrQueueUnavailable indicates the queue backend cannot be reached
	ErrQueueUnavailable = errors.New("task queue unavailable")

	// ErrUnknownBackend indicates a worker backend name outside the
	// supported set
	ErrUnknownBackend = errors.New("unknown worker backend")
)
