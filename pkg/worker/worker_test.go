package worker

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	artifactstatus "github.com/enku/gentoo-build-publisher/pkg/artifact/status"
	"github.com/enku/gentoo-build-publisher/pkg/errors"
	storestatus "github.com/enku/gentoo-build-publisher/pkg/store/status"
	"github.com/enku/gentoo-build-publisher/pkg/worker/status"
)

// flaky fails with the given error until attempts run out
type flaky struct {
	calls    atomic.Int32
	failures int32
	err      error
}

func (f *flaky) Handle(context.Context, Task) error {
	if f.calls.Add(1) <= f.failures {
		return f.err
	}
	return nil
}

func fastRunner(h Handler, opts ...RunnerOption) *Runner {
	opts = append([]RunnerOption{RetryDelays(time.Millisecond, 2*time.Millisecond)}, opts...)
	return NewRunner(h, opts...)
}

func TestRunnerRetriesTransient(t *testing.T) {
	handler := &flaky{failures: 2, err: artifactstatus.ErrFetchTimeout}
	runner := fastRunner(handler, MaxAttempts(5))

	err := runner.Run(context.Background(), Task{Name: "pull"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), handler.calls.Load())
}

func TestRunnerStructuralNotRetried(t *testing.T) {
	var failed []Task
	handler := &flaky{failures: 99, err: artifactstatus.ErrIncompleteArtifact}
	runner := fastRunner(handler, MaxAttempts(5), OnFailure(func(task Task, err error) {
		failed = append(failed, task)
	}))

	err := runner.Run(context.Background(), Task{Name: "pull"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, artifactstatus.ErrIncompleteArtifact))
	assert.Equal(t, int32(1), handler.calls.Load())
	assert.Len(t, failed, 1)
}

func TestRunnerAttemptCeiling(t *testing.T) {
	var failedErr error
	handler := &flaky{failures: 99, err: artifactstatus.ErrFetchFailed}
	runner := fastRunner(handler, MaxAttempts(3), OnFailure(func(_ Task, err error) {
		failedErr = err
	}))

	err := runner.Run(context.Background(), Task{Name: "pull"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrRetriesExhausted))
	assert.Equal(t, int32(3), handler.calls.Load())
	require.Error(t, failedErr)
	assert.True(t, errors.Is(failedErr, status.ErrRetriesExhausted))
}

func TestRunnerContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	handler := HandlerFunc(func(context.Context, Task) error {
		cancel()
		return artifactstatus.ErrFetchTimeout
	})
	runner := NewRunner(handler, RetryDelays(time.Minute, time.Minute))

	err := runner.Run(ctx, Task{Name: "pull"})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestImmediate(t *testing.T) {
	handler := &flaky{}
	w := NewImmediate(fastRunner(handler))
	defer w.Close()

	handle, err := w.Enqueue(context.Background(), Task{Name: "publish"})
	require.NoError(t, err)
	require.NoError(t, handle.Wait(context.Background()))
	assert.Equal(t, int32(1), handler.calls.Load())
}

func TestThread(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	handler := HandlerFunc(func(context.Context, Task) error {
		close(started)
		<-release
		return nil
	})
	w := NewThread(fastRunner(handler), false)

	handle, err := w.Enqueue(context.Background(), Task{Name: "pull"})
	require.NoError(t, err)

	<-started
	close(release)
	require.NoError(t, handle.Wait(context.Background()))
	require.NoError(t, w.Close())

	_, err = w.Enqueue(context.Background(), Task{Name: "pull"})
	assert.True(t, errors.Is(err, status.ErrWorkerClosed))
}

func TestThreadWait(t *testing.T) {
	done := atomic.Bool{}
	handler := HandlerFunc(func(context.Context, Task) error {
		time.Sleep(10 * time.Millisecond)
		done.Store(true)
		return nil
	})
	w := NewThread(fastRunner(handler), true)
	defer w.Close()

	_, err := w.Enqueue(context.Background(), Task{Name: "pull"})
	require.NoError(t, err)
	assert.True(t, done.Load())
}

func TestTransient(t *testing.T) {
	transient := []error{
		artifactstatus.ErrFetchTimeout,
		artifactstatus.ErrFetchFailed.WrapMessage("status 502"),
		storestatus.ErrStorageIO,
		context.DeadlineExceeded,
		&net.OpError{Op: "dial", Err: context.DeadlineExceeded},
	}
	for _, err := range transient {
		assert.True(t, Transient(err), err)
	}

	permanent := []error{
		artifactstatus.ErrCorruptArchive,
		artifactstatus.ErrIncompleteArtifact,
		storestatus.ErrBuildNotFound,
		storestatus.ErrBuildNotPulled,
		storestatus.ErrBuildPublished,
		errors.New("some other failure"),
	}
	for _, err := range permanent {
		assert.False(t, Transient(err), err)
	}
}
