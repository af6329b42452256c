package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/assessor/pkg/observability"
)

func TestDispatcher_TaskDetachedFromCancellation(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1, Timeout: time.Second}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var taskErr error
	require.NoError(t, d.Submit(ctx, "detached", func(ctx context.Context) error {
		taskErr = ctx.Err()
		return nil
	}))
	d.Flush()
	assert.NoError(t, taskErr, "task context must not inherit submitter cancellation")
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 2, Timeout: time.Second}, nil)
	var ran atomic.Bool
	require.NoError(t, d.Submit(context.Background(), "panicky", func(ctx context.Context) error {
		panic("boom")
	}))
	require.NoError(t, d.Submit(context.Background(), "after", func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}))
	d.Flush()
	assert.True(t, ran.Load(), "worker survives a panicking task")
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestRun_Timeout(t *testing.T) {
	err := run(context.Background(), 20*time.Millisecond, "slow", observability.NewNopLogger(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDispatcher_FailedTaskDoesNotStopOthers(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Workers: 2, QueueSize: 16, Timeout: time.Second}, nil)

	var ran atomic.Int32
	require.NoError(t, d.Submit(context.Background(), "bad", func(ctx context.Context) error {
		return errors.New("store unavailable")
	}))
	for i := 0; i < 5; i++ {
		require.NoError(t, d.Submit(context.Background(), "ok", func(ctx context.Context) error {
			ran.Add(1)
			return nil
		}))
	}

	d.Flush()
	assert.Equal(t, int32(5), ran.Load())
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_FlushWhileSubmitting(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Workers: 4, QueueSize: 64, Timeout: time.Second}, nil)

	var submitted, ran atomic.Int32
	var producers sync.WaitGroup
	for p := 0; p < 4; p++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for i := 0; i < 50; i++ {
				if d.Submit(context.Background(), "work", func(ctx context.Context) error {
					ran.Add(1)
					return nil
				}) == nil {
					submitted.Add(1)
				}
			}
		}()
	}

	flushed := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.Flush()
		}
		close(flushed)
	}()

	producers.Wait()
	d.Flush()
	assert.Equal(t, submitted.Load(), ran.Load())
	<-flushed
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_QueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Workers: 1, QueueSize: 1, Timeout: time.Second}, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, d.Submit(context.Background(), "blocker", func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	require.NoError(t, d.Submit(context.Background(), "queued", func(ctx context.Context) error { return nil }))
	err := d.Submit(context.Background(), "overflow", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	d.Flush()
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_SubmitAfterShutdown(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{Workers: 1}, nil)
	require.NoError(t, d.Shutdown(context.Background()))
	require.NoError(t, d.Shutdown(context.Background()))

	err := d.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrClosed)
}
