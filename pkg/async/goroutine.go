package async

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/platinummonkey/assessor/pkg/observability"
)

// ErrQueueFull is returned by Dispatcher.Submit when the backlog is at
// capacity. The task is dropped, never run inline.
var ErrQueueFull = errors.New("dispatch queue full")

// ErrClosed is returned by Dispatcher.Submit after Shutdown.
var ErrClosed = errors.New("dispatcher closed")

// Task is a unit of detached work.
type Task func(context.Context) error

// run executes fn with panic recovery, bounded by timeout and detached from
// parentCtx's cancellation.
func run(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn Task) (err error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", taskName, r)
			logger.WithField("task", taskName).
				WithField("stack", string(debug.Stack())).
				Errorf("recovered panic: %v", r)
		}
	}()

	if err = fn(ctx); err != nil {
		logger.WithField("task", taskName).WithError(err).Warn("background task failed")
	}
	return err
}

type job struct {
	ctx  context.Context
	name string
	fn   Task
}

// Dispatcher is a fixed pool of workers fed by a bounded queue. Submit never
// blocks the caller: when the queue is full the task is rejected so the
// primary operation is not held up by its side effects.
type Dispatcher struct {
	timeout time.Duration
	logger  *observability.Logger

	queue chan job
	wg    sync.WaitGroup

	// pending counts submitted-but-unfinished tasks; idle is signalled when
	// it drops to zero.
	pendingMu sync.Mutex
	idle      *sync.Cond
	pending   int

	mu     sync.RWMutex
	closed bool
}

// DispatcherConfig configures a Dispatcher
type DispatcherConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// NewDispatcher starts cfg.Workers goroutines draining the queue
func NewDispatcher(cfg DispatcherConfig, logger *observability.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	d := &Dispatcher{
		timeout: cfg.Timeout,
		logger:  logger.WithComponent("dispatcher"),
		queue:   make(chan job, cfg.QueueSize),
	}
	d.idle = sync.NewCond(&d.pendingMu)

	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		_ = run(j.ctx, d.timeout, j.name, d.logger, j.fn)
		d.finish()
	}
}

func (d *Dispatcher) finish() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	d.pending--
	if d.pending == 0 {
		d.idle.Broadcast()
	}
}

// Submit enqueues fn. The task context inherits values from ctx but not its
// cancellation, so a finished request does not abort its audit write.
func (d *Dispatcher) Submit(ctx context.Context, taskName string, fn Task) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	d.pendingMu.Lock()
	d.pending++
	d.pendingMu.Unlock()
	select {
	case d.queue <- job{ctx: ctx, name: taskName, fn: fn}:
		return nil
	default:
		d.finish()
		return ErrQueueFull
	}
}

// Flush blocks until no task is queued or running. It may be called while
// other goroutines are still submitting; tasks they add before the backlog
// drains are waited for too.
func (d *Dispatcher) Flush() {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	for d.pending > 0 {
		d.idle.Wait()
	}
}

// Shutdown stops accepting tasks and waits for queued ones to drain or for
// ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("dispatcher shutdown: %w", ctx.Err())
	}
}
