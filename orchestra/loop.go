package orchestra

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/pithecene-io/framehub/frame"
	"github.com/pithecene-io/framehub/log"
)

// DefaultQueueSize is the loop's task buffer when none is configured.
const DefaultQueueSize = 256

// ErrLoopStopped is returned when work is scheduled on a loop that has exited.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop runs every inbound message and every scheduled task on one goroutine,
// in the order they were enqueued. It is the frame.MessageSource for the
// adapter, so transports never call the adapter directly.
type Loop struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once

	// sendMu is held shared by Do while it enqueues and exclusively by Run
	// once done is closed, so no send can land after the final drain.
	sendMu sync.RWMutex

	mu        sync.Mutex
	listeners []func(frame.MessageEvent)

	logger *log.Logger
}

// NewLoop creates a loop with a task buffer of size. Values below 1 use
// DefaultQueueSize.
func NewLoop(size int, logger *log.Logger) *Loop {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Loop{
		tasks:  make(chan func(), size),
		done:   make(chan struct{}),
		logger: log.OrNop(logger),
	}
}

// AddMessageListener registers fn to receive dispatched messages.
func (l *Loop) AddMessageListener(fn func(frame.MessageEvent)) {
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// Dispatch enqueues an inbound message for the listeners.
func (l *Loop) Dispatch(ctx context.Context, ev frame.MessageEvent) error {
	return l.Do(ctx, func() {
		l.mu.Lock()
		listeners := slices.Clone(l.listeners)
		l.mu.Unlock()
		for _, fn := range listeners {
			fn(ev)
		}
	})
}

// Do enqueues fn. It blocks while the buffer is full. A nil return means
// fn will run, even if the loop is stopping.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.sendMu.RLock()
	defer l.sendMu.RUnlock()
	select {
	case <-l.done:
		return ErrLoopStopped
	default:
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait enqueues fn and blocks until it has run.
func (l *Loop) Wait(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Do(ctx, func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes tasks until ctx is cancelled, then runs whatever Do had
// already accepted. A panicking task is logged and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.stop()
			return ctx.Err()
		case fn := <-l.tasks:
			l.run(fn)
		}
	}
}

// stop rejects new work and drains accepted tasks. Taking sendMu waits out
// any Do that raced the close; later calls see done and fail.
func (l *Loop) stop() {
	l.once.Do(func() { close(l.done) })
	l.sendMu.Lock() //nolint:staticcheck // empty critical section is a barrier
	l.sendMu.Unlock()

	if n := len(l.tasks); n > 0 {
		l.logger.Warn("event loop draining pending tasks", map[string]any{"pending": n})
	}
	for {
		select {
		case fn := <-l.tasks:
			l.run(fn)
		default:
			return
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", map[string]any{"panic": fmt.Sprint(r)})
		}
	}()
	fn()
}
