package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/crimson-sun/rollcall/internal/model"
	"github.com/crimson-sun/rollcall/internal/sink"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity. Default: 1024.
func WithBufferSize(n int) Option {
	return func(a *Async) {
		if n > 0 {
			a.bufSize = n
		}
	}
}

// WithOnError sets the callback invoked when the inner sink's Write fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Write return immediately, dropping the event, when
// the buffer is full instead of blocking the caller.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithOnDrop sets a callback invoked for each event dropped on a full buffer.
func WithOnDrop(f func(model.Event)) Option {
	return func(a *Async) { a.dropFunc = f }
}

// WithDrainTimeout bounds how long Close waits for buffered events.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) {
		if d > 0 {
			a.drainTimeout = d
		}
	}
}

// Async decouples event emission from delivery via a buffered channel. The
// monitor writes into the channel; a background goroutine drains it to the
// wrapped sink. Errors from the inner sink go to errFunc and are never
// returned to the caller.
type Async struct {
	inner        sink.Sink
	ch           chan model.Event
	done         chan struct{}
	abandon      chan struct{}
	errFunc      func(error)
	dropFunc     func(model.Event)
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration
	closeOnce    sync.Once
}

// New wraps a sink in an async channel-based writer. The drain goroutine
// starts immediately.
func New(inner sink.Sink, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
		errFunc:      func(err error) { slog.Warn("sink write failed", "error", err) },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan model.Event, a.bufSize)
	a.done = make(chan struct{})
	a.abandon = make(chan struct{})
	go a.drain()
	return a
}

// Write enqueues the event. It blocks on a full buffer unless WithDropOnFull
// is set, in which case the event is dropped.
func (a *Async) Write(_ context.Context, event model.Event) error {
	if a.dropOnFull {
		select {
		case a.ch <- event:
		default:
			slog.Warn("sink buffer full, dropping event",
				"type", event.Type, "identity", event.Identity)
			if a.dropFunc != nil {
				a.dropFunc(event)
			}
		}
		return nil
	}
	a.ch <- event
	return nil
}

// Close stops intake, waits for the drain goroutine (bounded by the drain
// timeout), then closes the inner sink. On timeout the remaining events are
// discarded and the inner sink is closed in the background once its
// in-flight Write returns, so Write and Close never overlap.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.ch)
		select {
		case <-a.done:
			err = a.inner.Close()
		case <-time.After(a.drainTimeout):
			slog.Warn("sink drain timed out", "pending", len(a.ch))
			close(a.abandon)
			go func() {
				<-a.done
				if cerr := a.inner.Close(); cerr != nil {
					a.errFunc(cerr)
				}
			}()
		}
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	for event := range a.ch {
		select {
		case <-a.abandon:
			continue
		default:
		}
		if err := a.inner.Write(context.Background(), event); err != nil {
			a.errFunc(err)
		}
	}
}
