// Package controller implements the two drivers that own an operation state
// and move it through its lifecycle: Fetcher for one-shot fetch operations
// and Streamer for continuously emitting sources.
//
// Both controllers resolve overlapping invocations with a generation
// counter: every load, listen, direct injection, and teardown advances the
// counter, and a completion is applied only when the generation it was
// started under is still current. The most recently requested operation
// always wins, regardless of completion order; superseded results are
// discarded silently.
//
// Transitions are idempotent: a transition that would produce a state equal
// to the current one is skipped without notifying watchers or invoking
// hooks.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tailored-agentic-units/opstate/observability"
	"github.com/tailored-agentic-units/opstate/state"
)

// Option configures a controller after config-driven initialization.
type Option[T any] func(*core[T])

// WithHooks sets the lifecycle hooks invoked after each accepted transition.
func WithHooks[T any](hooks Hooks[T]) Option[T] {
	return func(c *core[T]) { c.hooks = hooks }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver[T any](observer observability.Observer) Option[T] {
	return func(c *core[T]) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithErrorFormatter overrides the default error-message formatter
// (err.Error()).
func WithErrorFormatter[T any](format ErrorFormatter) Option[T] {
	return func(c *core[T]) {
		if format != nil {
			c.format = format
		}
	}
}

// core carries the state, generation counter, and notification machinery
// shared by Fetcher and Streamer.
type core[T any] struct {
	mu     sync.Mutex
	cur    state.State[T]
	gen    atomic.Uint64
	closed atomic.Bool

	hooks       Hooks[T]
	format      ErrorFormatter
	observer    observability.Observer
	hub         *watchHub[T]
	rebroadcast bool
	label       string
}

func (c *core[T]) init(cfg Config, label string) {
	c.cur = state.Idle[T]()
	c.format = func(err error) string {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	c.observer = observability.NoOpObserver{}
	c.hub = newWatchHub[T](cfg.WatchBuffer)
	c.rebroadcast = cfg.Rebroadcast
	c.label = label
}

// State returns the current operation state.
func (c *core[T]) State() state.State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Active reports whether the controller has not been closed. Completions and
// hooks are suppressed once it returns false.
func (c *core[T]) Active() bool {
	return !c.closed.Load()
}

// Watch subscribes to accepted transitions. The subscription receives every
// new state until it is cancelled or the controller closes; when its buffer
// fills, the oldest undelivered state is dropped so slow consumers converge
// on the latest value.
func (c *core[T]) Watch() *Subscription[T] {
	return c.hub.subscribe()
}

// apply computes the next state under the lock and installs it when the
// controller is open, gen is still current, and the result differs from the
// current state. Watcher delivery, observer events, and hooks run after the
// lock is released, so hooks may call back into the controller.
func (c *core[T]) apply(ctx context.Context, gen uint64, build func(cur state.State[T]) state.State[T]) bool {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return false
	}
	if current := c.gen.Load(); current != gen {
		c.mu.Unlock()
		c.emit(ctx, EventStaleResult, observability.LevelVerbose, map[string]any{
			"generation": gen,
			"current":    current,
		})
		return false
	}
	next := build(c.cur)
	if next.Equal(c.cur) {
		c.mu.Unlock()
		c.emit(ctx, EventTransitionSkipped, observability.LevelVerbose, map[string]any{
			"kind":       next.Kind().String(),
			"generation": gen,
		})
		return false
	}
	c.cur = next
	c.mu.Unlock()

	c.hub.broadcast(next)
	c.emit(ctx, EventTransition, observability.LevelInfo, c.transitionData(next, gen))
	if !c.closed.Load() {
		c.invokeHook(next)
	}
	return true
}

func (c *core[T]) transitionData(next state.State[T], gen uint64) map[string]any {
	data := map[string]any{
		"kind":       next.Kind().String(),
		"has_data":   next.HasData(),
		"generation": gen,
	}
	if next.IsError() {
		data["message"] = next.Message()
	}
	if c.rebroadcast {
		if v, ok := next.Data(); ok {
			data["data"] = v
		}
	}
	return data
}

func (c *core[T]) invokeHook(st state.State[T]) {
	switch {
	case st.IsLoading():
		if c.hooks.OnLoading != nil {
			c.hooks.OnLoading(st)
		}
	case st.IsSuccess():
		if c.hooks.OnSuccess != nil {
			c.hooks.OnSuccess(st)
		}
	case st.IsError():
		if c.hooks.OnError != nil {
			c.hooks.OnError(st)
		}
	case st.IsIdle():
		if c.hooks.OnIdle != nil {
			c.hooks.OnIdle(st)
		}
	}
}

func (c *core[T]) emit(ctx context.Context, typ observability.EventType, level observability.Level, data map[string]any) {
	c.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    c.label,
		Data:      data,
	})
}

// SetIdle resets the controller to the idle state, keeping the current
// payload when useCached is true. A pending operation is not cancelled, but
// its eventual completion is discarded.
func (c *core[T]) SetIdle(useCached bool) {
	if c.closed.Load() {
		return
	}
	gen := c.gen.Add(1)
	c.apply(context.Background(), gen, func(cur state.State[T]) state.State[T] {
		next := state.Idle[T]()
		if useCached {
			if v, ok := cur.Data(); ok {
				next = next.WithData(v)
			}
		}
		return next
	})
}

// SetEmpty injects the success variant with the explicit no-value sentinel.
func (c *core[T]) SetEmpty() {
	if c.closed.Load() {
		return
	}
	gen := c.gen.Add(1)
	c.apply(context.Background(), gen, func(state.State[T]) state.State[T] {
		return state.Empty[T]()
	})
}

// SetError injects an error state directly, retaining the current payload.
// An empty message defaults to the formatter output for cause.
func (c *core[T]) SetError(cause error, trace, message string) {
	if c.closed.Load() {
		return
	}
	if message == "" {
		message = c.format(cause)
	}
	gen := c.gen.Add(1)
	c.apply(context.Background(), gen, func(cur state.State[T]) state.State[T] {
		next := state.Failure[T](message, cause)
		if trace != "" {
			next = next.WithTrace(trace)
		}
		if v, ok := cur.Data(); ok {
			next = next.WithData(v)
		}
		return next
	})
}

func (c *core[T]) setSuccess(data T) {
	if c.closed.Load() {
		return
	}
	gen := c.gen.Add(1)
	c.apply(context.Background(), gen, func(state.State[T]) state.State[T] {
		return state.Success(data)
	})
}

// failState builds the error state for a failed operation: formatted
// message, original cause, stack trace for recovered panics, and the
// current payload retained for graceful degradation.
func (c *core[T]) failState(err error, cur state.State[T]) state.State[T] {
	next := state.Failure[T](c.format(err), err)
	var pErr *panicError
	if errors.As(err, &pErr) {
		next = next.WithTrace(pErr.trace)
	}
	if v, ok := cur.Data(); ok {
		next = next.WithData(v)
	}
	return next
}

// close tears the core down: all outstanding generations are invalidated,
// watcher channels are closed, and no further hook fires.
func (c *core[T]) close() {
	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		return
	}
	c.closed.Store(true)
	c.gen.Add(1)
	c.mu.Unlock()

	c.hub.closeAll()
	c.emit(context.Background(), EventClosed, observability.LevelVerbose, map[string]any{})
}

// panicError converts a panicking fetch or source into an ordinary failure
// carrying the stack trace from the panic site.
type panicError struct {
	value any
	trace string
}

func (e *panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
