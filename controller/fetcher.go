package controller

import (
	"context"
	"runtime/debug"

	"github.com/tailored-agentic-units/opstate/observability"
	"github.com/tailored-agentic-units/opstate/state"
)

// FetchFunc produces one value for a single-shot fetch operation. It runs on
// its own goroutine; errors and panics are converted into error states, never
// surfaced to the Load caller.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Fetcher drives an operation state through Idle → Loading → Success/Error
// for a discrete fetch with at most one logically current in-flight attempt.
// Overlapping Load calls are resolved by the generation counter: the last
// invocation wins and earlier completions are discarded, even when they
// resolve later.
//
// A superseded fetch is not cancelled; it runs to completion and only its
// effect is suppressed.
type Fetcher[T any] struct {
	core[T]
	fetch  FetchFunc[T]
	ctx    context.Context
	cancel context.CancelFunc
}

// NewFetcher creates a Fetcher for the given fetch function. ctx bounds the
// controller's lifetime and parents the auto-start fetch. A nil cfg means
// DefaultConfig; with auto-start enabled, the controller transitions to
// loading and triggers the first fetch immediately.
func NewFetcher[T any](ctx context.Context, fetch FetchFunc[T], cfg *Config, opts ...Option[T]) *Fetcher[T] {
	conf := DefaultConfig()
	if cfg != nil {
		conf = *cfg
	}
	conf.normalize()

	fctx, cancel := context.WithCancel(ctx)
	f := &Fetcher[T]{
		fetch:  fetch,
		ctx:    fctx,
		cancel: cancel,
	}
	f.core.init(conf, "controller.Fetcher")
	for _, opt := range opts {
		opt(&f.core)
	}

	if conf.AutoStart {
		f.Load(fctx, true)
	}
	return f
}

// Load starts a new fetch. The state transitions to loading — carrying the
// current payload when useCached is true — and the fetch runs on its own
// goroutine. Its completion is applied only if no later invocation has
// superseded it by then.
func (f *Fetcher[T]) Load(ctx context.Context, useCached bool) {
	if f.closed.Load() {
		return
	}
	gen := f.gen.Add(1)
	f.emit(ctx, EventLoadStart, observability.LevelVerbose, map[string]any{
		"generation": gen,
		"use_cached": useCached,
	})

	f.apply(ctx, gen, func(cur state.State[T]) state.State[T] {
		next := state.Loading[T]()
		if useCached {
			if v, ok := cur.Data(); ok {
				next = next.WithData(v)
			}
		}
		return next
	})

	go f.run(ctx, gen)
}

// Reload is an alias for Load.
func (f *Fetcher[T]) Reload(ctx context.Context, useCached bool) {
	f.Load(ctx, useCached)
}

// SetSuccess injects a success state directly, superseding any in-flight
// fetch.
func (f *Fetcher[T]) SetSuccess(data T) {
	f.setSuccess(data)
}

// Close tears the controller down: outstanding completions are invalidated,
// watcher channels close, and no further hook fires. The context passed to
// NewFetcher's fetch invocations is cancelled.
func (f *Fetcher[T]) Close() {
	f.cancel()
	f.core.close()
}

func (f *Fetcher[T]) run(ctx context.Context, gen uint64) {
	v, err := f.invoke(ctx)
	if err != nil {
		f.apply(ctx, gen, func(cur state.State[T]) state.State[T] {
			return f.failState(err, cur)
		})
		return
	}
	f.apply(ctx, gen, func(state.State[T]) state.State[T] {
		return state.Success(v)
	})
}

// invoke runs the fetch function, converting a panic into an error carrying
// the stack trace.
func (f *Fetcher[T]) invoke(ctx context.Context) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, trace: string(debug.Stack())}
		}
	}()
	return f.fetch(ctx)
}
