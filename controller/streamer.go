package controller

import (
	"context"
	"sync"

	"github.com/tailored-agentic-units/opstate/observability"
	"github.com/tailored-agentic-units/opstate/source"
	"github.com/tailored-agentic-units/opstate/state"
)

// Streamer drives an operation state for a continuously emitting source,
// supporting reconnection. Each Listen call supersedes the previous
// subscription: staleness is evaluated per emission, and the superseded
// subscription's context is cancelled so the underlying resource is
// released even though its emissions would be dropped anyway.
type Streamer[T any] struct {
	core[T]
	subscribe source.Func[T]
	ctx       context.Context
	cancel    context.CancelFunc

	subMu     sync.Mutex
	subCancel context.CancelFunc
}

// NewStreamer creates a Streamer for the given source. ctx bounds the
// controller's lifetime and parents the auto-start subscription. A nil cfg
// means DefaultConfig; with auto-start enabled, the controller transitions
// to loading and subscribes immediately.
func NewStreamer[T any](ctx context.Context, subscribe source.Func[T], cfg *Config, opts ...Option[T]) *Streamer[T] {
	conf := DefaultConfig()
	if cfg != nil {
		conf = *cfg
	}
	conf.normalize()

	sctx, cancel := context.WithCancel(ctx)
	s := &Streamer[T]{
		subscribe: subscribe,
		ctx:       sctx,
		cancel:    cancel,
	}
	s.core.init(conf, "controller.Streamer")
	for _, opt := range opts {
		opt(&s.core)
	}

	if conf.AutoStart {
		s.Listen(sctx, true)
	}
	return s
}

// Listen subscribes to a newly constructed source, superseding any previous
// subscription. The state transitions to loading — carrying the current
// payload when useCached is true — and every subsequent emission from this
// subscription produces a success or error transition, until a later
// invocation supersedes it. A synchronous construction failure produces an
// error state immediately.
func (s *Streamer[T]) Listen(ctx context.Context, useCached bool) {
	if s.closed.Load() {
		return
	}
	gen := s.gen.Add(1)
	s.emit(ctx, EventListenStart, observability.LevelVerbose, map[string]any{
		"generation": gen,
		"use_cached": useCached,
	})

	s.apply(ctx, gen, func(cur state.State[T]) state.State[T] {
		next := state.Loading[T]()
		if useCached {
			if v, ok := cur.Data(); ok {
				next = next.WithData(v)
			}
		}
		return next
	})

	// Cancellation of the superseded subscription is best-effort: it is
	// requested before subscribing but not awaited, so a source with
	// cancellation side effects may still be winding down while the new
	// subscription starts.
	subCtx, cancel := context.WithCancel(ctx)
	s.swapSubscription(cancel)

	events, err := s.subscribe(subCtx)
	if err != nil {
		cancel()
		s.apply(ctx, gen, func(cur state.State[T]) state.State[T] {
			return s.failState(err, cur)
		})
		return
	}

	go s.consume(subCtx, gen, events)
}

// SetData injects a success state directly. The live subscription is
// superseded and its context cancelled, so the underlying source stops
// instead of running orphaned.
func (s *Streamer[T]) SetData(data T) {
	s.swapSubscription(nil)
	s.setSuccess(data)
}

// SetIdle resets the controller to the idle state, keeping the current
// payload when useCached is true. The live subscription is cancelled.
func (s *Streamer[T]) SetIdle(useCached bool) {
	s.swapSubscription(nil)
	s.core.SetIdle(useCached)
}

// SetEmpty injects the success variant with the explicit no-value sentinel,
// cancelling the live subscription.
func (s *Streamer[T]) SetEmpty() {
	s.swapSubscription(nil)
	s.core.SetEmpty()
}

// SetError injects an error state directly, retaining the current payload
// and cancelling the live subscription.
func (s *Streamer[T]) SetError(cause error, trace, message string) {
	s.swapSubscription(nil)
	s.core.SetError(cause, trace, message)
}

// Close tears the controller down: the live subscription is cancelled,
// outstanding emissions are invalidated, watcher channels close, and no
// further hook fires.
func (s *Streamer[T]) Close() {
	s.swapSubscription(nil)
	s.cancel()
	s.core.close()
}

func (s *Streamer[T]) swapSubscription(cancel context.CancelFunc) {
	s.subMu.Lock()
	if s.subCancel != nil {
		s.subCancel()
	}
	s.subCancel = cancel
	s.subMu.Unlock()
}

func (s *Streamer[T]) consume(ctx context.Context, gen uint64, events <-chan source.Event[T]) {
	for ev := range events {
		if s.closed.Load() || s.gen.Load() != gen {
			s.emit(ctx, EventStaleResult, observability.LevelVerbose, map[string]any{
				"generation": gen,
			})
			return
		}
		if ev.Err != nil {
			err := ev.Err
			s.apply(ctx, gen, func(cur state.State[T]) state.State[T] {
				return s.failState(err, cur)
			})
			continue
		}
		v := ev.Value
		s.apply(ctx, gen, func(state.State[T]) state.State[T] {
			return state.Success(v)
		})
	}

	// Source completed. Completion does not change the state variant; it
	// only fires the done hook, and only while this subscription is still
	// current.
	if s.closed.Load() || s.gen.Load() != gen {
		return
	}
	s.emit(ctx, EventSourceDone, observability.LevelVerbose, map[string]any{
		"generation": gen,
	})
	if s.hooks.OnDone != nil {
		s.hooks.OnDone()
	}
}
