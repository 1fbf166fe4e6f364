package controller

import "github.com/tailored-agentic-units/opstate/state"

// Hooks are lifecycle callbacks invoked exactly once per accepted
// transition, after the state has been replaced. A skipped (idempotent)
// transition and a discarded stale completion invoke nothing, and no hook
// fires after Close. Any field may be nil.
//
// Hooks run on the goroutine that produced the transition, outside the
// controller's internal lock, so a hook may call back into the controller —
// the basis for building retry policies externally.
type Hooks[T any] struct {
	OnLoading func(state.State[T])
	OnSuccess func(state.State[T])
	OnError   func(state.State[T])
	OnIdle    func(state.State[T])

	// OnDone is invoked by the streaming controller when the current
	// subscription's source completes. Completion does not change the state
	// variant.
	OnDone func()
}

// ErrorFormatter produces the message stored in an error state from the
// original failure.
type ErrorFormatter func(err error) string
