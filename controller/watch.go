package controller

import (
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/opstate/state"
)

// Subscription delivers accepted transitions to one consumer. Obtain one
// with Watch; release it with Cancel.
type Subscription[T any] struct {
	id     string
	states chan state.State[T]
	hub    *watchHub[T]
}

// ID returns the unique subscription identifier.
func (s *Subscription[T]) ID() string { return s.id }

// States returns the channel of accepted transitions. It is closed when the
// subscription is cancelled or the controller closes.
func (s *Subscription[T]) States() <-chan state.State[T] { return s.states }

// Cancel releases the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription[T]) Cancel() { s.hub.remove(s.id) }

// watchHub fans accepted transitions out to any number of subscriptions.
type watchHub[T any] struct {
	mu     sync.Mutex
	subs   map[string]chan state.State[T]
	buffer int
	closed bool
}

func newWatchHub[T any](buffer int) *watchHub[T] {
	return &watchHub[T]{
		subs:   make(map[string]chan state.State[T]),
		buffer: buffer,
	}
}

func (h *watchHub[T]) subscribe() *Subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscription[T]{
		id:     uuid.Must(uuid.NewV7()).String(),
		states: make(chan state.State[T], h.buffer),
		hub:    h,
	}
	if h.closed {
		close(sub.states)
		return sub
	}
	h.subs[sub.id] = sub.states
	return sub
}

func (h *watchHub[T]) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// broadcast delivers st to every subscription. When a buffer is full the
// oldest undelivered state is dropped, so a slow consumer always converges
// on the latest value rather than blocking the controller.
func (h *watchHub[T]) broadcast(st state.State[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (h *watchHub[T]) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
