package observability

import "context"

// MultiObserver fans controller events out to several observers, so a
// transition can reach a log sink and a metrics sink from one emission.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates a MultiObserver forwarding to every non-nil
// observer, in argument order.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

// OnEvent delivers the event to each observer on the calling goroutine; a
// slow observer delays the rest.
func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
