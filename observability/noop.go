package observability

import "context"

// NoOpObserver discards all events with zero overhead. Controllers fall back
// to it when no observer is configured.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}
