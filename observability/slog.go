package observability

import (
	"context"
	"log/slog"
)

// SlogObserver emits controller events to a slog.Logger: the event type
// becomes the log message, the Level is mapped via SlogLevel, and the
// source plus every Data key are flattened into top-level attributes. A
// transition thus logs as e.g. "controller.transition" with kind/generation
// fields.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver emitting to the given logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	attrs := make([]slog.Attr, 0, len(event.Data)+1)
	attrs = append(attrs, slog.String("source", event.Source))
	for k, v := range event.Data {
		attrs = append(attrs, slog.Any(k, v))
	}

	o.logger.LogAttrs(ctx, event.Level.SlogLevel(), string(event.Type), attrs...)
}
