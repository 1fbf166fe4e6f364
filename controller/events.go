package controller

import "github.com/tailored-agentic-units/opstate/observability"

// Controller event types emitted through the configured observer.
const (
	EventLoadStart         observability.EventType = "controller.load.start"
	EventListenStart       observability.EventType = "controller.listen.start"
	EventTransition        observability.EventType = "controller.transition"
	EventTransitionSkipped observability.EventType = "controller.transition.skipped"
	EventStaleResult       observability.EventType = "controller.result.stale"
	EventSourceDone        observability.EventType = "controller.source.done"
	EventClosed            observability.EventType = "controller.closed"
)
