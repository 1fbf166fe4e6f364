// Package source defines the subscription contract consumed by the streaming
// controller, along with adapters for common kinds of sources: plain
// channels, finite value sequences, interval polling, and file watching.
//
// A source is a Func: calling it subscribes and yields a channel of
// emissions. Closing the channel signals completion ("done"). Errors during
// construction are returned synchronously; errors during the life of the
// subscription are delivered as emissions with Err set. Cancelling the
// subscription context releases the underlying resource and closes the
// channel.
package source

import "context"

// Event is a single emission from a source: either a value or an error.
type Event[T any] struct {
	Value T
	Err   error
}

// Func subscribes to a source. The returned channel is closed when the
// source completes or the context is cancelled. Implementations must return
// construction failures synchronously rather than emitting them.
type Func[T any] func(ctx context.Context) (<-chan Event[T], error)

// FromChannel adapts an existing channel into a source. The subscription
// completes when ch is closed or the context is cancelled. The channel is
// shared: a second subscription competes for the same values.
func FromChannel[T any](ch <-chan T) Func[T] {
	return func(ctx context.Context) (<-chan Event[T], error) {
		out := make(chan Event[T])
		go func() {
			defer close(out)
			for {
				select {
				case v, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- Event[T]{Value: v}:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}

// Of returns a finite source that emits the given values in order and then
// completes. Useful in tests and examples.
func Of[T any](values ...T) Func[T] {
	return func(ctx context.Context) (<-chan Event[T], error) {
		out := make(chan Event[T], len(values))
		go func() {
			defer close(out)
			for _, v := range values {
				select {
				case out <- Event[T]{Value: v}:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}
