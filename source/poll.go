package source

import (
	"context"
	"time"
)

const defaultPollInterval = 2 * time.Second

// Poll returns a source that invokes fetch immediately and then at a fixed
// cadence, emitting each result. Fetch failures become error emissions; the
// polling loop keeps running afterwards. The subscription completes when the
// context is cancelled.
func Poll[T any](interval time.Duration, fetch func(ctx context.Context) (T, error)) Func[T] {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return func(ctx context.Context) (<-chan Event[T], error) {
		out := make(chan Event[T])
		go func() {
			defer close(out)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				v, err := fetch(ctx)
				ev := Event[T]{Value: v}
				if err != nil {
					ev = Event[T]{Err: err}
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
			}
		}()
		return out, nil
	}
}
