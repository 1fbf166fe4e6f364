package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchFile returns a source that emits the contents of path whenever the
// file is written or created, starting with its current contents. The parent
// directory is watched rather than the file itself, so editors and tools
// that replace the file atomically are still observed. The subscription
// completes when the context is cancelled.
func WatchFile(path string) Func[[]byte] {
	return func(ctx context.Context) (<-chan Event[[]byte], error) {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("create watcher: %w", err)
		}

		dir := filepath.Dir(path)
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}

		out := make(chan Event[[]byte])
		go func() {
			defer close(out)
			defer watcher.Close()

			// Subscribers start from the current contents.
			if !send(ctx, out, readFile(path)) {
				return
			}

			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if filepath.Clean(event.Name) != filepath.Clean(path) {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					if !send(ctx, out, readFile(path)) {
						return
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					if !send(ctx, out, Event[[]byte]{Err: fmt.Errorf("watch %s: %w", path, err)}) {
						return
					}
				}
			}
		}()
		return out, nil
	}
}

func readFile(path string) Event[[]byte] {
	data, err := os.ReadFile(path)
	if err != nil {
		return Event[[]byte]{Err: fmt.Errorf("read %s: %w", path, err)}
	}
	return Event[[]byte]{Value: data}
}

func send[T any](ctx context.Context, out chan<- Event[T], ev Event[T]) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
