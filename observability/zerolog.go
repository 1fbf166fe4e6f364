package observability

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologObserver emits events through a zerolog.Logger. The event type
// becomes the message, the source and Data keys become structured fields.
type ZerologObserver struct {
	logger zerolog.Logger
}

// NewZerologObserver creates an observer wrapping an existing zerolog.Logger.
func NewZerologObserver(logger zerolog.Logger) *ZerologObserver {
	return &ZerologObserver{logger: logger}
}

// NewConsoleZerologObserver creates an observer with human-readable console
// output on stderr.
func NewConsoleZerologObserver() *ZerologObserver {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return &ZerologObserver{logger: zerolog.New(output).With().Timestamp().Logger()}
}

func (o *ZerologObserver) OnEvent(ctx context.Context, event Event) {
	var ev *zerolog.Event
	switch {
	case event.Level <= 8:
		ev = o.logger.Debug()
	case event.Level <= 12:
		ev = o.logger.Info()
	case event.Level <= 16:
		ev = o.logger.Warn()
	default:
		ev = o.logger.Error()
	}

	ev = ev.Str("source", event.Source)
	for k, v := range event.Data {
		ev = addField(ev, k, v)
	}
	ev.Msg(string(event.Type))
}

// addField adds a typed field to a zerolog.Event.
func addField(ev *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return ev.Str(key, v)
	case int:
		return ev.Int(key, v)
	case int64:
		return ev.Int64(key, v)
	case uint64:
		return ev.Uint64(key, v)
	case float64:
		return ev.Float64(key, v)
	case bool:
		return ev.Bool(key, v)
	case time.Duration:
		return ev.Dur(key, v)
	case error:
		return ev.AnErr(key, v)
	default:
		return ev.Interface(key, v)
	}
}
