package controller

const defaultWatchBuffer = 8

// Config holds construction parameters shared by both controllers.
// Constructors accept a nil Config, which means DefaultConfig.
type Config struct {
	// AutoStart triggers the first load or listen at construction time. The
	// controller then starts in the loading state instead of idle.
	AutoStart bool

	// Rebroadcast includes the full payload snapshot in accepted-transition
	// observer events. More expensive; tag-only events are emitted when
	// false.
	Rebroadcast bool

	// WatchBuffer is the per-subscription channel buffer size.
	WatchBuffer int
}

// DefaultConfig returns a Config with auto-start enabled.
func DefaultConfig() Config {
	return Config{
		AutoStart:   true,
		WatchBuffer: defaultWatchBuffer,
	}
}

// normalize fills in unset values so constructors can rely on them.
func (c *Config) normalize() {
	if c.WatchBuffer <= 0 {
		c.WatchBuffer = defaultWatchBuffer
	}
}
