package wirerpc

// SessionOption configures a Session at construction time. This mirrors
// the teacher's capability.go: a small sessionConfig struct, options
// that mutate it, and New applying each in turn.
type SessionOption interface {
	apply(*sessionConfig)
}

type sessionConfig struct {
	logger        Logger
	onIDCollision func(id uint32)
}

func defaultSessionConfig() sessionConfig {
	return sessionConfig{logger: defaultLogger}
}

type optionFunc func(*sessionConfig)

func (f optionFunc) apply(c *sessionConfig) { f(c) }

// WithLogger overrides the Session's diagnostic logger. Passing a nil
// Logger silences diagnostics entirely.
func WithLogger(l Logger) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		if l == nil {
			l = noopLogger{}
		}
		c.logger = l
	})
}

// WithIDCollision installs a hook invoked if the id counter ever wraps
// back onto a request id still awaiting its reply (spec §9, "Id
// exhaustion"). It is a diagnostic only; the colliding request still
// proceeds and silently replaces the older pending entry's slot.
func WithIDCollision(f func(id uint32)) SessionOption {
	return optionFunc(func(c *sessionConfig) {
		c.onIDCollision = f
	})
}
