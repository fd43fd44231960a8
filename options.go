package harel

import "log/slog"

// DefaultMaxMicrosteps bounds the microsteps of a single macrostep.
const DefaultMaxMicrosteps = 10000

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHost sets the value passed to actions and conditions as Host.
func WithHost(host any) Option {
	return func(e *Engine) {
		e.host = host
	}
}

// WithLifecycleHooks registers observability hooks. It can be given more
// than once; hooks run in registration order.
func WithLifecycleHooks(hooks LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks)
	}
}

// WithMaxMicrosteps sets the microstep limit of a macrostep. Values below 1
// restore the default.
func WithMaxMicrosteps(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = DefaultMaxMicrosteps
		}
		e.maxMicrosteps = n
	}
}
