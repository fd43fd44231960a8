package core

import (
	"log/slog"
	"time"

	"github.com/comalice/harel"
)

// Option configures a Machine.
type Option func(*Machine)

// WithID overrides the generated machine id.
func WithID(id string) Option {
	return func(m *Machine) {
		m.id = id
	}
}

// WithLogger sets the logger used by the machine and its engine.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger
	}
}

// WithHost installs the value passed to actions and conditions. A
// *harel.DataModel host is saved with every snapshot and reloaded by Restore.
func WithHost(host any) Option {
	return func(m *Machine) {
		m.host = host
		m.engineOpts = append(m.engineOpts, harel.WithHost(host))
	}
}

// WithEngineOptions passes options through to the engine.
func WithEngineOptions(opts ...harel.Option) Option {
	return func(m *Machine) {
		m.engineOpts = append(m.engineOpts, opts...)
	}
}

// WithEventSource pumps events from s into the machine once started.
func WithEventSource(s EventSource) Option {
	return func(m *Machine) {
		m.sources = append(m.sources, s)
	}
}

// WithStore persists a snapshot after start and after every macrostep.
func WithStore(s Store) Option {
	return func(m *Machine) {
		m.store = s
	}
}

// WithPublisher publishes a Record for every configuration change.
func WithPublisher(p Publisher) Option {
	return func(m *Machine) {
		m.publisher = p
	}
}

// WithQueueSize sets the event queue buffer size. The default is 1000.
func WithQueueSize(size int) Option {
	return func(m *Machine) {
		m.queueSize = size
	}
}

// WithTickInterval advances the handle clock by wall time every d and
// issues a tick, so delayed transitions fire without external events.
func WithTickInterval(d time.Duration) Option {
	return func(m *Machine) {
		m.tickInterval = d
	}
}
