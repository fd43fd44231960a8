// Package core runs statechart instances as actors: one goroutine and one
// buffered event queue per instance, with optional persistence, publishing
// and external event sources.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/comalice/harel"
)

const defaultQueueSize = 1000

// item is one unit of work for the event loop: an event, a clock advance,
// or a barrier used by Sync. clock marks advances from the tick interval.
type item struct {
	event   harel.Event
	advance time.Duration
	tick    bool
	clock   bool
	barrier chan struct{}
}

// Machine is a running instance of a chart. Send is safe for concurrent
// use; events are processed one macrostep at a time in arrival order.
type Machine struct {
	id           string
	chart        *harel.Chart
	engine       *harel.Engine
	engineOpts   []harel.Option
	host         any
	logger       *slog.Logger
	queueSize    int
	tickInterval time.Duration
	sources      []EventSource
	store        Store
	publisher    Publisher

	mu       sync.RWMutex
	handle   harel.StateMachine
	restored bool
	started  bool
	dirty    bool // clock advanced since the last save
	lastErr  error

	queue    chan item
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMachine creates a stopped machine for chart.
func NewMachine(chart *harel.Chart, opts ...Option) *Machine {
	m := &Machine{
		chart:     chart,
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.id == "" {
		m.id = uuid.Must(uuid.NewV7()).String()
	}
	if m.logger == nil {
		m.logger = slog.New(slog.DiscardHandler)
	}
	m.logger = m.logger.With(slog.String("machine", m.id), slog.String("chart", chart.Name()))
	m.engine = harel.NewEngine(append([]harel.Option{harel.WithLogger(m.logger)}, m.engineOpts...)...)
	m.queue = make(chan item, m.queueSize)
	return m
}

// ID returns the machine id.
func (m *Machine) ID() string { return m.id }

// Chart returns the chart the machine runs.
func (m *Machine) Chart() *harel.Chart { return m.chart }

// Start enters the initial configuration, unless a snapshot was restored,
// and launches the event loop. Calling Start again is a no-op.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	if m.started {
		return nil
	}

	if !m.restored {
		h, err := m.engine.Start(ctx, m.chart)
		if err != nil {
			return fmt.Errorf("start machine %s: %w", m.id, err)
		}
		m.handle = h
	}
	m.started = true
	m.persist(ctx, m.handle)

	m.wg.Add(1)
	go m.interpret()

	for _, s := range m.sources {
		m.wg.Add(1)
		go m.pump(s)
	}
	if m.tickInterval > 0 {
		m.wg.Add(1)
		go m.clock()
	}
	m.logger.Debug("machine started", slog.Any("configuration", m.handle.Labels(m.chart)))
	return nil
}

// interpret is the event loop.
func (m *Machine) interpret() {
	defer m.wg.Done()
	for {
		select {
		case it := <-m.queue:
			m.process(it)
		case <-m.done:
			return
		}
	}
}

func (m *Machine) pump(s EventSource) {
	defer m.wg.Done()
	ch := s.Events()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := m.Send(ev); err != nil {
				m.logger.Warn("dropped event from source", slog.String("event", ev.Name()), slog.Any("error", err))
			}
		case <-m.done:
			return
		}
	}
}

func (m *Machine) clock() {
	defer m.wg.Done()
	t := time.NewTicker(m.tickInterval)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case now := <-t.C:
			d := now.Sub(last)
			last = now
			if err := m.enqueue(item{advance: d, tick: true, clock: true}); err != nil {
				m.logger.Debug("skipped clock tick", slog.Any("error", err))
			}
		case <-m.done:
			return
		}
	}
}

func (m *Machine) process(it item) {
	if it.barrier != nil {
		close(it.barrier)
		return
	}
	ctx := context.Background()

	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.handle
	h := before
	if it.advance > 0 {
		h = h.Advance(it.advance)
	}
	trigger := harel.Tick()
	if !it.tick {
		trigger = harel.On(it.event)
	}

	next, err := m.engine.Update(ctx, m.chart, h, trigger)
	switch {
	case err == nil:
	case harel.IsIgnorable(err):
		m.keepClock(ctx, it, h)
		return
	default:
		m.lastErr = err
		m.logger.Warn("event failed", slog.String("trigger", trigger.String()), slog.Any("error", err))
		m.keepClock(ctx, it, h)
		return
	}
	m.handle = next
	m.persist(ctx, next)
	if m.publisher != nil && !next.SameConfiguration(before) {
		rec := Record{
			MachineID: m.id,
			Chart:     m.chart.Name(),
			From:      before.Labels(m.chart),
			To:        next.Labels(m.chart),
			Halted:    next.Halted(m.chart),
			Timestamp: time.Now(),
		}
		if it.event != nil {
			rec.Event = it.event.Name()
		}
		if err := m.publisher.Publish(ctx, rec); err != nil {
			m.logger.Warn("publish failed", slog.Any("error", err))
		}
	}
}

// keepClock installs h, the pre-update handle with the clock advanced, after
// a trigger fired nothing. Advances from the tick interval are saved on the
// next change or at Stop. Called with m.mu held.
func (m *Machine) keepClock(ctx context.Context, it item, h harel.StateMachine) {
	if it.advance <= 0 {
		return
	}
	m.handle = h
	if it.clock {
		m.dirty = true
		return
	}
	m.persist(ctx, h)
}

// persist saves h. Called with m.mu held.
func (m *Machine) persist(ctx context.Context, h harel.StateMachine) {
	if m.store == nil {
		return
	}
	m.dirty = false
	snap, err := m.snapshot(h)
	if err == nil {
		err = m.store.Save(ctx, m.id, snap)
	}
	if err != nil {
		m.logger.Warn("persist failed", slog.Any("error", err))
	}
}

func (m *Machine) enqueue(it item) error {
	select {
	case <-m.done:
		return ErrStopped
	default:
	}
	select {
	case m.queue <- it:
		return nil
	default:
		return ErrQueueFull
	}
}

// Send enqueues an event without blocking. It fails with ErrQueueFull when
// the queue is at capacity and with ErrStopped after Stop.
func (m *Machine) Send(ev harel.Event) error {
	if ev == nil {
		return errors.New("nil event")
	}
	return m.enqueue(item{event: ev})
}

// Advance moves the instance clock forward by d and re-evaluates delayed
// transitions.
func (m *Machine) Advance(d time.Duration) error {
	return m.enqueue(item{advance: d, tick: true})
}

// Sync blocks until every item queued before the call has been processed.
func (m *Machine) Sync(ctx context.Context) error {
	b := make(chan struct{})
	select {
	case m.queue <- item{barrier: b}:
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-b:
		return nil
	case <-m.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns the current handle.
func (m *Machine) Current() harel.StateMachine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle
}

// Labels returns the labels of the active states in document order.
func (m *Machine) Labels() []string {
	return slices.Clone(m.Current().Labels(m.chart))
}

// Snapshot returns the serializable form of the current handle, with the
// host data model when there is one.
func (m *Machine) Snapshot() (harel.Snapshot, error) {
	return m.snapshot(m.Current())
}

func (m *Machine) snapshot(h harel.StateMachine) (harel.Snapshot, error) {
	snap, err := m.chart.Snapshot(h)
	if err != nil {
		return snap, err
	}
	if dm, ok := harel.HostData(m.host); ok {
		snap.Data = dm.All()
	}
	return snap, nil
}

// Err returns the last error raised by an action or a microstep limit.
// Ignored events are not errors.
func (m *Machine) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Restore replaces the current handle with one decoded from snap, and the
// host data model with snap.Data when both are present. It may be called
// before Start, in which case no initial entry actions run.
func (m *Machine) Restore(snap harel.Snapshot) error {
	h, err := m.chart.Restore(snap)
	if err != nil {
		return fmt.Errorf("restore machine %s: %w", m.id, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if dm, ok := harel.HostData(m.host); ok && snap.Data != nil {
		dm.Load(snap.Data)
	}
	m.handle = h
	m.restored = true
	return nil
}

// Load restores the snapshot the store holds for this machine id.
func (m *Machine) Load(ctx context.Context) error {
	if m.store == nil {
		return errors.New("no store configured")
	}
	snap, err := m.store.Load(ctx, m.id)
	if err != nil {
		return err
	}
	return m.Restore(snap)
}

// Stop shuts the event loop down and waits for it, then saves a clock that
// advanced since the last save. Events still queued are discarded. Safe to
// call more than once.
func (m *Machine) Stop() error {
	m.stopOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirty {
		m.persist(context.Background(), m.handle)
	}
	return nil
}
