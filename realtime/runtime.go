package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/comalice/harel"
)

const (
	defaultTickRate  = 16667 * time.Microsecond // 60 FPS
	defaultMaxEvents = 1000
)

var (
	ErrQueueFull = errors.New("event queue full")
	ErrRunning   = errors.New("runtime already running")
)

// Config configures a Runtime. Zero fields take defaults.
type Config struct {
	// TickRate is the fixed tick period and the amount the handle clock
	// advances per tick. Default 16.67ms.
	TickRate time.Duration
	// MaxEventsPerTick caps the batch collected between two ticks. Default 1000.
	MaxEventsPerTick int
	Logger           *slog.Logger
	EngineOptions    []harel.Option
}

// Runtime runs one chart instance on a fixed tick.
type Runtime struct {
	chart    *harel.Chart
	engine   *harel.Engine
	logger   *slog.Logger
	tickRate time.Duration

	batchMu     sync.Mutex
	eventBatch  []EventWithMeta
	maxEvents   int
	sequenceNum uint64
	tickNum     uint64

	stateMu sync.RWMutex
	handle  harel.StateMachine
	lastErr error
	started bool

	runMu   sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewRuntime creates a stopped runtime for chart.
func NewRuntime(chart *harel.Chart, cfg Config) *Runtime {
	if cfg.TickRate <= 0 {
		cfg.TickRate = defaultTickRate
	}
	if cfg.MaxEventsPerTick <= 0 {
		cfg.MaxEventsPerTick = defaultMaxEvents
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	opts := append([]harel.Option{harel.WithLogger(cfg.Logger)}, cfg.EngineOptions...)
	return &Runtime{
		chart:      chart,
		engine:     harel.NewEngine(opts...),
		logger:     cfg.Logger.With(slog.String("chart", chart.Name())),
		tickRate:   cfg.TickRate,
		eventBatch: make([]EventWithMeta, 0, cfg.MaxEventsPerTick),
		maxEvents:  cfg.MaxEventsPerTick,
	}
}

// Init enters the initial configuration without starting the tick loop.
// Start calls it when needed.
func (rt *Runtime) Init(ctx context.Context) error {
	rt.stateMu.Lock()
	defer rt.stateMu.Unlock()
	if rt.started {
		return nil
	}
	h, err := rt.engine.Start(ctx, rt.chart)
	if err != nil {
		return err
	}
	rt.handle = h
	rt.started = true
	return nil
}

// Start enters the initial configuration and begins ticking.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.runMu.Lock()
	defer rt.runMu.Unlock()
	if rt.cancel != nil {
		return ErrRunning
	}
	if err := rt.Init(ctx); err != nil {
		return err
	}

	tickCtx, cancel := context.WithCancel(ctx)
	rt.cancel = cancel
	rt.stopped = make(chan struct{})
	go rt.tickLoop(tickCtx, rt.stopped)
	return nil
}

// Stop ends the tick loop and waits for the running tick to finish. Events
// still batched stay queued for a later Start or Step.
func (rt *Runtime) Stop() error {
	rt.runMu.Lock()
	defer rt.runMu.Unlock()
	if rt.cancel == nil {
		return nil
	}
	rt.cancel()
	<-rt.stopped
	rt.cancel = nil
	return nil
}

func (rt *Runtime) tickLoop(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(rt.tickRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rt.Step(context.WithoutCancel(ctx))
		}
	}
}

// SendEvent queues an event for the next tick. Safe for concurrent use.
func (rt *Runtime) SendEvent(event harel.Event) error {
	return rt.SendEventWithPriority(event, 0)
}

// SendEventWithPriority queues an event; higher priorities are applied first
// within a tick.
func (rt *Runtime) SendEventWithPriority(event harel.Event, priority int) error {
	if event == nil {
		return errors.New("nil event")
	}
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()

	if len(rt.eventBatch) >= rt.maxEvents {
		return ErrQueueFull
	}
	rt.eventBatch = append(rt.eventBatch, EventWithMeta{
		Event:       event,
		SequenceNum: rt.sequenceNum,
		Priority:    priority,
	})
	rt.sequenceNum++
	return nil
}

// TickNumber returns the number of completed ticks.
func (rt *Runtime) TickNumber() uint64 {
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()
	return rt.tickNum
}

// Current returns the current handle.
func (rt *Runtime) Current() harel.StateMachine {
	rt.stateMu.RLock()
	defer rt.stateMu.RUnlock()
	return rt.handle
}

// Err returns the last error other than an ignored event.
func (rt *Runtime) Err() error {
	rt.stateMu.RLock()
	defer rt.stateMu.RUnlock()
	return rt.lastErr
}

// TickRate returns the configured tick period.
func (rt *Runtime) TickRate() time.Duration { return rt.tickRate }
