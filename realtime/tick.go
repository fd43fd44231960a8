package realtime

import (
	"context"
	"log/slog"

	"github.com/comalice/harel"
)

// Step processes one complete tick. It does nothing before Init or Start.
func (rt *Runtime) Step(ctx context.Context) {
	rt.stateMu.Lock()
	defer rt.stateMu.Unlock()
	if !rt.started {
		return
	}

	events := rt.collectEvents()
	sortEvents(events)
	for _, em := range events {
		rt.apply(ctx, harel.On(em.Event))
	}
	rt.handle = rt.handle.Advance(rt.tickRate)
	rt.apply(ctx, harel.Tick())

	rt.batchMu.Lock()
	rt.tickNum++
	rt.batchMu.Unlock()
}

// collectEvents atomically takes the batch.
func (rt *Runtime) collectEvents() []EventWithMeta {
	rt.batchMu.Lock()
	defer rt.batchMu.Unlock()
	events := rt.eventBatch
	rt.eventBatch = make([]EventWithMeta, 0, cap(events))
	return events
}

// apply runs one trigger. Called with stateMu held.
func (rt *Runtime) apply(ctx context.Context, t harel.Trigger) {
	next, err := rt.engine.Update(ctx, rt.chart, rt.handle, t)
	switch {
	case err == nil:
		rt.handle = next
	case harel.IsIgnorable(err):
	default:
		rt.lastErr = err
		rt.logger.WarnContext(ctx, "trigger failed", slog.String("trigger", t.String()), slog.Any("error", err))
	}
}
