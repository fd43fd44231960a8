// Package testutil holds helpers shared by tests of charts and hosts:
// configuration assertions, an action trace recorder and adapters that run
// the same scenario on the event-driven and tick-based hosts.
package testutil

import (
	"context"
	"time"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/core"
	"github.com/comalice/harel/realtime"
)

// RuntimeAdapter provides a common interface for the event-driven and
// tick-based hosts, so one test suite can run on both.
type RuntimeAdapter interface {
	Start(ctx context.Context) error
	Stop() error
	SendEvent(event harel.Event) error
	Current() harel.StateMachine
	InState(label string) bool
	// WaitForStability returns once every event sent so far was applied.
	WaitForStability(ctx context.Context) error
}

// EventDrivenAdapter wraps a core.Machine.
type EventDrivenAdapter struct {
	chart *harel.Chart
	m     *core.Machine
}

// NewEventDrivenAdapter creates an adapter over a new machine for chart.
func NewEventDrivenAdapter(chart *harel.Chart, opts ...core.Option) *EventDrivenAdapter {
	return &EventDrivenAdapter{chart: chart, m: core.NewMachine(chart, opts...)}
}

func (a *EventDrivenAdapter) Start(ctx context.Context) error { return a.m.Start(ctx) }
func (a *EventDrivenAdapter) Stop() error                     { return a.m.Stop() }

func (a *EventDrivenAdapter) SendEvent(event harel.Event) error {
	return a.m.Send(event)
}

func (a *EventDrivenAdapter) Current() harel.StateMachine { return a.m.Current() }

func (a *EventDrivenAdapter) InState(label string) bool {
	return a.m.Current().In(a.chart, label)
}

func (a *EventDrivenAdapter) WaitForStability(ctx context.Context) error {
	return a.m.Sync(ctx)
}

// TickBasedAdapter wraps a realtime.Runtime.
type TickBasedAdapter struct {
	chart *harel.Chart
	rt    *realtime.Runtime
}

// NewTickBasedAdapter creates an adapter over a new runtime ticking at
// tickRate.
func NewTickBasedAdapter(chart *harel.Chart, tickRate time.Duration) *TickBasedAdapter {
	return &TickBasedAdapter{
		chart: chart,
		rt:    realtime.NewRuntime(chart, realtime.Config{TickRate: tickRate}),
	}
}

func (a *TickBasedAdapter) Start(ctx context.Context) error { return a.rt.Start(ctx) }
func (a *TickBasedAdapter) Stop() error                     { return a.rt.Stop() }

func (a *TickBasedAdapter) SendEvent(event harel.Event) error {
	return a.rt.SendEvent(event)
}

func (a *TickBasedAdapter) Current() harel.StateMachine { return a.rt.Current() }

func (a *TickBasedAdapter) InState(label string) bool {
	return a.rt.Current().In(a.chart, label)
}

// WaitForStability waits for two tick boundaries: the batch being collected
// when it is called is applied by the second one at the latest.
func (a *TickBasedAdapter) WaitForStability(ctx context.Context) error {
	target := a.rt.TickNumber() + 2
	poll := time.NewTicker(a.rt.TickRate() / 4)
	defer poll.Stop()
	for a.rt.TickNumber() < target {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}
	return nil
}
