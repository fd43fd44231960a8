package harel

import (
	"context"
	"time"
)

// StateEvent reports a state entered or exited during a microstep.
type StateEvent struct {
	Chart   string
	State   StateID
	Label   string
	Kind    StateKind
	Elapsed time.Duration
}

// TransitionEvent reports a fired transition. Target is NoState for
// targetless transitions; Event is empty for eventless ones.
type TransitionEvent struct {
	Chart  string
	Index  int
	Source StateID
	Target StateID
	Event  string
}

// MacrostepEvent reports the outcome of one Start or Update call.
type MacrostepEvent struct {
	Chart         string
	Event         string
	Microsteps    int
	Configuration []StateID
	Duration      time.Duration
	Ignored       bool
	Err           error
}

// LifecycleHooks defines callbacks for engine observability. Nil fields
// are skipped. Hooks run synchronously on the goroutine calling Update.
type LifecycleHooks struct {
	OnStateEnter func(context.Context, *StateEvent)
	OnStateExit  func(context.Context, *StateEvent)
	OnTransition func(context.Context, *TransitionEvent)
	OnMacrostep  func(context.Context, *MacrostepEvent)
}

type hookSet []LifecycleHooks

func (hs hookSet) stateEnter(ctx context.Context, ev *StateEvent) {
	for _, h := range hs {
		if h.OnStateEnter != nil {
			h.OnStateEnter(ctx, ev)
		}
	}
}

func (hs hookSet) stateExit(ctx context.Context, ev *StateEvent) {
	for _, h := range hs {
		if h.OnStateExit != nil {
			h.OnStateExit(ctx, ev)
		}
	}
}

func (hs hookSet) transition(ctx context.Context, ev *TransitionEvent) {
	for _, h := range hs {
		if h.OnTransition != nil {
			h.OnTransition(ctx, ev)
		}
	}
}

func (hs hookSet) macrostep(ctx context.Context, ev *MacrostepEvent) {
	for _, h := range hs {
		if h.OnMacrostep != nil {
			h.OnMacrostep(ctx, ev)
		}
	}
}
