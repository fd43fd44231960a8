package harel

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"
)

// Event is a named stimulus delivered to a statechart. Implementations must
// be immutable once handed to the engine.
type Event interface {
	ID() EventID
	Name() string
	Properties() map[string]string
}

// ActionID identifies an action. Actions built with NewAction hash their name.
type ActionID uint64

// Action is a side effect run on state entry, state exit or when a
// transition fires. Returning an error aborts the running Update.
type Action interface {
	ID() ActionID
	Name() string
	Execute(ctx context.Context, ac ActionContext) error
}

// Condition guards a transition. Evaluate must be free of side effects: it
// may be called for transitions that end up not firing.
type Condition interface {
	Evaluate(cc ConditionContext) bool
}

// Phase tells an action where in the microstep it runs.
type Phase uint8

const (
	PhaseExit Phase = iota + 1
	PhaseTransition
	PhaseEntry
)

func (p Phase) String() string {
	switch p {
	case PhaseExit:
		return "exit"
	case PhaseTransition:
		return "transition"
	case PhaseEntry:
		return "entry"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// ActionContext is passed to every executed action.
type ActionContext struct {
	Chart *Chart
	// Event is the trigger being processed; nil during eventless steps.
	Event Event
	// State is the state whose entry or exit list is running, or the source
	// of the firing transition.
	State StateID
	// Target is the transition target, NoState for entry/exit actions and
	// targetless transitions.
	Target  StateID
	Phase   Phase
	Elapsed time.Duration
	// Host is the value installed with WithHost.
	Host any

	raise func(Event)
}

// Raise queues e on the internal queue of the running macrostep. Internal
// events are processed after the eventless closure, in FIFO order.
func (ac ActionContext) Raise(e Event) {
	if ac.raise != nil && e != nil {
		ac.raise(e)
	}
}

// ConditionContext is passed to Condition.Evaluate.
type ConditionContext struct {
	Chart *Chart
	// Event is nil for eventless transitions.
	Event  Event
	Source StateID
	// InStateFor is the time the source state has been active, measured on
	// the handle clock.
	InStateFor time.Duration
	Host       any

	active func(StateID) bool
}

// IsActive reports whether the state is in the configuration being evaluated.
func (cc ConditionContext) IsActive(id StateID) bool {
	return cc.active != nil && cc.active(id)
}

// InState reports whether the state with the given label is active.
func (cc ConditionContext) InState(label string) bool {
	if cc.Chart == nil {
		return false
	}
	id, ok := cc.Chart.Lookup(label)
	return ok && cc.IsActive(id)
}

// ActionFunc adapts a plain function to the Action interface.
type ActionFunc func(ctx context.Context, ac ActionContext) error

func (f ActionFunc) ID() ActionID { return 0 }
func (f ActionFunc) Name() string { return "func" }

func (f ActionFunc) Execute(ctx context.Context, ac ActionContext) error {
	return f(ctx, ac)
}

type namedAction struct {
	id   ActionID
	name string
	fn   ActionFunc
}

// NewAction returns a named Action whose id is derived from its name.
func NewAction(name string, fn ActionFunc) Action {
	h := fnv.New64a()
	h.Write([]byte("harel/action/v1"))
	h.Write([]byte{0x00})
	h.Write([]byte(name))
	return &namedAction{id: ActionID(h.Sum64()), name: name, fn: fn}
}

func (a *namedAction) ID() ActionID { return a.id }
func (a *namedAction) Name() string { return a.name }

func (a *namedAction) Execute(ctx context.Context, ac ActionContext) error {
	return a.fn(ctx, ac)
}

// ConditionFunc adapts a plain predicate to the Condition interface.
type ConditionFunc func(cc ConditionContext) bool

func (f ConditionFunc) Evaluate(cc ConditionContext) bool { return f(cc) }

// Guard is a named predicate. The name shows up in logs and chart exports.
type Guard struct {
	Name string
	Fn   func(cc ConditionContext) bool
}

func (g Guard) Evaluate(cc ConditionContext) bool { return g.Fn(cc) }
func (g Guard) String() string                    { return g.Name }

// Delay holds once the source state has been active for at least the given
// duration on the handle clock. See StateMachine.Advance.
type Delay time.Duration

// After returns a Delay condition.
func After(d time.Duration) Delay { return Delay(d) }

func (d Delay) Evaluate(cc ConditionContext) bool {
	return cc.InStateFor >= time.Duration(d)
}

func (d Delay) String() string { return "after " + time.Duration(d).String() }

type notCondition struct{ c Condition }

// Not negates c.
func Not(c Condition) Condition { return notCondition{c} }

func (n notCondition) Evaluate(cc ConditionContext) bool { return !n.c.Evaluate(cc) }
func (n notCondition) String() string                    { return "!" + describeCondition(n.c) }

type allCondition []Condition

// All holds when every condition holds. An empty All always holds.
func All(cs ...Condition) Condition { return allCondition(cs) }

func (a allCondition) Evaluate(cc ConditionContext) bool {
	for _, c := range a {
		if !c.Evaluate(cc) {
			return false
		}
	}
	return true
}

func (a allCondition) String() string {
	s := ""
	for i, c := range a {
		if i > 0 {
			s += " && "
		}
		s += describeCondition(c)
	}
	return s
}

type inState string

// InState holds while the state with the given label is active.
func InState(label string) Condition { return inState(label) }

func (s inState) Evaluate(cc ConditionContext) bool { return cc.InState(string(s)) }
func (s inState) String() string                    { return "in(" + string(s) + ")" }

// describeCondition renders a condition for logs and exports.
func describeCondition(c Condition) string {
	if c == nil {
		return ""
	}
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return "cond"
}

// DescribeCondition renders a condition the way chart exports show it.
func DescribeCondition(c Condition) string { return describeCondition(c) }

// DelayOf returns the delay of a Delay condition, including one nested in All.
func DelayOf(c Condition) (time.Duration, bool) {
	switch v := c.(type) {
	case Delay:
		return time.Duration(v), true
	case allCondition:
		for _, sub := range v {
			if d, ok := DelayOf(sub); ok {
				return d, true
			}
		}
	}
	return 0, false
}
