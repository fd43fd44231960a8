package harel

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// Trigger is the input of one Update: an external event or a bare tick that
// only runs eventless transitions.
type Trigger struct {
	event Event
}

// On wraps an event as a trigger.
func On(e Event) Trigger { return Trigger{event: e} }

// Tick returns the eventless trigger.
func Tick() Trigger { return Trigger{} }

// Event returns the wrapped event, nil for Tick.
func (t Trigger) Event() Event { return t.event }

func (t Trigger) IsTick() bool { return t.event == nil }

func (t Trigger) String() string {
	if t.event == nil {
		return "tick"
	}
	return t.event.Name()
}

// Engine runs macrosteps. An Engine holds no per-instance state and can serve
// any number of charts and handles concurrently.
type Engine struct {
	logger        *slog.Logger
	host          any
	hooks         hookSet
	maxMicrosteps int
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		logger:        slog.New(slog.DiscardHandler),
		maxMicrosteps: DefaultMaxMicrosteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = NewEngine()

// Start runs the initial macrostep of c with the default engine.
func Start(ctx context.Context, c *Chart) (StateMachine, error) {
	return defaultEngine.Start(ctx, c)
}

// Update runs one macrostep with the default engine.
func Update(ctx context.Context, c *Chart, h StateMachine, t Trigger) (StateMachine, error) {
	return defaultEngine.Update(ctx, c, h, t)
}

// Start enters the chart's initial configuration, running entry actions, and
// settles it: eventless transitions and raised events are processed until
// none remain.
func (e *Engine) Start(ctx context.Context, c *Chart) (StateMachine, error) {
	if c == nil {
		return StateMachine{}, &Error{Kind: KindUnknownState, Err: errors.New("nil chart")}
	}
	started := time.Now()
	s := e.newStep(ctx, c, StateMachine{
		active:  newBitset(c.Len()),
		entered: make([]time.Duration, c.Len()),
	})
	err := s.enterInitial()
	if err == nil {
		_, err = s.settle()
	}
	if err != nil {
		e.fail(ctx, c, "", s, started, err)
		return StateMachine{}, err
	}
	out := s.handle()
	e.done(ctx, c, "", s, out, started)
	return out, nil
}

// Update processes one trigger against h and returns the next handle.
//
// For each active leaf the innermost state with enabled transitions
// contributes all of them. Those whose exit sets intersect an earlier one in
// document order are dropped and the rest fire as one microstep.
// Eventless transitions and internal events are then processed until the
// configuration is stable.
//
// On any error the input handle is returned unchanged. A trigger that fires
// nothing yields ErrNoApplicableTransition; see IsIgnorable.
func (e *Engine) Update(ctx context.Context, c *Chart, h StateMachine, t Trigger) (StateMachine, error) {
	if c == nil {
		return h, &Error{Kind: KindUnknownState, Err: errors.New("nil chart")}
	}
	if err := c.checkHandle(h); err != nil {
		return h, err
	}
	started := time.Now()
	s := e.newStep(ctx, c, h)
	ev := t.event
	if ev != nil {
		s.trigger = ev.Name()
	}

	fired := 0
	if !h.Halted(c) {
		if ev != nil {
			ts, err := s.selectTransitions(ev)
			if err == nil && len(ts) > 0 {
				err = s.microstep(ts, ev)
				fired++
			}
			if err != nil {
				e.fail(ctx, c, s.trigger, s, started, err)
				return h, err
			}
		}
		n, err := s.settle()
		if err != nil {
			e.fail(ctx, c, s.trigger, s, started, err)
			return h, err
		}
		fired += n
	}

	if fired == 0 {
		err := &Error{Kind: KindNoApplicableTransition, Chart: c.name, Event: t.String()}
		e.logger.DebugContext(ctx, "trigger ignored", "chart", c.name, "trigger", t.String())
		e.hooks.macrostep(ctx, &MacrostepEvent{
			Chart:         c.name,
			Event:         s.trigger,
			Configuration: h.Configuration(),
			Duration:      time.Since(started),
			Ignored:       true,
			Err:           err,
		})
		return h, err
	}
	out := s.handle()
	e.done(ctx, c, s.trigger, s, out, started)
	return out, nil
}

func (e *Engine) done(ctx context.Context, c *Chart, trigger string, s *step, out StateMachine, started time.Time) {
	if e.logger.Enabled(ctx, slog.LevelDebug) {
		e.logger.DebugContext(ctx, "macrostep complete",
			"chart", c.name,
			"trigger", trigger,
			"microsteps", s.micro,
			"configuration", out.Labels(c),
		)
	}
	e.hooks.macrostep(ctx, &MacrostepEvent{
		Chart:         c.name,
		Event:         trigger,
		Microsteps:    s.micro,
		Configuration: out.Configuration(),
		Duration:      time.Since(started),
	})
}

func (e *Engine) fail(ctx context.Context, c *Chart, trigger string, s *step, started time.Time, err error) {
	e.logger.WarnContext(ctx, "macrostep failed", "chart", c.name, "trigger", trigger, "error", err)
	e.hooks.macrostep(ctx, &MacrostepEvent{
		Chart:      c.name,
		Event:      trigger,
		Microsteps: s.micro,
		Duration:   time.Since(started),
		Err:        err,
	})
}

// step is the mutable working state of one macrostep. It owns private
// copies of the handle's data; the input handle is never touched.
type step struct {
	e       *Engine
	ctx     context.Context
	c       *Chart
	active  bitset
	entered []time.Duration
	elapsed time.Duration
	queue   []Event
	micro   int
	halted  bool
	trigger string
}

func (e *Engine) newStep(ctx context.Context, c *Chart, h StateMachine) *step {
	return &step{
		e:       e,
		ctx:     ctx,
		c:       c,
		active:  h.active.clone(),
		entered: slices.Clone(h.entered),
		elapsed: h.elapsed,
	}
}

func (s *step) handle() StateMachine {
	return StateMachine{active: s.active, entered: s.entered, elapsed: s.elapsed}
}

func (s *step) raise(ev Event) {
	s.queue = append(s.queue, ev)
}

// settle runs eventless transitions to completion, then drains the internal
// queue one event at a time, closing over eventless transitions again after
// each. It returns the number of microsteps taken.
func (s *step) settle() (int, error) {
	n := 0
	for !s.halted {
		ts, err := s.selectTransitions(nil)
		if err != nil {
			return n, err
		}
		var ev Event
		if len(ts) == 0 {
			if len(s.queue) == 0 {
				break
			}
			ev = s.queue[0]
			s.queue = s.queue[1:]
			if ts, err = s.selectTransitions(ev); err != nil {
				return n, err
			}
			if len(ts) == 0 {
				continue
			}
		}
		if err := s.microstep(ts, ev); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// selectTransitions returns the enabled, non-conflicting transitions for ev
// (nil selects eventless transitions) in document order.
func (s *step) selectTransitions(ev Event) ([]*Transition, error) {
	var enabled []*Transition
	var err error
	s.active.each(func(leaf StateID) {
		if err != nil || !s.c.states[leaf].IsLeaf() {
			return
		}
		for st := leaf; st != NoState; st = s.c.parent(st) {
			var ts []*Transition
			if ts, err = s.enabledAt(st, ev); err != nil {
				return
			}
			for _, t := range ts {
				if !slices.Contains(enabled, t) {
					enabled = append(enabled, t)
				}
			}
			if len(ts) > 0 {
				return
			}
		}
	})
	if err != nil || len(enabled) < 2 {
		return enabled, err
	}

	slices.SortFunc(enabled, func(a, b *Transition) int { return cmp.Compare(a.index, b.index) })
	claimed := newBitset(s.c.Len())
	out := enabled[:0]
	for _, t := range enabled {
		exit := s.exitSet(t)
		if exit.intersects(claimed) {
			s.e.logger.DebugContext(s.ctx, "transition preempted",
				"chart", s.c.name, "source", s.c.Label(t.source), "index", t.index)
			continue
		}
		claimed.union(exit)
		out = append(out, t)
	}
	return out, nil
}

// enabledAt returns every transition of st that matches ev and whose
// condition holds, in document order. Overlapping ones are dropped later by
// exit-set conflict resolution.
func (s *step) enabledAt(st StateID, ev Event) ([]*Transition, error) {
	var out []*Transition
	for _, t := range s.c.states[st].transitions {
		if !t.matches(ev) {
			continue
		}
		ok, err := s.evaluate(t, ev)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *step) evaluate(t *Transition, ev Event) (ok bool, err error) {
	if t.condition == nil {
		return true, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &Error{
				Kind:  KindActionFailed,
				Chart: s.c.name,
				State: s.c.Label(t.source),
				Event: s.trigger,
				Err:   fmt.Errorf("condition %s panicked: %v", describeCondition(t.condition), r),
			}
		}
	}()
	return t.condition.Evaluate(ConditionContext{
		Chart:      s.c,
		Event:      ev,
		Source:     t.source,
		InStateFor: s.elapsed - s.entered[t.source],
		Host:       s.e.host,
		active:     s.active.has,
	}), nil
}

// exitSet is the set of active proper descendants of the transition domain.
func (s *step) exitSet(t *Transition) bitset {
	if t.target == NoState {
		return newBitset(s.c.Len())
	}
	lo, hi := s.c.subtree(t.domain)
	return s.active.maskRange(lo, hi)
}

// microstep fires ts: exits innermost-first, transition actions in document
// order, entries outermost-first.
func (s *step) microstep(ts []*Transition, ev Event) error {
	if err := s.ctx.Err(); err != nil {
		return err
	}
	s.micro++
	if s.micro > s.e.maxMicrosteps {
		return &Error{
			Kind:  KindMicrostepLimit,
			Chart: s.c.name,
			Event: s.trigger,
			Err:   fmt.Errorf("more than %d microsteps", s.e.maxMicrosteps),
		}
	}

	exit := newBitset(s.c.Len())
	entry := newBitset(s.c.Len())
	for _, t := range ts {
		if t.target == NoState {
			continue
		}
		exit.union(s.exitSet(t))
		for _, id := range t.entry {
			entry.set(id)
		}
	}

	exits := exit.members()
	for i := len(exits) - 1; i >= 0; i-- {
		id := exits[i]
		if err := s.run(s.c.states[id].onExit, s.actionContext(ev, id, NoState, PhaseExit)); err != nil {
			return err
		}
		s.e.hooks.stateExit(s.ctx, s.stateEvent(id))
		s.active.clear(id)
	}

	evName := ""
	if ev != nil {
		evName = ev.Name()
	}
	for _, t := range ts {
		if err := s.run(t.actions, s.actionContext(ev, t.source, t.target, PhaseTransition)); err != nil {
			return err
		}
		s.e.hooks.transition(s.ctx, &TransitionEvent{
			Chart:  s.c.name,
			Index:  t.index,
			Source: t.source,
			Target: t.target,
			Event:  evName,
		})
	}

	entries := entry.members()
	if err := s.enter(entries, ev); err != nil {
		return err
	}

	if s.e.logger.Enabled(s.ctx, slog.LevelDebug) {
		s.e.logger.DebugContext(s.ctx, "microstep",
			"chart", s.c.name,
			"event", evName,
			"transitions", len(ts),
			"exited", s.labels(exits),
			"entered", s.labels(entries),
		)
	}
	return nil
}

func (s *step) enterInitial() error {
	s.micro++
	return s.enter(s.c.initialEntry, nil)
}

// enter activates ids in document order and records completion.
func (s *step) enter(ids []StateID, ev Event) error {
	for _, id := range ids {
		s.active.set(id)
		s.entered[id] = s.elapsed
		if err := s.run(s.c.states[id].onEntry, s.actionContext(ev, id, NoState, PhaseEntry)); err != nil {
			return err
		}
		s.e.hooks.stateEnter(s.ctx, s.stateEvent(id))
		if s.c.states[id].kind == Final {
			s.completed(id)
		}
	}
	return nil
}

// completed raises the done events caused by entering the final state id.
// A parallel state completes once every region is in a final state; the
// event is raised by the entry that completes the last region.
func (s *step) completed(id StateID) {
	p := s.c.parent(id)
	if p == NoState {
		s.halted = true
		s.e.logger.DebugContext(s.ctx, "instance halted", "chart", s.c.name, "state", s.c.Label(id))
		return
	}
	switch s.c.kind(p) {
	case Compound:
		s.raise(NewEvent(DoneEventName(s.c.Label(p)), nil))
		if gp := s.c.parent(p); gp != NoState && s.c.kind(gp) == Parallel && s.regionsDone(gp) {
			s.raise(NewEvent(DoneEventName(s.c.Label(gp)), nil))
		}
	case Parallel:
		if s.regionsDone(p) {
			s.raise(NewEvent(DoneEventName(s.c.Label(p)), nil))
		}
	}
}

func (s *step) regionsDone(p StateID) bool {
	for _, region := range s.c.states[p].substates {
		if !s.inFinal(region) {
			return false
		}
	}
	return true
}

func (s *step) inFinal(id StateID) bool {
	n := &s.c.states[id]
	switch n.kind {
	case Final:
		return s.active.has(id)
	case Compound:
		for _, ch := range n.substates {
			if s.active.has(ch) && s.c.states[ch].kind == Final {
				return true
			}
		}
	case Parallel:
		return s.regionsDone(id)
	}
	return false
}

func (s *step) actionContext(ev Event, state, target StateID, phase Phase) ActionContext {
	return ActionContext{
		Chart:   s.c,
		Event:   ev,
		State:   state,
		Target:  target,
		Phase:   phase,
		Elapsed: s.elapsed,
		Host:    s.e.host,
		raise:   s.raise,
	}
}

func (s *step) run(actions []Action, ac ActionContext) error {
	for _, a := range actions {
		if err := s.execute(a, ac); err != nil {
			return err
		}
	}
	return nil
}

func (s *step) execute(a Action, ac ActionContext) (err error) {
	fail := func(cause error) error {
		return &Error{
			Kind:   KindActionFailed,
			Chart:  s.c.name,
			State:  s.c.Label(ac.State),
			Event:  s.trigger,
			Action: a.Name(),
			Err:    cause,
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = fail(fmt.Errorf("%s action panicked: %v", ac.Phase, r))
		}
	}()
	if err := a.Execute(s.ctx, ac); err != nil {
		return fail(err)
	}
	return nil
}

func (s *step) stateEvent(id StateID) *StateEvent {
	return &StateEvent{
		Chart:   s.c.name,
		State:   id,
		Label:   s.c.Label(id),
		Kind:    s.c.kind(id),
		Elapsed: s.elapsed,
	}
}

func (s *step) labels(ids []StateID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = s.c.Label(id)
	}
	return out
}
