package harel

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Builder constructs a Chart. States are declared through a tree of
// StateBuilders and targets are referenced by label, so forward references
// are fine: they are resolved when Build runs.
//
// A Builder is not safe for concurrent use. Build can be called more than
// once; every call yields an independent Chart.
type Builder struct {
	name    string
	initial string
	roots   []*StateBuilder
}

// StateBuilder configures one state.
type StateBuilder struct {
	b           *Builder
	parent      *StateBuilder
	label       string
	parallel    bool
	final       bool
	initial     string
	onEntry     []Action
	onExit      []Action
	children    []*StateBuilder
	transitions []*TransitionBuilder
}

// TransitionBuilder configures one outgoing transition of a state.
type TransitionBuilder struct {
	sb       *StateBuilder
	events   []string
	target   string
	cond     Condition
	internal bool
	actions  []Action
}

// NewBuilder creates a builder for a chart with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Initial sets the state the chart starts in. It defaults to the first
// root-level state.
func (b *Builder) Initial(label string) *Builder {
	b.initial = label
	return b
}

// State declares a root-level state.
func (b *Builder) State(label string) *StateBuilder {
	sb := &StateBuilder{b: b, label: label}
	b.roots = append(b.roots, sb)
	return sb
}

// Parallel declares a root-level parallel state.
func (b *Builder) Parallel(label string) *StateBuilder {
	return b.State(label).SetParallel(true)
}

// Final declares a root-level final state. Entering it halts the instance.
func (b *Builder) Final(label string) *StateBuilder {
	sb := b.State(label)
	sb.final = true
	return sb
}

//
// StateBuilder
//

// State declares a substate and returns its builder.
func (sb *StateBuilder) State(label string) *StateBuilder {
	child := &StateBuilder{b: sb.b, parent: sb, label: label}
	sb.children = append(sb.children, child)
	return child
}

// Parallel declares a parallel substate.
func (sb *StateBuilder) Parallel(label string) *StateBuilder {
	return sb.State(label).SetParallel(true)
}

// Final declares a final substate.
func (sb *StateBuilder) Final(label string) *StateBuilder {
	child := sb.State(label)
	child.final = true
	return child
}

// SetParallel selects Parallel over Compound once the state has substates.
// It has no effect on a state without substates.
func (sb *StateBuilder) SetParallel(parallel bool) *StateBuilder {
	sb.parallel = parallel
	return sb
}

// Initial names the default substate of a compound state.
func (sb *StateBuilder) Initial(label string) *StateBuilder {
	sb.initial = label
	return sb
}

// OnEntry appends entry actions. They run in the order given.
func (sb *StateBuilder) OnEntry(actions ...Action) *StateBuilder {
	sb.onEntry = append(sb.onEntry, actions...)
	return sb
}

// OnExit appends exit actions.
func (sb *StateBuilder) OnExit(actions ...Action) *StateBuilder {
	sb.onExit = append(sb.onExit, actions...)
	return sb
}

// On starts a transition triggered by any of the event descriptors.
func (sb *StateBuilder) On(events ...string) *TransitionBuilder {
	tb := &TransitionBuilder{sb: sb, events: events}
	if events == nil {
		tb.events = []string{}
	}
	sb.transitions = append(sb.transitions, tb)
	return tb
}

// Always starts an eventless transition.
func (sb *StateBuilder) Always() *TransitionBuilder {
	tb := &TransitionBuilder{sb: sb}
	sb.transitions = append(sb.transitions, tb)
	return tb
}

// OnDone starts a transition taken when this state completes.
func (sb *StateBuilder) OnDone() *TransitionBuilder {
	return sb.On(DoneEventName(sb.label))
}

// After starts an eventless transition that becomes enabled once the state
// has been active for d on the handle clock.
func (sb *StateBuilder) After(d time.Duration) *TransitionBuilder {
	return sb.Always().When(After(d))
}

// Up returns the parent builder, or sb itself at the root level.
func (sb *StateBuilder) Up() *StateBuilder {
	if sb.parent == nil {
		return sb
	}
	return sb.parent
}

// Chart returns the Builder the state belongs to.
func (sb *StateBuilder) Chart() *Builder { return sb.b }

func (sb *StateBuilder) Label() string { return sb.label }

// IsParallel reports whether the parallel flag is set.
func (sb *StateBuilder) IsParallel() bool { return sb.parallel }

// HasInitial reports whether an initial substate has been named.
func (sb *StateBuilder) HasInitial() bool { return sb.initial != "" }

//
// TransitionBuilder
//

// To sets the target. Transitions without a target run their actions
// without leaving the source.
func (tb *TransitionBuilder) To(label string) *TransitionBuilder {
	tb.target = label
	return tb
}

// When adds a guard. Several guards must all hold.
func (tb *TransitionBuilder) When(c Condition) *TransitionBuilder {
	switch {
	case c == nil:
	case tb.cond == nil:
		tb.cond = c
	default:
		tb.cond = All(tb.cond, c)
	}
	return tb
}

// If adds a named guard built from a predicate.
func (tb *TransitionBuilder) If(name string, fn func(cc ConditionContext) bool) *TransitionBuilder {
	return tb.When(Guard{Name: name, Fn: fn})
}

// Do appends transition actions.
func (tb *TransitionBuilder) Do(actions ...Action) *TransitionBuilder {
	tb.actions = append(tb.actions, actions...)
	return tb
}

// Internal makes a transition to a descendant of its compound source keep
// the source active.
func (tb *TransitionBuilder) Internal() *TransitionBuilder {
	tb.internal = true
	return tb
}

// End returns the source state's builder.
func (tb *TransitionBuilder) End() *StateBuilder { return tb.sb }

//
// Build
//

type buildState struct {
	problems []error
}

func (bs *buildState) fail(format string, args ...any) {
	bs.problems = append(bs.problems, fmt.Errorf(format, args...))
}

// MustBuild is Build for charts known to be valid. It panics on error.
func (b *Builder) MustBuild() *Chart {
	c, err := b.Build()
	if err != nil {
		panic(err)
	}
	return c
}

// Build validates the declared states and freezes them into a Chart.
// Every problem found is reported in a single ErrMalformedChart error.
func (b *Builder) Build() (*Chart, error) {
	c := &Chart{
		name:   b.name,
		labels: make(map[string]StateID),
	}
	bs := &buildState{}
	if len(b.roots) == 0 {
		bs.fail("chart declares no states")
		return nil, b.malformed(bs)
	}

	// Pre-order id assignment.
	var builders []*StateBuilder
	var walk func(sb *StateBuilder, parent StateID, depth int) StateID
	walk = func(sb *StateBuilder, parent StateID, depth int) StateID {
		id := StateID(len(c.states))
		c.states = append(c.states, StateNode{
			id:      id,
			label:   sb.label,
			parent:  parent,
			depth:   depth,
			initial: NoState,
		})
		builders = append(builders, sb)
		switch prev, dup := c.labels[sb.label]; {
		case sb.label == "":
			bs.fail("state %d has an empty label", id)
		case dup:
			bs.fail("duplicate state label %q (ids %d and %d)", sb.label, prev, id)
		default:
			c.labels[sb.label] = id
		}
		subs := make([]StateID, 0, len(sb.children))
		for _, ch := range sb.children {
			subs = append(subs, walk(ch, id, depth+1))
		}
		n := &c.states[id]
		n.substates = subs
		n.size = len(c.states) - int(id)
		return id
	}
	for _, r := range b.roots {
		c.roots = append(c.roots, walk(r, NoState, 0))
	}

	// Kinds, initials and actions.
	for i, sb := range builders {
		n := &c.states[i]
		n.onEntry = append([]Action(nil), sb.onEntry...)
		n.onExit = append([]Action(nil), sb.onExit...)
		switch {
		case sb.final:
			n.kind = Final
			if len(sb.children) > 0 {
				bs.fail("final state %q has substates", sb.label)
			}
			if len(sb.transitions) > 0 {
				bs.fail("final state %q has outgoing transitions", sb.label)
			}
			if sb.initial != "" {
				bs.fail("final state %q declares initial %q", sb.label, sb.initial)
			}
			if len(sb.onExit) > 0 {
				bs.fail("final state %q declares exit actions", sb.label)
			}
		case len(sb.children) == 0:
			n.kind = Atomic
			if sb.initial != "" {
				bs.fail("state %q declares initial %q but has no substates", sb.label, sb.initial)
			}
		case sb.parallel:
			n.kind = Parallel
			if sb.initial != "" {
				bs.fail("parallel state %q declares initial %q", sb.label, sb.initial)
			}
		default:
			n.kind = Compound
			if sb.initial == "" {
				bs.fail("compound state %q has no initial substate", sb.label)
				break
			}
			id, ok := c.labels[sb.initial]
			if !ok || c.states[id].parent != n.id {
				bs.fail("initial %q of state %q is not one of its substates", sb.initial, sb.label)
				break
			}
			n.initial = id
		}
	}

	// Transitions, in document order.
	for i, sb := range builders {
		n := &c.states[i]
		for _, tb := range sb.transitions {
			t := &Transition{
				source:    n.id,
				index:     c.numTrans,
				condition: tb.cond,
				target:    NoState,
				domain:    NoState,
				internal:  tb.internal,
				actions:   append([]Action(nil), tb.actions...),
			}
			c.numTrans++
			if tb.events != nil && len(tb.events) == 0 {
				bs.fail("transition %d of state %q has an empty event list", t.index, sb.label)
			}
			for _, ev := range tb.events {
				if strings.TrimSpace(ev) == "" {
					bs.fail("transition %d of state %q has an empty event descriptor", t.index, sb.label)
					continue
				}
				t.events = append(t.events, newDescriptor(ev))
			}
			if tb.target != "" {
				id, ok := c.labels[tb.target]
				if !ok {
					bs.fail("transition %d of state %q targets unknown state %q", t.index, sb.label, tb.target)
				}
				t.target = id
			}
			n.transitions = append(n.transitions, t)
		}
	}

	c.initial = c.roots[0]
	if b.initial != "" {
		id, ok := c.labels[b.initial]
		if !ok {
			bs.fail("chart initial %q is not a declared state", b.initial)
		}
		c.initial = id
	}

	if len(bs.problems) > 0 {
		return nil, b.malformed(bs)
	}

	for i := range c.states {
		for _, t := range c.states[i].transitions {
			if t.target == NoState {
				continue
			}
			t.domain = c.transitionDomain(t)
			t.entry = c.entrySet(t.target, t.domain)
		}
	}
	c.initialEntry = c.entrySet(c.initial, NoState)
	c.version = computeVersion(c)
	return c, nil
}

func (b *Builder) malformed(bs *buildState) error {
	return &Error{Kind: KindMalformedChart, Chart: b.name, Err: errors.Join(bs.problems...)}
}

// transitionDomain returns the nearest compound proper ancestor of the
// source that also contains the target, or NoState for the chart itself.
// Internal transitions to a descendant of a compound source use the source.
func (c *Chart) transitionDomain(t *Transition) StateID {
	if t.internal && c.kind(t.source) == Compound && c.isDescendant(t.target, t.source) {
		return t.source
	}
	for anc := c.parent(t.source); anc != NoState; anc = c.parent(anc) {
		if c.kind(anc) == Compound && c.isDescendant(t.target, anc) {
			return anc
		}
	}
	return NoState
}

// entrySet returns, in document order, the states entered when target is
// entered from domain: the ancestors of target below domain, target itself,
// and the default completion of everything that requires it.
func (c *Chart) entrySet(target, domain StateID) []StateID {
	set := newBitset(len(c.states))
	var complete func(id StateID)
	complete = func(id StateID) {
		set.set(id)
		n := &c.states[id]
		switch n.kind {
		case Compound:
			complete(n.initial)
		case Parallel:
			for _, ch := range n.substates {
				complete(ch)
			}
		}
	}
	complete(target)
	for anc := c.parent(target); anc != domain && anc != NoState; anc = c.parent(anc) {
		set.set(anc)
		if c.kind(anc) != Parallel {
			continue
		}
		for _, region := range c.states[anc].substates {
			lo, hi := region, region+StateID(c.states[region].size)
			if !set.anyIn(lo, hi) {
				complete(region)
			}
		}
	}
	return set.members()
}

// computeVersion digests the chart structure. Actions and conditions only
// contribute their names.
func computeVersion(c *Chart) string {
	h := sha256.New()
	fmt.Fprintf(h, "chart %q initial %d\n", c.name, c.initial)
	for i := range c.states {
		n := &c.states[i]
		fmt.Fprintf(h, "state %d %q %s parent=%d initial=%d\n", n.id, n.label, n.kind, n.parent, n.initial)
		for _, a := range n.onEntry {
			fmt.Fprintf(h, " entry %q\n", a.Name())
		}
		for _, a := range n.onExit {
			fmt.Fprintf(h, " exit %q\n", a.Name())
		}
		for _, t := range n.transitions {
			fmt.Fprintf(h, " transition %v target=%d internal=%t cond=%q\n",
				t.Events(), t.target, t.internal, describeCondition(t.condition))
			for _, a := range t.actions {
				fmt.Fprintf(h, "  action %q\n", a.Name())
			}
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
