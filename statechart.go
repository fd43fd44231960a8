package harel

import (
	"fmt"
	"slices"
)

// StateID indexes a state in its Chart's arena. IDs follow document order:
// a parent always precedes its descendants and siblings keep declaration order.
type StateID int32

// NoState is the absent StateID (no parent, no target, no initial).
const NoState StateID = -1

// StateKind is derived from the number of substates and the parallel flag.
type StateKind uint8

const (
	Atomic StateKind = iota
	Compound
	Parallel
	Final
)

func (k StateKind) String() string {
	switch k {
	case Atomic:
		return "atomic"
	case Compound:
		return "compound"
	case Parallel:
		return "parallel"
	case Final:
		return "final"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// StateNode is one state of a frozen Chart.
type StateNode struct {
	id          StateID
	label       string
	kind        StateKind
	parent      StateID
	depth       int
	size        int // number of states in the subtree rooted here, self included
	substates   []StateID
	initial     StateID
	onEntry     []Action
	onExit      []Action
	transitions []*Transition
}

func (s *StateNode) ID() StateID     { return s.id }
func (s *StateNode) Label() string   { return s.label }
func (s *StateNode) Kind() StateKind { return s.kind }

// Depth is 0 for root-level states.
func (s *StateNode) Depth() int { return s.depth }

func (s *StateNode) Parent() (StateID, bool) {
	return s.parent, s.parent != NoState
}

// Initial returns the default substate of a Compound state.
func (s *StateNode) Initial() (StateID, bool) {
	return s.initial, s.initial != NoState
}

func (s *StateNode) Substates() []StateID        { return slices.Clone(s.substates) }
func (s *StateNode) OnEntry() []Action           { return slices.Clone(s.onEntry) }
func (s *StateNode) OnExit() []Action            { return slices.Clone(s.onExit) }
func (s *StateNode) Transitions() []*Transition  { return slices.Clone(s.transitions) }
func (s *StateNode) IsLeaf() bool                { return len(s.substates) == 0 }
func (s *StateNode) String() string              { return s.label }

// Transition is an outgoing edge of a state.
type Transition struct {
	source    StateID
	index     int // position in document order across the whole chart
	events    []descriptor
	condition Condition
	target    StateID
	internal  bool
	actions   []Action

	// Derived at Build.
	domain StateID
	entry  []StateID
}

func (t *Transition) Source() StateID { return t.source }

// Index is the transition's position in document order.
func (t *Transition) Index() int { return t.index }

// Events returns the event descriptors as declared. Eventless transitions
// return nil.
func (t *Transition) Events() []string {
	if len(t.events) == 0 {
		return nil
	}
	out := make([]string, len(t.events))
	for i, d := range t.events {
		out[i] = d.raw
	}
	return out
}

func (t *Transition) Eventless() bool      { return len(t.events) == 0 }
func (t *Transition) Condition() Condition { return t.condition }

// Target returns false for targetless transitions.
func (t *Transition) Target() (StateID, bool) {
	return t.target, t.target != NoState
}

func (t *Transition) Internal() bool    { return t.internal }
func (t *Transition) Actions() []Action { return slices.Clone(t.actions) }

// Domain returns the state whose active descendants are exited when the
// transition fires, NoState for the chart itself. Targetless transitions
// have no domain.
func (t *Transition) Domain() StateID { return t.domain }

func (t *Transition) matches(e Event) bool {
	if e == nil {
		return len(t.events) == 0
	}
	for _, d := range t.events {
		if d.matches(e) {
			return true
		}
	}
	return false
}

// Chart is an immutable statechart definition produced by Builder.Build.
// A Chart is safe for concurrent use.
type Chart struct {
	name    string
	initial StateID
	states  []StateNode
	labels  map[string]StateID
	roots   []StateID
	version string

	// Derived at Build.
	initialEntry []StateID
	numTrans     int
}

func (c *Chart) Name() string { return c.name }

// Initial is the state the chart starts in, before default completion.
func (c *Chart) Initial() StateID { return c.initial }

// Len is the number of states in the chart.
func (c *Chart) Len() int { return len(c.states) }

// Version is a digest of the chart's structure. Snapshots carry it.
func (c *Chart) Version() string { return c.version }

// Roots returns the root-level states in document order.
func (c *Chart) Roots() []StateID { return slices.Clone(c.roots) }

// State returns the node for id or an ErrUnknownState error.
func (c *Chart) State(id StateID) (*StateNode, error) {
	if !c.valid(id) {
		return nil, &Error{Kind: KindUnknownState, Chart: c.name, Err: fmt.Errorf("state id %d out of range [0,%d)", id, len(c.states))}
	}
	return &c.states[id], nil
}

// MustState is State for ids known to be valid. It panics otherwise.
func (c *Chart) MustState(id StateID) *StateNode {
	s, err := c.State(id)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup resolves a state label.
func (c *Chart) Lookup(label string) (StateID, bool) {
	id, ok := c.labels[label]
	return id, ok
}

// Label returns the label of id, or "" for invalid ids.
func (c *Chart) Label(id StateID) string {
	if !c.valid(id) {
		return ""
	}
	return c.states[id].label
}

// States returns every state in document order.
func (c *Chart) States() []*StateNode {
	out := make([]*StateNode, len(c.states))
	for i := range c.states {
		out[i] = &c.states[i]
	}
	return out
}

// Transitions returns every transition in document order.
func (c *Chart) Transitions() []*Transition {
	out := make([]*Transition, 0, c.numTrans)
	for i := range c.states {
		out = append(out, c.states[i].transitions...)
	}
	return out
}

// IsDescendant reports whether a is a proper descendant of b.
func (c *Chart) IsDescendant(a, b StateID) bool {
	if !c.valid(a) || !c.valid(b) {
		return false
	}
	return c.isDescendant(a, b)
}

func (c *Chart) valid(id StateID) bool {
	return id >= 0 && int(id) < len(c.states)
}

// isDescendant relies on pre-order ids: the subtree of b is the contiguous
// range (b, b+size).
func (c *Chart) isDescendant(a, b StateID) bool {
	if b == NoState {
		return a != NoState
	}
	return a > b && int(a) < int(b)+c.states[b].size
}

// subtree returns the id range [lo, hi) of b's proper descendants.
func (c *Chart) subtree(b StateID) (lo, hi StateID) {
	if b == NoState {
		return 0, StateID(len(c.states))
	}
	return b + 1, b + StateID(c.states[b].size)
}

func (c *Chart) kind(id StateID) StateKind { return c.states[id].kind }
func (c *Chart) parent(id StateID) StateID { return c.states[id].parent }

// ancestors returns the proper ancestors of id, innermost first.
func (c *Chart) ancestors(id StateID) []StateID {
	var out []StateID
	for p := c.states[id].parent; p != NoState; p = c.states[p].parent {
		out = append(out, p)
	}
	return out
}

func (c *Chart) String() string {
	return fmt.Sprintf("Chart(%s, %d states)", c.name, len(c.states))
}
