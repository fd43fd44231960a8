package harel

import (
	"fmt"
	"strings"
	"time"
)

// StateMachine is an immutable handle on one instance of a Chart: the set of
// active states plus the instance clock. Update never modifies a handle; it
// returns a new one. Handles are values and safe to share between
// goroutines.
//
// The zero StateMachine has an empty configuration and is rejected by Update.
type StateMachine struct {
	active  bitset
	entered []time.Duration // per state, the clock value when it was last entered
	elapsed time.Duration
}

// NewStateMachine returns the initial handle of c without running any
// entry actions. Use Engine.Start to run them.
func NewStateMachine(c *Chart) StateMachine {
	h := StateMachine{
		active:  newBitset(c.Len()),
		entered: make([]time.Duration, c.Len()),
	}
	for _, id := range c.initialEntry {
		h.active.set(id)
	}
	return h
}

// Configuration returns the active states in document order.
func (h StateMachine) Configuration() []StateID {
	return h.active.members()
}

// IsActive reports whether id is in the configuration.
func (h StateMachine) IsActive(id StateID) bool {
	return h.active.has(id)
}

// Len is the number of active states.
func (h StateMachine) Len() int { return h.active.count() }

// Elapsed is the instance clock.
func (h StateMachine) Elapsed() time.Duration { return h.elapsed }

// Advance returns a copy of h with its clock moved forward by d. Negative
// durations are ignored. Delay conditions are evaluated against this clock.
func (h StateMachine) Advance(d time.Duration) StateMachine {
	if d > 0 {
		h.elapsed += d
	}
	return h
}

// Since returns how long id has been active.
func (h StateMachine) Since(id StateID) (time.Duration, bool) {
	if !h.active.has(id) || int(id) >= len(h.entered) {
		return 0, false
	}
	return h.elapsed - h.entered[id], true
}

// Equal reports whether both handles have the same configuration, the same
// entry times for the active states and the same clock.
func (h StateMachine) Equal(o StateMachine) bool {
	if h.elapsed != o.elapsed || !h.active.equal(o.active) {
		return false
	}
	same := true
	h.active.each(func(id StateID) {
		if h.entered[id] != o.entered[id] {
			same = false
		}
	})
	return same
}

// SameConfiguration compares configurations only.
func (h StateMachine) SameConfiguration(o StateMachine) bool {
	return h.active.equal(o.active)
}

// Leaves returns the active states with no active substates.
func (h StateMachine) Leaves(c *Chart) []StateID {
	var out []StateID
	h.active.each(func(id StateID) {
		if c.valid(id) && c.states[id].kind != Compound && c.states[id].kind != Parallel {
			out = append(out, id)
		}
	})
	return out
}

// Halted reports whether a root-level Final state is active. A halted
// instance ignores every trigger.
func (h StateMachine) Halted(c *Chart) bool {
	for _, r := range c.roots {
		if h.active.has(r) && c.states[r].kind == Final {
			return true
		}
	}
	return false
}

// In reports whether the state with the given label is active.
func (h StateMachine) In(c *Chart, label string) bool {
	id, ok := c.Lookup(label)
	return ok && h.active.has(id)
}

// Labels returns the labels of the active states in document order.
func (h StateMachine) Labels(c *Chart) []string {
	var out []string
	h.active.each(func(id StateID) { out = append(out, c.Label(id)) })
	return out
}

// Format renders the configuration as "{A, A.1, B}" using c's labels.
func (h StateMachine) Format(c *Chart) string {
	return "{" + strings.Join(h.Labels(c), ", ") + "}"
}

func (h StateMachine) String() string {
	return fmt.Sprintf("StateMachine(%v @%s)", h.Configuration(), h.elapsed)
}

// checkHandle verifies that h is a legal configuration of c:
// exactly one root-level state is active, every active non-root state has an
// active parent, an active Compound has exactly one active substate and an
// active Parallel has all of them.
func (c *Chart) checkHandle(h StateMachine) error {
	fail := func(format string, args ...any) error {
		return &Error{Kind: KindUnknownState, Chart: c.name, Err: fmt.Errorf(format, args...)}
	}
	if h.active.outOfRange(len(c.states)) || len(h.entered) != len(c.states) {
		return fail("handle was not created for this chart")
	}
	if h.active.empty() {
		return fail("empty configuration")
	}
	roots := 0
	var err error
	h.active.each(func(id StateID) {
		if err != nil {
			return
		}
		n := &c.states[id]
		if n.parent == NoState {
			roots++
		} else if !h.active.has(n.parent) {
			err = fail("state %q is active without its parent %q", n.label, c.states[n.parent].label)
			return
		}
		switch n.kind {
		case Compound:
			k := 0
			for _, ch := range n.substates {
				if h.active.has(ch) {
					k++
				}
			}
			if k != 1 {
				err = fail("compound state %q has %d active substates", n.label, k)
			}
		case Parallel:
			for _, ch := range n.substates {
				if !h.active.has(ch) {
					err = fail("parallel state %q has inactive region %q", n.label, c.states[ch].label)
					return
				}
			}
		}
	})
	if err != nil {
		return err
	}
	if roots != 1 {
		return fail("%d root-level states are active", roots)
	}
	return nil
}

// CheckConfiguration reports whether h is a legal configuration of c.
func (c *Chart) CheckConfiguration(h StateMachine) error {
	return c.checkHandle(h)
}
