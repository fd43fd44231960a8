// Package reader loads charts from YAML, JSON and SCXML documents. Commands
// and conditions named in a document are resolved through a Registry.
package reader

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/comalice/harel"
)

// StateType is the declared kind of a state. An empty type is inferred:
// compound when the state has substates, atomic otherwise.
type StateType string

const (
	TypeAtomic   StateType = "atomic"
	TypeCompound StateType = "compound"
	TypeParallel StateType = "parallel"
	TypeFinal    StateType = "final"
)

// Document is the decoded form of a chart file.
type Document struct {
	Name    string `json:"name" yaml:"name"`
	Initial string `json:"initial,omitempty" yaml:"initial,omitempty"`
	// Data seeds the host data model; see NewDataModel.
	Data   map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
	States []*StateDoc    `json:"states" yaml:"states"`
}

// StateDoc declares one state and its subtree.
type StateDoc struct {
	ID          string          `json:"id" yaml:"id"`
	Type        StateType       `json:"type,omitempty" yaml:"type,omitempty"`
	Initial     string          `json:"initial,omitempty" yaml:"initial,omitempty"`
	OnEntry     []CommandDoc    `json:"on_entry,omitempty" yaml:"on_entry,omitempty"`
	OnExit      []CommandDoc    `json:"on_exit,omitempty" yaml:"on_exit,omitempty"`
	Transitions []TransitionDoc `json:"transitions,omitempty" yaml:"transitions,omitempty"`
	States      []*StateDoc     `json:"states,omitempty" yaml:"states,omitempty"`
}

// TransitionDoc declares a transition. Event holds space-separated
// descriptors; an empty Event declares an eventless transition.
type TransitionDoc struct {
	Event    string       `json:"event,omitempty" yaml:"event,omitempty"`
	Target   string       `json:"target,omitempty" yaml:"target,omitempty"`
	Cond     string       `json:"cond,omitempty" yaml:"cond,omitempty"`
	Delay    string       `json:"delay,omitempty" yaml:"delay,omitempty"`
	Internal bool         `json:"internal,omitempty" yaml:"internal,omitempty"`
	Actions  []CommandDoc `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// CommandDoc names a registered action and its arguments.
type CommandDoc struct {
	Command string         `json:"command" yaml:"command"`
	Args    map[string]any `json:"args,omitempty" yaml:"args,omitempty"`
}

func (s *StateDoc) kind() StateType {
	if s.Type != "" {
		return s.Type
	}
	if len(s.States) > 0 {
		return TypeCompound
	}
	return TypeAtomic
}

// Validate checks the document structure. Label resolution and chart-level
// rules are checked when the chart is built.
func (d *Document) Validate() error {
	var problems []error
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}
	if d.Name == "" {
		fail("document has no name")
	}
	if len(d.States) == 0 {
		fail("document declares no states")
	}

	var walk func(s *StateDoc)
	walk = func(s *StateDoc) {
		if s == nil {
			fail("null state entry")
			return
		}
		if s.ID == "" {
			fail("state without id")
		}
		switch s.kind() {
		case TypeAtomic:
			if len(s.States) > 0 {
				fail("state %q: atomic state has substates", s.ID)
			}
		case TypeCompound:
			if len(s.States) == 0 {
				fail("state %q: compound state has no substates", s.ID)
			}
		case TypeParallel:
			if s.Initial != "" {
				fail("state %q: parallel state cannot name an initial substate", s.ID)
			}
		case TypeFinal:
			if len(s.OnExit) > 0 {
				fail("state %q: final state cannot declare on_exit", s.ID)
			}
		default:
			fail("state %q: unknown type %q", s.ID, s.Type)
		}
		for _, c := range append(append([]CommandDoc{}, s.OnEntry...), s.OnExit...) {
			if c.Command == "" {
				fail("state %q: command without name", s.ID)
			}
		}
		for i, t := range s.Transitions {
			if t.Delay != "" {
				if dur, err := time.ParseDuration(t.Delay); err != nil || dur < 0 {
					fail("state %q: transition %d: invalid delay %q", s.ID, i, t.Delay)
				}
			}
			for _, c := range t.Actions {
				if c.Command == "" {
					fail("state %q: transition %d: command without name", s.ID, i)
				}
			}
		}
		for _, sub := range s.States {
			walk(sub)
		}
	}
	for _, s := range d.States {
		walk(s)
	}
	return errors.Join(problems...)
}

// NewDataModel returns a data model seeded with the document's data.
func (d *Document) NewDataModel() *harel.DataModel {
	dm := harel.NewDataModel()
	dm.Load(d.Data)
	return dm
}

// Compile validates d and builds the chart, resolving commands and
// conditions through reg. A nil reg uses a registry with only the built-in
// commands. Every problem is reported in one ErrMalformedChart error.
func Compile(d *Document, reg *Registry) (*harel.Chart, error) {
	if reg == nil {
		reg = NewRegistry(nil)
	}
	if err := d.Validate(); err != nil {
		return nil, &harel.Error{Kind: harel.KindMalformedChart, Chart: d.Name, Err: err}
	}

	c := compiler{reg: reg, b: harel.NewBuilder(d.Name)}
	if d.Initial != "" {
		c.b.Initial(d.Initial)
	}
	for _, s := range d.States {
		c.state(c.b, s)
	}
	if len(c.problems) > 0 {
		return nil, &harel.Error{Kind: harel.KindMalformedChart, Chart: d.Name, Err: errors.Join(c.problems...)}
	}
	return c.b.Build()
}

type compiler struct {
	reg      *Registry
	b        *harel.Builder
	problems []error
}

type declarer interface {
	State(label string) *harel.StateBuilder
	Final(label string) *harel.StateBuilder
}

func (c *compiler) state(p declarer, s *StateDoc) {
	var sb *harel.StateBuilder
	switch s.kind() {
	case TypeFinal:
		sb = p.Final(s.ID)
	case TypeParallel:
		sb = p.State(s.ID).SetParallel(true)
	default:
		sb = p.State(s.ID)
	}

	if s.kind() == TypeCompound {
		initial := s.Initial
		if initial == "" {
			initial = s.States[0].ID
		}
		sb.Initial(initial)
	} else if s.Initial != "" {
		sb.Initial(s.Initial)
	}

	sb.OnEntry(c.actions(s.ID, s.OnEntry)...)
	sb.OnExit(c.actions(s.ID, s.OnExit)...)
	for _, t := range s.Transitions {
		c.transition(sb, s.ID, t)
	}
	for _, sub := range s.States {
		c.state(sb, sub)
	}
}

func (c *compiler) transition(sb *harel.StateBuilder, source string, t TransitionDoc) {
	var tb *harel.TransitionBuilder
	if events := strings.Fields(t.Event); len(events) > 0 {
		tb = sb.On(events...)
	} else {
		tb = sb.Always()
	}
	if t.Target != "" {
		tb.To(t.Target)
	}
	if t.Delay != "" {
		d, _ := time.ParseDuration(t.Delay)
		tb.When(harel.After(d))
	}
	if t.Cond != "" {
		cond, err := c.reg.Condition(t.Cond)
		if err != nil {
			c.problems = append(c.problems, fmt.Errorf("state %q: %w", source, err))
		}
		tb.When(cond)
	}
	if t.Internal {
		tb.Internal()
	}
	tb.Do(c.actions(source, t.Actions)...)
}

func (c *compiler) actions(state string, cmds []CommandDoc) []harel.Action {
	out := make([]harel.Action, 0, len(cmds))
	for _, cmd := range cmds {
		a, err := c.reg.Action(cmd)
		if err != nil {
			c.problems = append(c.problems, fmt.Errorf("state %q: %w", state, err))
			continue
		}
		out = append(out, a)
	}
	return out
}
