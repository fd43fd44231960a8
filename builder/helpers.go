// Package builder declares charts as nested values instead of fluent calls.
//
//	chart, err := builder.Define("door",
//		builder.State("closed", builder.On("open", "opened")),
//		builder.State("opened", builder.On("close", "closed")),
//	)
package builder

import (
	"context"
	"time"

	"github.com/comalice/harel"
)

type nodeKind uint8

const (
	kindState nodeKind = iota
	kindParallel
	kindFinal
)

// Node is one state declaration.
type Node struct {
	label string
	kind  nodeKind
	opts  []Option
}

// Option configures the state a Node declares.
type Option func(*harel.StateBuilder)

// TransOption configures a transition.
type TransOption func(*harel.TransitionBuilder)

// State declares an atomic state, or a compound one when given Children.
func State(label string, opts ...Option) Node {
	return Node{label: label, kind: kindState, opts: opts}
}

// Parallel declares a parallel state. Its Children are the regions.
func Parallel(label string, opts ...Option) Node {
	return Node{label: label, kind: kindParallel, opts: opts}
}

// Final declares a final state.
func Final(label string, opts ...Option) Node {
	return Node{label: label, kind: kindFinal, opts: opts}
}

func (n Node) Label() string { return n.label }

// parent is implemented by *harel.Builder and *harel.StateBuilder.
type parent interface {
	State(label string) *harel.StateBuilder
	Final(label string) *harel.StateBuilder
}

func (n Node) declare(p parent) {
	var sb *harel.StateBuilder
	switch n.kind {
	case kindFinal:
		sb = p.Final(n.label)
	case kindParallel:
		sb = p.State(n.label).SetParallel(true)
	default:
		sb = p.State(n.label)
	}
	for _, opt := range n.opts {
		opt(sb)
	}
}

// Define builds a chart from root-level nodes. The first node is the
// initial state.
func Define(name string, nodes ...Node) (*harel.Chart, error) {
	return DefineFrom(name, "", nodes...)
}

// DefineFrom is Define with an explicit initial state, which may be nested.
func DefineFrom(name, initial string, nodes ...Node) (*harel.Chart, error) {
	b := harel.NewBuilder(name)
	if initial != "" {
		b.Initial(initial)
	}
	for _, n := range nodes {
		n.declare(b)
	}
	return b.Build()
}

// MustDefine is Define for charts known to be valid. It panics on error.
func MustDefine(name string, nodes ...Node) *harel.Chart {
	c, err := Define(name, nodes...)
	if err != nil {
		panic(err)
	}
	return c
}

// Children declares substates. The first one becomes the initial substate of
// a compound state unless Initial was given before.
func Children(nodes ...Node) Option {
	return func(sb *harel.StateBuilder) {
		for i, n := range nodes {
			n.declare(sb)
			if i == 0 && !sb.IsParallel() && !sb.HasInitial() {
				sb.Initial(n.label)
			}
		}
	}
}

// Initial names the initial substate.
func Initial(label string) Option {
	return func(sb *harel.StateBuilder) { sb.Initial(label) }
}

// OnEntry adds actions executed when the state is entered.
func OnEntry(actions ...harel.Action) Option {
	return func(sb *harel.StateBuilder) { sb.OnEntry(actions...) }
}

// OnExit adds actions executed when the state is exited.
func OnExit(actions ...harel.Action) Option {
	return func(sb *harel.StateBuilder) { sb.OnExit(actions...) }
}

// On adds a transition to target. An empty target declares a targetless
// transition.
func On(event, target string, opts ...TransOption) Option {
	return func(sb *harel.StateBuilder) {
		apply(sb.On(event), target, opts)
	}
}

// Always adds an eventless transition.
func Always(target string, opts ...TransOption) Option {
	return func(sb *harel.StateBuilder) {
		apply(sb.Always(), target, opts)
	}
}

// After adds a delayed eventless transition.
func After(d time.Duration, target string, opts ...TransOption) Option {
	return func(sb *harel.StateBuilder) {
		apply(sb.After(d), target, opts)
	}
}

// OnDone adds a transition taken when the state completes.
func OnDone(target string, opts ...TransOption) Option {
	return func(sb *harel.StateBuilder) {
		apply(sb.OnDone(), target, opts)
	}
}

func apply(tb *harel.TransitionBuilder, target string, opts []TransOption) {
	if target != "" {
		tb.To(target)
	}
	for _, opt := range opts {
		opt(tb)
	}
}

// WithGuard adds a condition.
func WithGuard(c harel.Condition) TransOption {
	return func(tb *harel.TransitionBuilder) { tb.When(c) }
}

// If adds a named predicate as condition.
func If(name string, fn func(harel.ConditionContext) bool) TransOption {
	return func(tb *harel.TransitionBuilder) { tb.If(name, fn) }
}

// WithAction adds transition actions.
func WithAction(actions ...harel.Action) TransOption {
	return func(tb *harel.TransitionBuilder) { tb.Do(actions...) }
}

// Internal keeps a compound source active when targeting its descendant.
func Internal() TransOption {
	return func(tb *harel.TransitionBuilder) { tb.Internal() }
}

// Do wraps a function as a named action.
func Do(name string, fn func(ctx context.Context, ac harel.ActionContext) error) harel.Action {
	return harel.NewAction(name, fn)
}
