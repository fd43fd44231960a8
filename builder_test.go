package harel_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
)

func TestBuilderTrafficLight(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("traffic").Initial("green")
	b.State("green").On("timer").To("yellow")
	b.State("yellow").On("timer").To("red")
	b.State("red").On("timer").To("green")

	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)
	assert.Equal(t, "green", config(chart, h))

	for _, want := range []string{"yellow", "red", "green"} {
		h = send(t, eng, chart, h, "timer")
		assert.Equal(t, want, config(chart, h))
	}
}

func TestBuilderDocumentOrderIDs(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("order")
	s := b.State("S").Initial("A")
	a := s.State("A").Initial("A1")
	a.State("A1")
	a.State("A2")
	s.State("B")
	b.Final("F")

	chart, err := b.Build()
	require.NoError(t, err)
	require.Equal(t, 6, chart.Len())

	want := []struct {
		label  string
		kind   harel.StateKind
		parent string
		depth  int
	}{
		{"S", harel.Compound, "", 0},
		{"A", harel.Compound, "S", 1},
		{"A1", harel.Atomic, "A", 2},
		{"A2", harel.Atomic, "A", 2},
		{"B", harel.Atomic, "S", 1},
		{"F", harel.Final, "", 0},
	}
	for i, w := range want {
		n := chart.MustState(harel.StateID(i))
		assert.Equal(t, w.label, n.Label())
		assert.Equal(t, w.kind, n.Kind(), w.label)
		assert.Equal(t, w.depth, n.Depth(), w.label)
		parent, ok := n.Parent()
		if w.parent == "" {
			assert.False(t, ok)
			assert.Equal(t, harel.NoState, parent)
		} else {
			assert.Equal(t, w.parent, chart.Label(parent))
		}
		id, ok := chart.Lookup(w.label)
		assert.True(t, ok)
		assert.Equal(t, harel.StateID(i), id)
	}

	assert.Equal(t, []harel.StateID{0, 5}, chart.Roots())
	assert.Equal(t, harel.StateID(0), chart.Initial())
	assert.True(t, chart.IsDescendant(2, 0))
	assert.True(t, chart.IsDescendant(3, 1))
	assert.False(t, chart.IsDescendant(4, 1))
	assert.False(t, chart.IsDescendant(0, 0))

	initial, ok := chart.MustState(1).Initial()
	assert.True(t, ok)
	assert.Equal(t, "A1", chart.Label(initial))
	assert.Equal(t, []harel.StateID{1, 4}, chart.MustState(0).Substates())
}

func TestBuilderForwardReferences(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("forward").Initial("start")
	b.State("start").On("go").To("later")
	b.State("later")

	chart, err := b.Build()
	require.NoError(t, err)
	tr := chart.MustState(0).Transitions()
	require.Len(t, tr, 1)
	target, ok := tr[0].Target()
	require.True(t, ok)
	assert.Equal(t, "later", chart.Label(target))
	assert.Equal(t, []string{"go"}, tr[0].Events())
}

func TestBuilderParallel(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("parallel")
	p := b.Parallel("P")
	p.State("R1").Initial("a").State("a")
	p.State("R2").Initial("b").State("b")

	chart, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, harel.Parallel, chart.MustState(0).Kind())

	h := harel.NewStateMachine(chart)
	assert.Equal(t, "P,R1,a,R2,b", config(chart, h))
	assert.Len(t, h.Leaves(chart), 2)
}

func TestBuilderParallelFlagOnLeaf(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("leaf")
	b.State("L").SetParallel(true)
	chart, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, harel.Atomic, chart.MustState(0).Kind())
}

func TestBuilderUp(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("up")
	b.State("S").Initial("A").
		State("A").On("go").To("B").End().Up().
		State("B").Up().
		On("reset").To("S")

	chart, err := b.Build()
	require.NoError(t, err)
	s := chart.MustState(0)
	assert.Len(t, s.Substates(), 2)
	assert.Len(t, s.Transitions(), 1)
}

func TestBuilderNestedInitial(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("nested-initial").Initial("deep")
	s := b.State("S").Initial("A")
	s.State("A")
	s.State("deep")

	chart, err := b.Build()
	require.NoError(t, err)
	h := harel.NewStateMachine(chart)
	assert.Equal(t, "S,deep", config(chart, h))
}

func TestBuilderBuildTwice(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("twice")
	b.State("A")
	c1, err := b.Build()
	require.NoError(t, err)
	b.State("B")
	c2, err := b.Build()
	require.NoError(t, err)

	assert.Equal(t, 1, c1.Len())
	assert.Equal(t, 2, c2.Len())
	assert.NotEqual(t, c1.Version(), c2.Version())
}

func TestBuilderVersionIsStable(t *testing.T) {
	t.Parallel()
	build := func() *harel.Chart {
		b := harel.NewBuilder("v")
		s := b.State("S").Initial("A")
		s.State("A").On("go").To("B")
		s.State("B")
		c, err := b.Build()
		require.NoError(t, err)
		return c
	}
	assert.Equal(t, build().Version(), build().Version())
	assert.Len(t, build().Version(), 64)
}

func TestBuilderValidation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		build   func(b *harel.Builder)
		message string
	}{
		{
			name:    "empty chart",
			build:   func(b *harel.Builder) {},
			message: "no states",
		},
		{
			name: "duplicate label",
			build: func(b *harel.Builder) {
				b.State("A")
				b.State("S").Initial("A").State("A")
			},
			message: "duplicate state label",
		},
		{
			name: "empty label",
			build: func(b *harel.Builder) {
				b.State("")
			},
			message: "empty label",
		},
		{
			name: "compound without initial",
			build: func(b *harel.Builder) {
				b.State("S").State("A")
			},
			message: "no initial substate",
		},
		{
			name: "initial is not a child",
			build: func(b *harel.Builder) {
				s := b.State("S").Initial("X")
				s.State("A")
				b.State("X")
			},
			message: "is not one of its substates",
		},
		{
			name: "initial on atomic",
			build: func(b *harel.Builder) {
				b.State("A").Initial("B")
				b.State("B")
			},
			message: "has no substates",
		},
		{
			name: "initial on parallel",
			build: func(b *harel.Builder) {
				p := b.Parallel("P").Initial("R1")
				p.State("R1")
				p.State("R2")
			},
			message: "parallel state",
		},
		{
			name: "unknown target",
			build: func(b *harel.Builder) {
				b.State("A").On("go").To("nowhere")
			},
			message: "unknown state \"nowhere\"",
		},
		{
			name: "final with transitions",
			build: func(b *harel.Builder) {
				b.State("A")
				b.Final("F").On("go").To("A")
			},
			message: "outgoing transitions",
		},
		{
			name: "final with substates",
			build: func(b *harel.Builder) {
				b.Final("F").State("child")
			},
			message: "final state \"F\" has substates",
		},
		{
			name: "unknown chart initial",
			build: func(b *harel.Builder) {
				b.Initial("missing").State("A")
			},
			message: "chart initial",
		},
		{
			name: "empty event list",
			build: func(b *harel.Builder) {
				b.State("A").On().To("A")
			},
			message: "empty event list",
		},
		{
			name: "final exit actions",
			build: func(b *harel.Builder) {
				b.State("A").Initial("done").Final("done").OnExit(harel.NewAction("noop", nil))
			},
			message: `final state "done" declares exit actions`,
		},
		{
			name: "empty descriptor",
			build: func(b *harel.Builder) {
				b.State("A").On("go", " ").To("A")
			},
			message: "empty event descriptor",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := harel.NewBuilder(tt.name)
			tt.build(b)
			chart, err := b.Build()
			require.Error(t, err)
			assert.Nil(t, chart)
			assert.ErrorIs(t, err, harel.ErrMalformedChart)
			assert.Equal(t, harel.KindMalformedChart, harel.KindOf(err))
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestBuilderReportsEveryProblem(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("many")
	b.State("A").On("go").To("X")
	b.State("B").On("go").To("Y")
	b.State("S").State("child")

	_, err := b.Build()
	require.Error(t, err)
	var herr *harel.Error
	require.True(t, errors.As(err, &herr))
	assert.Contains(t, err.Error(), `"X"`)
	assert.Contains(t, err.Error(), `"Y"`)
	assert.Contains(t, err.Error(), "no initial substate")
}

func TestBuilderMustBuild(t *testing.T) {
	b := harel.NewBuilder("must")
	b.State("A")
	assert.NotPanics(t, func() { b.MustBuild() })
	assert.Panics(t, func() { harel.NewBuilder("empty").MustBuild() })
}
