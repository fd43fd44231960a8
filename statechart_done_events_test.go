package harel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
)

func TestDoneEventName(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "done.state.checkout", harel.DoneEventName("checkout"))
}

// Test 1: compound state completes when its final child is entered
func TestDoneEventCompoundState(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("compound-done")
	s := b.State("S").Initial("A")
	s.State("A").On("finish").To("F")
	s.Final("F")
	s.OnDone().To("T")
	b.State("T")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "finish")
	assert.Equal(t, "T", config(chart, h))
}

// Test 2: an initial final substate completes the parent during Start
func TestDoneEventDuringStart(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("immediate")
	s := b.State("S").Initial("F")
	s.Final("F")
	s.OnDone().To("T")
	b.State("T")
	chart, err := b.Build()
	require.NoError(t, err)

	_, h := start(t, chart)
	assert.Equal(t, "T", config(chart, h))
}

// Test 3: done events are handled by ancestors of the completed state
func TestDoneEventBubblesToAncestors(t *testing.T) {
	t.Parallel()
	var seen []string
	b := harel.NewBuilder("ancestors")
	outer := b.State("Outer").Initial("Inner")
	outer.On("done.state.*").Do(harel.ActionFunc(func(_ context.Context, ac harel.ActionContext) error {
		seen = append(seen, ac.Event.Name())
		return nil
	}))
	inner := outer.State("Inner").Initial("work")
	inner.State("work").On("finish").To("end")
	inner.Final("end")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "finish")
	assert.Equal(t, "Outer,Inner,end", config(chart, h))
	assert.Equal(t, []string{"done.state.Inner"}, seen)
}

// Test 4: the eventless closure runs before queued done events
func TestDoneEventAfterEventlessClosure(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	b := harel.NewBuilder("closure-first")
	p := b.Parallel("P")
	r1 := p.State("R1").Initial("a")
	r1.State("a").On("finish").To("af")
	r1.Final("af")
	r1.OnDone().Do(r.action("done:R1"))
	r2 := p.State("R2").Initial("b1")
	r2.State("b1").Always().To("b2").When(harel.InState("af"))
	traced(r, r2.State("b2"))
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "finish")
	assert.Equal(t, "P,R1,af,R2,b2", config(chart, h))
	assert.Equal(t, []string{"enter:b2", "done:R1"}, r.entries())
}

// Test 5: raised events keep FIFO order with done events
func TestDoneEventQueueOrder(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	raise := harel.NewAction("raise", func(_ context.Context, ac harel.ActionContext) error {
		ac.Raise(harel.NewEvent("custom", nil))
		return nil
	})
	b := harel.NewBuilder("fifo")
	s := b.State("S").Initial("A")
	s.State("A").On("finish").To("F").Do(raise)
	s.Final("F")
	s.On("custom").Do(r.action("custom"))
	s.OnDone().Do(r.action("done"))
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	send(t, eng, chart, h, "finish")
	assert.Equal(t, []string{"custom", "done"}, r.entries())
}

// Test 6: nested parallel completion only counts final regions
func TestDoneEventNestedParallel(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("nested-done")
	m := b.State("M").Initial("O")
	o := m.Parallel("O")
	o.OnDone().To("complete")
	r1 := o.State("R1").Initial("I")
	i := r1.Parallel("I")
	i.OnDone().To("r1f")
	x := i.State("X").Initial("x1")
	x.State("x1").On("x").To("xf")
	x.Final("xf")
	y := i.State("Y").Initial("y1")
	y.State("y1").On("y").To("yf")
	y.Final("yf")
	r1.Final("r1f")
	r2 := o.State("R2").Initial("z1")
	r2.State("z1").On("z").To("zf")
	r2.Final("zf")
	m.State("complete")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "x")
	assert.True(t, h.In(chart, "I"))

	h = send(t, eng, chart, h, "y")
	assert.Equal(t, "M,O,R1,r1f,R2,z1", config(chart, h))

	h = send(t, eng, chart, h, "z")
	assert.Equal(t, "M,complete", config(chart, h))
}

// Test 7: leaving a completed state and coming back completes it again
func TestDoneEventRepeatsAfterReentry(t *testing.T) {
	t.Parallel()
	var done int
	b := harel.NewBuilder("repeat")
	s := b.State("S").Initial("A")
	s.On("restart").To("S")
	s.State("A").On("finish").To("F")
	s.Final("F")
	s.OnDone().Do(harel.ActionFunc(func(context.Context, harel.ActionContext) error {
		done++
		return nil
	}))
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "finish")
	_, err = eng.Update(context.Background(), chart, h, event("finish"))
	assert.True(t, harel.IsIgnorable(err))
	h = send(t, eng, chart, h, "restart")
	send(t, eng, chart, h, "finish")
	assert.Equal(t, 2, done)
}
