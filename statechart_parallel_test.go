package harel_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
)

// twoRegions declares P with regions R1{a1,a2} and R2{b1,b2}. "e1" and "e2"
// move one region, "both" moves both.
func twoRegions(t *testing.T, r *recorder) *harel.Chart {
	t.Helper()
	b := harel.NewBuilder("regions")
	p := traced(r, b.Parallel("P"))
	p.On("leave").To("X")
	r1 := traced(r, p.State("R1").Initial("a1"))
	traced(r, r1.State("a1")).On("e1", "both").To("a2").Do(r.action("t:a"))
	traced(r, r1.State("a2"))
	r2 := traced(r, p.State("R2").Initial("b1"))
	traced(r, r2.State("b1")).On("e2", "both").To("b2").Do(r.action("t:b"))
	traced(r, r2.State("b2"))
	traced(r, b.State("X"))
	chart, err := b.Build()
	require.NoError(t, err)
	return chart
}

func TestParallelEntry(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	chart := twoRegions(t, r)
	_, h := start(t, chart)

	assert.Equal(t, "P,R1,a1,R2,b1", config(chart, h))
	assert.Equal(t, []string{"enter:P", "enter:R1", "enter:a1", "enter:R2", "enter:b1"}, r.entries())
}

func TestParallelRegionsAreIndependent(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	chart := twoRegions(t, r)
	eng, h := start(t, chart)

	r.reset()
	h = send(t, eng, chart, h, "e1")
	assert.Equal(t, "P,R1,a2,R2,b1", config(chart, h))
	assert.Equal(t, []string{"exit:a1", "t:a", "enter:a2"}, r.entries())

	r.reset()
	h = send(t, eng, chart, h, "e2")
	assert.Equal(t, "P,R1,a2,R2,b2", config(chart, h))
	assert.Equal(t, []string{"exit:b1", "t:b", "enter:b2"}, r.entries())
}

func TestParallelBroadcastIsOneMicrostep(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	chart := twoRegions(t, r)
	eng, h := start(t, chart)

	r.reset()
	h = send(t, eng, chart, h, "both")
	assert.Equal(t, "P,R1,a2,R2,b2", config(chart, h))
	assert.Equal(t, []string{
		"exit:b1", "exit:a1",
		"t:a", "t:b",
		"enter:a2", "enter:b2",
	}, r.entries())
}

func TestParallelExitOrder(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	chart := twoRegions(t, r)
	eng, h := start(t, chart)

	r.reset()
	h = send(t, eng, chart, h, "leave")
	assert.Equal(t, "X", config(chart, h))
	assert.Equal(t, []string{
		"exit:b1", "exit:R2", "exit:a1", "exit:R1", "exit:P",
		"enter:X",
	}, r.entries())
}

func TestConflictEarlierSourceWins(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	b := harel.NewBuilder("conflict")
	p := b.Parallel("P")
	r1 := p.State("R1").Initial("a1")
	r1.State("a1").On("e").To("X").Do(r.action("t:a1"))
	r2 := p.State("R2").Initial("b1")
	r2.State("b1").On("e").To("b2").Do(r.action("t:b1"))
	r2.State("b2")
	b.State("X")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "e")
	assert.Equal(t, "X", config(chart, h))
	assert.Equal(t, []string{"t:a1"}, r.entries())
}

func TestConflictLaterWideTransitionDropped(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	b := harel.NewBuilder("conflict")
	p := b.Parallel("P")
	r1 := p.State("R1").Initial("a1")
	r1.State("a1").On("e").To("a2").Do(r.action("t:a1"))
	r1.State("a2")
	r2 := p.State("R2").Initial("b1")
	r2.State("b1").On("e").To("X").Do(r.action("t:b1"))
	b.State("X")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "e")
	assert.Equal(t, "P,R1,a2,R2,b1", config(chart, h))
	assert.Equal(t, []string{"t:a1"}, r.entries())
}

func TestTargetlessNeverConflicts(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	b := harel.NewBuilder("targetless")
	p := b.Parallel("P")
	r1 := p.State("R1").Initial("a1")
	r1.State("a1").On("e").Do(r.action("t:a1"))
	r2 := p.State("R2").Initial("b1")
	r2.State("b1").On("e").To("X").Do(r.action("t:b1"))
	b.State("X")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "e")
	assert.Equal(t, "X", config(chart, h))
	assert.Equal(t, []string{"t:a1", "t:b1"}, r.entries())
}

func TestInnermostTransitionWins(t *testing.T) {
	t.Parallel()
	inner := true
	b := harel.NewBuilder("innermost")
	s := b.State("S").Initial("A")
	s.On("e").To("T")
	s.State("A").On("e").To("B").If("inner", func(harel.ConditionContext) bool { return inner })
	s.State("B")
	b.State("T")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	assert.Equal(t, "S,B", config(chart, send(t, eng, chart, h, "e")))

	inner = false
	assert.Equal(t, "T", config(chart, send(t, eng, chart, h, "e")))
}

func TestInStateCondition(t *testing.T) {
	t.Parallel()
	b := harel.NewBuilder("in-state")
	p := b.Parallel("P")
	r1 := p.State("R1").Initial("a1")
	r1.State("a1").On("a").To("a2")
	r1.State("a2")
	r2 := p.State("R2").Initial("b1")
	r2.State("b1").On("b").To("b2").When(harel.InState("a2"))
	r2.State("b2")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	_, err = eng.Update(context.Background(), chart, h, event("b"))
	assert.True(t, harel.IsIgnorable(err))

	h = send(t, eng, chart, h, "a")
	h = send(t, eng, chart, h, "b")
	assert.Equal(t, "P,R1,a2,R2,b2", config(chart, h))
}

func TestTransitionAcrossRegions(t *testing.T) {
	t.Parallel()
	r := &recorder{}
	b := harel.NewBuilder("across")
	root := b.State("M").Initial("P")
	p := traced(r, root.Parallel("P"))
	r1 := traced(r, p.State("R1").Initial("a1"))
	traced(r, r1.State("a1")).On("jump").To("b2")
	traced(r, r1.State("a2"))
	r2 := traced(r, p.State("R2").Initial("b1"))
	traced(r, r2.State("b1"))
	traced(r, r2.State("b2"))
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	r.reset()
	h = send(t, eng, chart, h, "jump")
	assert.Equal(t, "M,P,R1,a1,R2,b2", config(chart, h))
	assert.Equal(t, []string{
		"exit:b1", "exit:R2", "exit:a1", "exit:R1", "exit:P",
		"enter:P", "enter:R1", "enter:a1", "enter:R2", "enter:b2",
	}, r.entries())
}

func TestParallelCompletesOnce(t *testing.T) {
	t.Parallel()
	for _, script := range [][]string{{"fa", "fb"}, {"fb", "fa"}, {"both"}} {
		var doneP, doneR1 int
		b := harel.NewBuilder("completion")
		main := b.State("main").Initial("P")
		p := main.Parallel("P")
		p.OnDone().To("finished").Do(harel.ActionFunc(func(context.Context, harel.ActionContext) error {
			doneP++
			return nil
		}))
		r1 := p.State("R1").Initial("a")
		r1.OnDone().Do(harel.ActionFunc(func(context.Context, harel.ActionContext) error {
			doneR1++
			return nil
		}))
		r1.State("a").On("fa", "both").To("af")
		r1.Final("af")
		r2 := p.State("R2").Initial("b")
		r2.State("b").On("fb", "both").To("bf")
		r2.Final("bf")
		main.State("finished")
		chart, err := b.Build()
		require.NoError(t, err)
		eng, h := start(t, chart)

		for i, name := range script {
			h = send(t, eng, chart, h, name)
			if i < len(script)-1 {
				assert.Equal(t, 0, doneP, "%v: parallel done before every region is final", script)
			}
		}
		assert.Equal(t, "main,finished", config(chart, h), "%v", script)
		assert.Equal(t, 1, doneP, "%v", script)
		assert.Equal(t, 1, doneR1, "%v", script)
	}
}

func TestParallelOfFinalStates(t *testing.T) {
	t.Parallel()
	var done int
	b := harel.NewBuilder("final-regions")
	b.State("idle").On("go").To("Q")
	q := b.Parallel("Q")
	q.Final("q1")
	q.Final("q2")
	q.OnDone().To("end").Do(harel.ActionFunc(func(context.Context, harel.ActionContext) error {
		done++
		return nil
	}))
	b.State("end")
	chart, err := b.Build()
	require.NoError(t, err)
	eng, h := start(t, chart)

	h = send(t, eng, chart, h, "go")
	assert.Equal(t, "end", config(chart, h))
	assert.Equal(t, 1, done)
}
