package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
)

func ev(name string) harel.Event { return harel.NewEvent(name, nil) }

// orderChart ends in a different state depending on whether x or y is
// applied first.
func orderChart(t *testing.T) *harel.Chart {
	t.Helper()
	b := harel.NewBuilder("order")
	a := b.State("A")
	a.On("x").To("B")
	a.On("y").To("C")
	b.State("B").On("y").To("D")
	b.State("C").On("x").To("E")
	b.State("D")
	b.State("E")
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func initialized(t *testing.T, c *harel.Chart, cfg Config) *Runtime {
	t.Helper()
	rt := NewRuntime(c, cfg)
	require.NoError(t, rt.Init(context.Background()))
	return rt
}

func TestRuntimeDefaults(t *testing.T) {
	rt := NewRuntime(orderChart(t), Config{})
	assert.Equal(t, 16667*time.Microsecond, rt.TickRate())
	assert.Equal(t, 1000, rt.maxEvents)
	assert.Zero(t, rt.TickNumber())
}

func TestStepBeforeInitIsNoop(t *testing.T) {
	rt := NewRuntime(orderChart(t), Config{})
	require.NoError(t, rt.SendEvent(ev("x")))
	rt.Step(context.Background())
	assert.Zero(t, rt.TickNumber())

	require.NoError(t, rt.Init(context.Background()))
	rt.Step(context.Background())
	assert.True(t, rt.Current().In(rt.chart, "B"))
}

func TestEventsWaitForTick(t *testing.T) {
	c := orderChart(t)
	rt := initialized(t, c, Config{TickRate: time.Millisecond})

	require.NoError(t, rt.SendEvent(ev("x")))
	require.NoError(t, rt.SendEvent(ev("y")))
	assert.Equal(t, []string{"A"}, rt.Current().Labels(c))

	rt.Step(context.Background())
	assert.Equal(t, []string{"D"}, rt.Current().Labels(c))
	assert.Equal(t, uint64(1), rt.TickNumber())
	assert.Equal(t, time.Millisecond, rt.Current().Elapsed())
}

func TestPriorityOrdering(t *testing.T) {
	c := orderChart(t)
	rt := initialized(t, c, Config{})

	require.NoError(t, rt.SendEvent(ev("x")))
	require.NoError(t, rt.SendEventWithPriority(ev("y"), 5))
	rt.Step(context.Background())
	assert.Equal(t, []string{"E"}, rt.Current().Labels(c))
}

func TestSortEvents(t *testing.T) {
	events := []EventWithMeta{
		{Event: ev("a"), SequenceNum: 0, Priority: 0},
		{Event: ev("b"), SequenceNum: 1, Priority: 2},
		{Event: ev("c"), SequenceNum: 2, Priority: 0},
		{Event: ev("d"), SequenceNum: 3, Priority: 2},
		{Event: ev("e"), SequenceNum: 4, Priority: -1},
	}
	sortEvents(events)
	var names []string
	for _, e := range events {
		names = append(names, e.Event.Name())
	}
	assert.Equal(t, []string{"b", "d", "a", "c", "e"}, names)
}

func TestQueueFull(t *testing.T) {
	rt := initialized(t, orderChart(t), Config{MaxEventsPerTick: 2})
	require.NoError(t, rt.SendEvent(ev("x")))
	require.NoError(t, rt.SendEvent(ev("y")))
	assert.ErrorIs(t, rt.SendEvent(ev("x")), ErrQueueFull)
	assert.Error(t, rt.SendEvent(nil))

	rt.Step(context.Background())
	assert.NoError(t, rt.SendEvent(ev("x")))
}

func TestDelayedTransitionOnTicks(t *testing.T) {
	b := harel.NewBuilder("delay")
	b.State("wait").After(50 * time.Millisecond).To("done")
	b.State("done")
	c, err := b.Build()
	require.NoError(t, err)

	rt := initialized(t, c, Config{TickRate: 10 * time.Millisecond})
	for i := 0; i < 4; i++ {
		rt.Step(context.Background())
	}
	assert.True(t, rt.Current().In(c, "wait"))
	rt.Step(context.Background())
	assert.True(t, rt.Current().In(c, "done"))
}

func TestParallelRegionsInOneTick(t *testing.T) {
	b := harel.NewBuilder("regions")
	p := b.Parallel("P")
	l := p.State("L").Initial("l1")
	l.State("l1").On("go").To("l2")
	l.State("l2")
	r := p.State("R").Initial("r1")
	r.State("r1").On("go").To("r2")
	r.State("r2")
	c, err := b.Build()
	require.NoError(t, err)

	rt := initialized(t, c, Config{})
	require.NoError(t, rt.SendEvent(ev("go")))
	rt.Step(context.Background())
	assert.Equal(t, []string{"P", "L", "l2", "R", "r2"}, rt.Current().Labels(c))
}

func TestActionErrorKeepsHandle(t *testing.T) {
	boom := errors.New("boom")
	b := harel.NewBuilder("fail")
	b.State("A").On("go").To("B").Do(harel.NewAction("explode", func(context.Context, harel.ActionContext) error {
		return boom
	}))
	b.State("B")
	c, err := b.Build()
	require.NoError(t, err)

	rt := initialized(t, c, Config{})
	require.NoError(t, rt.SendEvent(ev("go")))
	rt.Step(context.Background())
	assert.True(t, rt.Current().In(c, "A"))
	assert.ErrorIs(t, rt.Err(), boom)
}

func TestDeterministicReplay(t *testing.T) {
	c := orderChart(t)
	script := [][]struct {
		name     string
		priority int
	}{
		{{"y", 0}, {"x", 1}},
		{{"x", 0}},
	}
	run := func() harel.StateMachine {
		rt := initialized(t, c, Config{})
		for _, tick := range script {
			for _, e := range tick {
				require.NoError(t, rt.SendEventWithPriority(ev(e.name), e.priority))
			}
			rt.Step(context.Background())
		}
		return rt.Current()
	}
	first := run()
	for i := 0; i < 5; i++ {
		assert.True(t, first.Equal(run()))
	}
}

func TestConcurrentSendEvent(t *testing.T) {
	var fired int
	b := harel.NewBuilder("count")
	b.State("A").On("hit").Do(harel.NewAction("count", func(context.Context, harel.ActionContext) error {
		fired++
		return nil
	}))
	c, err := b.Build()
	require.NoError(t, err)

	rt := initialized(t, c, Config{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				assert.NoError(t, rt.SendEvent(ev("hit")))
			}
		}()
	}
	wg.Wait()
	rt.Step(context.Background())
	assert.Equal(t, 200, fired)
}

func TestTickLoop(t *testing.T) {
	c := orderChart(t)
	rt := NewRuntime(c, Config{TickRate: 5 * time.Millisecond})
	require.NoError(t, rt.Start(context.Background()))
	assert.ErrorIs(t, rt.Start(context.Background()), ErrRunning)

	require.NoError(t, rt.SendEvent(ev("x")))
	assert.Eventually(t, func() bool {
		return rt.Current().In(c, "B") && rt.TickNumber() >= 3
	}, time.Second, time.Millisecond)

	require.NoError(t, rt.Stop())
	require.NoError(t, rt.Stop())
	ticks := rt.TickNumber()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, rt.TickNumber())

	// restart keeps the configuration
	require.NoError(t, rt.Start(context.Background()))
	defer rt.Stop()
	assert.True(t, rt.Current().In(c, "B"))
}
