// Package benchmarks holds runtime benchmarks and the chart generators they
// share.
package benchmarks

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/harel"
)

// Tick is the event every generated chart reacts to.
var Tick = harel.NewEvent("tick", nil)

// GenFlatChart creates n atomic root states cycling on "tick".
func GenFlatChart(n int) *harel.Chart {
	if n < 1 {
		n = 1
	}
	b := harel.NewBuilder(fmt.Sprintf("flat_%d", n))
	for i := 0; i < n; i++ {
		b.State(fmt.Sprintf("s%d", i)).On("tick").To(fmt.Sprintf("s%d", (i+1)%n))
	}
	return b.MustBuild()
}

// GenDeepChart creates depth nested compound states with two leaves at the
// bottom flipping on "tick".
func GenDeepChart(depth int) *harel.Chart {
	if depth < 1 {
		depth = 1
	}
	b := harel.NewBuilder(fmt.Sprintf("deep_%d", depth))
	sb := b.State("c0")
	for i := 1; i < depth; i++ {
		label := fmt.Sprintf("c%d", i)
		sb.Initial(label)
		sb = sb.State(label)
	}
	sb.Initial("leaf1")
	sb.State("leaf1").On("tick").To("leaf2")
	sb.State("leaf2").On("tick").To("leaf1")
	return b.MustBuild()
}

// GenWideChart creates one state with n guarded "tick" transitions of which
// only the last is enabled, so selection scans all of them.
func GenWideChart(n int) *harel.Chart {
	if n < 1 {
		n = 1
	}
	b := harel.NewBuilder(fmt.Sprintf("wide_%d", n))
	main := b.State("main")
	for i := 0; i < n; i++ {
		target := fmt.Sprintf("target%d", i)
		enabled := i == n-1
		main.On("tick").To(target).If("last", func(harel.ConditionContext) bool { return enabled })
		b.State(target).On("tick").To("main")
	}
	return b.MustBuild()
}

// GenParallelChart creates a parallel state with n regions, each flipping
// between two leaves on "tick".
func GenParallelChart(regions int) *harel.Chart {
	if regions < 1 {
		regions = 1
	}
	b := harel.NewBuilder(fmt.Sprintf("parallel_%d", regions))
	p := b.Parallel("p")
	for i := 0; i < regions; i++ {
		r := p.State(fmt.Sprintf("r%d", i))
		a, c := fmt.Sprintf("r%d.a", i), fmt.Sprintf("r%d.b", i)
		r.Initial(a)
		r.State(a).On("tick").To(c)
		r.State(c).On("tick").To(a)
	}
	return b.MustBuild()
}

// GenSnapshotYAML returns the YAML snapshot of a started chart after one
// "tick".
func GenSnapshotYAML(numStates int, hierarchical bool) []byte {
	var c *harel.Chart
	if hierarchical {
		c = GenDeepChart(numStates)
	} else {
		c = GenFlatChart(numStates)
	}
	ctx := context.Background()
	h, err := harel.Start(ctx, c)
	if err != nil {
		panic(err)
	}
	h, err = harel.Update(ctx, c, h.Advance(time.Millisecond), harel.On(Tick))
	if err != nil {
		panic(err)
	}
	snap, err := c.Snapshot(h)
	if err != nil {
		panic(err)
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		panic(err)
	}
	return data
}
