package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/comalice/harel"
)

func benchUpdate(b *testing.B, c *harel.Chart) {
	b.Helper()
	ctx := context.Background()
	e := harel.NewEngine()
	h, err := e.Start(ctx, c)
	if err != nil {
		b.Fatal(err)
	}
	trigger := harel.On(Tick)
	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if h, err = e.Update(ctx, c, h, trigger); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSimpleTransition(b *testing.B) {
	benchUpdate(b, GenFlatChart(1))
}

func BenchmarkHierarchicalTransition(b *testing.B) {
	benchUpdate(b, GenDeepChart(2))
}

func BenchmarkParallelTransition(b *testing.B) {
	benchUpdate(b, GenParallelChart(2))
}

func BenchmarkGuardedTransition(b *testing.B) {
	benchUpdate(b, GenWideChart(1))
}

func BenchmarkDeepTransition(b *testing.B) {
	for _, depth := range []int{1, 5, 20, 50} {
		b.Run(fmt.Sprintf("depth=%d", depth), func(b *testing.B) {
			benchUpdate(b, GenDeepChart(depth))
		})
	}
}

func BenchmarkWideTransition(b *testing.B) {
	for _, n := range []int{1, 10, 100} {
		b.Run(fmt.Sprintf("transitions=%d", n), func(b *testing.B) {
			benchUpdate(b, GenWideChart(n))
		})
	}
}

func BenchmarkParallelRegions(b *testing.B) {
	for _, n := range []int{2, 8, 32} {
		b.Run(fmt.Sprintf("regions=%d", n), func(b *testing.B) {
			benchUpdate(b, GenParallelChart(n))
		})
	}
}
