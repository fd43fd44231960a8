package production

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
)

func TestMetricsHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	eng := harel.NewEngine(harel.WithLifecycleHooks(m.Hooks()))
	c := doorChart(t)
	ctx := context.Background()

	h, err := eng.Start(ctx, c)
	require.NoError(t, err)
	h, err = eng.Update(ctx, c, h, harel.On(harel.NewEvent("open", nil)))
	require.NoError(t, err)
	_, err = eng.Update(ctx, c, h, harel.On(harel.NewEvent("nothing", nil)))
	require.True(t, harel.IsIgnorable(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateEntries.WithLabelValues("door", "closed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stateEntries.WithLabelValues("door", "ajar")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("door")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.macrosteps.WithLabelValues("door", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.macrosteps.WithLabelValues("door", "ignored")))

	n, err := testutil.GatherAndCount(reg, "harel_macrostep_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewMetricsWithoutRegistry(t *testing.T) {
	m := NewMetrics(nil)
	m.Hooks().OnMacrostep(context.Background(), &harel.MacrostepEvent{Chart: "c", Ignored: true})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.macrosteps.WithLabelValues("c", "ignored")))
}
