package harel_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
)

// recorder collects the names of executed actions.
type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, s)
}

func (r *recorder) entries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.log...)
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = nil
}

func (r *recorder) action(name string) harel.Action {
	return harel.NewAction(name, func(context.Context, harel.ActionContext) error {
		r.add(name)
		return nil
	})
}

func (r *recorder) enter(label string) harel.Action { return r.action("enter:" + label) }
func (r *recorder) exit(label string) harel.Action  { return r.action("exit:" + label) }

// traced declares a state whose entry and exit are recorded.
func traced(r *recorder, sb *harel.StateBuilder) *harel.StateBuilder {
	return sb.OnEntry(r.enter(sb.Label())).OnExit(r.exit(sb.Label()))
}

func event(name string) harel.Trigger {
	return harel.On(harel.NewEvent(name, nil))
}

func start(t *testing.T, chart *harel.Chart, opts ...harel.Option) (*harel.Engine, harel.StateMachine) {
	t.Helper()
	eng := harel.NewEngine(opts...)
	h, err := eng.Start(context.Background(), chart)
	require.NoError(t, err)
	return eng, h
}

func send(t *testing.T, eng *harel.Engine, chart *harel.Chart, h harel.StateMachine, name string) harel.StateMachine {
	t.Helper()
	next, err := eng.Update(context.Background(), chart, h, event(name))
	require.NoError(t, err, "event %s", name)
	require.NoError(t, chart.CheckConfiguration(next))
	return next
}

func config(chart *harel.Chart, h harel.StateMachine) string {
	return strings.Join(h.Labels(chart), ",")
}
