package testutil

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
)

// RequireLegal fails the test unless h is a legal configuration of c.
func RequireLegal(t testing.TB, c *harel.Chart, h harel.StateMachine) {
	t.Helper()
	require.NoError(t, c.CheckConfiguration(h), "illegal configuration %s", h.Format(c))
}

// AssertActive checks that exactly the given labels are active, in
// document order.
func AssertActive(t testing.TB, c *harel.Chart, h harel.StateMachine, labels ...string) bool {
	t.Helper()
	return assert.Equal(t, labels, h.Labels(c))
}

// AssertLeaves checks the active atomic and final states.
func AssertLeaves(t testing.TB, c *harel.Chart, h harel.StateMachine, labels ...string) bool {
	t.Helper()
	var got []string
	for _, id := range h.Leaves(c) {
		got = append(got, c.Label(id))
	}
	return assert.Equal(t, labels, got)
}

// Send applies events in order, requiring each to fire and leave a legal
// configuration.
func Send(t testing.TB, c *harel.Chart, h harel.StateMachine, names ...string) harel.StateMachine {
	t.Helper()
	for _, name := range names {
		next, err := harel.Update(context.Background(), c, h, harel.On(harel.NewEvent(name, nil)))
		require.NoError(t, err, "event %q", name)
		RequireLegal(t, c, next)
		h = next
	}
	return h
}

// Trace records action executions as strings.
type Trace struct {
	mu      sync.Mutex
	entries []string
}

// Action returns an action that records name.
func (tr *Trace) Action(name string) harel.Action {
	return harel.NewAction(name, func(context.Context, harel.ActionContext) error {
		tr.Record(name)
		return nil
	})
}

// Enter and Exit return actions recording "enter:label" and "exit:label".
func (tr *Trace) Enter(label string) harel.Action { return tr.Action("enter:" + label) }
func (tr *Trace) Exit(label string) harel.Action  { return tr.Action("exit:" + label) }

// Record appends an entry.
func (tr *Trace) Record(entry string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.entries = append(tr.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (tr *Trace) Entries() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.entries...)
}

// Reset clears the trace.
func (tr *Trace) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.entries = nil
}

func (tr *Trace) String() string {
	return strings.Join(tr.Entries(), " ")
}
