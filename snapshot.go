package harel

import (
	"fmt"
	"time"
)

// Snapshot is the serializable form of a StateMachine. States are recorded
// by label so a snapshot stays readable outside the process.
type Snapshot struct {
	Chart   string                   `json:"chart" yaml:"chart"`
	Version string                   `json:"version" yaml:"version"`
	Active  []string                 `json:"active" yaml:"active"`
	Entered map[string]time.Duration `json:"entered,omitempty" yaml:"entered,omitempty"`
	Elapsed time.Duration            `json:"elapsed" yaml:"elapsed"`
	// Data is the host data model. Chart.Snapshot leaves it empty; hosts
	// that own a DataModel fill it.
	Data map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Snapshot captures h. h must belong to c.
func (c *Chart) Snapshot(h StateMachine) (Snapshot, error) {
	if err := c.checkHandle(h); err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		Chart:   c.name,
		Version: c.version,
		Entered: make(map[string]time.Duration),
		Elapsed: h.elapsed,
	}
	h.active.each(func(id StateID) {
		label := c.states[id].label
		snap.Active = append(snap.Active, label)
		snap.Entered[label] = h.entered[id]
	})
	return snap, nil
}

// Restore rebuilds a handle from a snapshot taken on the same chart version.
// Unknown labels, a version mismatch or an illegal configuration yield
// ErrUnknownState.
func (c *Chart) Restore(snap Snapshot) (StateMachine, error) {
	if snap.Version != "" && snap.Version != c.version {
		return StateMachine{}, &Error{
			Kind:  KindUnknownState,
			Chart: c.name,
			Err:   fmt.Errorf("snapshot version %.12s does not match chart version %.12s", snap.Version, c.version),
		}
	}
	h := StateMachine{
		active:  newBitset(c.Len()),
		entered: make([]time.Duration, c.Len()),
		elapsed: snap.Elapsed,
	}
	for _, label := range snap.Active {
		id, ok := c.labels[label]
		if !ok {
			return StateMachine{}, &Error{Kind: KindUnknownState, Chart: c.name, State: label, Err: fmt.Errorf("no state labelled %q", label)}
		}
		h.active.set(id)
		h.entered[id] = snap.Entered[label]
	}
	if err := c.checkHandle(h); err != nil {
		return StateMachine{}, err
	}
	return h, nil
}
