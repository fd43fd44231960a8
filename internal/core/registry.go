package core

import (
	"context"
	"errors"
	"time"

	"github.com/comalice/harel"
)

var (
	ErrNotFound  = errors.New("machine or revision not found")
	ErrQueueFull = errors.New("event queue full (backpressure)")
	ErrStopped   = errors.New("machine stopped")
)

// Store persists the latest snapshot of each machine instance.
type Store interface {
	Save(ctx context.Context, machineID string, snap harel.Snapshot) error
	// Load returns ErrNotFound for unknown machine ids.
	Load(ctx context.Context, machineID string) (harel.Snapshot, error)
}

// History is a Store that keeps every saved snapshot as a revision.
type History interface {
	Store

	// Revisions lists the revisions of machineID, newest first.
	Revisions(ctx context.Context, machineID string) ([]Revision, error)

	// Revision returns the snapshot saved as rev.
	Revision(ctx context.Context, machineID, rev string) (harel.Snapshot, error)

	// Machines lists every machine id with at least one revision.
	Machines(ctx context.Context) ([]string, error)
}

// Revision identifies one saved snapshot.
type Revision struct {
	ID        string    `json:"id" yaml:"id"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Record describes one completed macrostep of a machine.
type Record struct {
	MachineID string    `json:"machineID" yaml:"machineID"`
	Chart     string    `json:"chart" yaml:"chart"`
	Event     string    `json:"event,omitempty" yaml:"event,omitempty"`
	From      []string  `json:"from" yaml:"from"`
	To        []string  `json:"to" yaml:"to"`
	Halted    bool      `json:"halted,omitempty" yaml:"halted,omitempty"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Publisher receives a Record after every macrostep that changed the
// configuration.
type Publisher interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// EventSource is an external producer of events.
type EventSource interface {
	Events() <-chan harel.Event
}
