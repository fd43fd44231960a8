package harel

import (
	"hash/fnv"
	"maps"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// EventID is the deterministic identifier of an event name.
type EventID uint64

// eventDomain versions the event id algorithm. Changing the hash input layout
// requires a new domain string.
const eventDomain = "harel/event/v1"

// DoneEventPrefix prefixes the completion events raised for Compound and
// Parallel states ("done.state.<label>").
const DoneEventPrefix = "done.state."

// HashEventName returns the id of an event name: FNV-1a 64 over
// "harel/event/v1", a 0x00 separator and the NFC form of the name.
// Names are case-sensitive.
func HashEventName(name string) EventID {
	h := fnv.New64a()
	h.Write([]byte(eventDomain))
	h.Write([]byte{0x00})
	h.Write([]byte(normalizeName(name)))
	return EventID(h.Sum64())
}

func normalizeName(s string) string {
	if norm.NFC.IsNormalString(s) {
		return s
	}
	return norm.NFC.String(s)
}

// DoneEventName returns the name of the completion event for a state label.
func DoneEventName(label string) string {
	return DoneEventPrefix + label
}

// basicEvent is the Event implementation returned by NewEvent.
type basicEvent struct {
	id    EventID
	name  string
	props map[string]string
}

// NewEvent returns an immutable Event. The properties map is copied.
func NewEvent(name string, props map[string]string) Event {
	return &basicEvent{
		id:    HashEventName(name),
		name:  name,
		props: maps.Clone(props),
	}
}

func (e *basicEvent) ID() EventID  { return e.id }
func (e *basicEvent) Name() string { return e.name }

func (e *basicEvent) Properties() map[string]string {
	return maps.Clone(e.props)
}

func (e *basicEvent) String() string { return e.name }

// descriptor is one entry of a transition's event matcher.
type descriptor struct {
	raw      string
	name     string
	id       EventID
	wildcard bool
}

func newDescriptor(raw string) descriptor {
	name := normalizeName(strings.TrimSuffix(raw, ".*"))
	return descriptor{
		raw:      raw,
		name:     name,
		id:       HashEventName(name),
		wildcard: name == "*",
	}
}

// matches reports whether e is accepted: "*" accepts every event, otherwise
// the descriptor must equal the event name or be a dot-separated prefix of it.
func (d descriptor) matches(e Event) bool {
	if d.wildcard || d.id == e.ID() {
		return true
	}
	name := normalizeName(e.Name())
	if name == d.name {
		return true
	}
	return len(name) > len(d.name) && name[len(d.name)] == '.' && strings.HasPrefix(name, d.name)
}
