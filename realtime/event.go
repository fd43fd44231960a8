package realtime

import (
	"sort"

	"github.com/comalice/harel"
)

// EventWithMeta adds sequencing metadata for deterministic ordering.
type EventWithMeta struct {
	Event       harel.Event
	SequenceNum uint64
	Priority    int
}

// sortEvents orders a batch: higher priority first, then FIFO by sequence
// number.
func sortEvents(events []EventWithMeta) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Priority != events[j].Priority {
			return events[i].Priority > events[j].Priority
		}
		return events[i].SequenceNum < events[j].SequenceNum
	})
}
