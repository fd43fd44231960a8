package extensibility

import (
	"sync"
	"time"

	"github.com/comalice/harel"
)

// ChannelEventSource feeds events written to a Go channel into a machine.
type ChannelEventSource struct {
	ch chan harel.Event
}

// NewChannelEventSource wraps ch. Buffer it if producers should not block
// while the machine is busy.
func NewChannelEventSource(ch chan harel.Event) *ChannelEventSource {
	return &ChannelEventSource{ch: ch}
}

// Events returns the receive side of the channel.
func (s *ChannelEventSource) Events() <-chan harel.Event {
	return s.ch
}

// TimerEventSource emits the same event every period. Useful for timeouts
// and heartbeats, and for driving delayed transitions in wall-clock hosts.
type TimerEventSource struct {
	ch       chan harel.Event
	event    harel.Event
	ticker   *time.Ticker
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTimerEventSource starts a ticker emitting an event named name with the
// given properties every d.
func NewTimerEventSource(name string, props map[string]string, d time.Duration) *TimerEventSource {
	t := &TimerEventSource{
		ch:     make(chan harel.Event, 10),
		event:  harel.NewEvent(name, props),
		ticker: time.NewTicker(d),
		stop:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TimerEventSource) run() {
	for {
		select {
		case <-t.ticker.C:
			select {
			case t.ch <- t.event:
			default:
				// consumer is behind; drop the tick
			}
		case <-t.stop:
			t.ticker.Stop()
			close(t.ch)
			return
		}
	}
}

// Events returns the event channel. It is closed after Stop.
func (t *TimerEventSource) Events() <-chan harel.Event {
	return t.ch
}

// Stop stops the ticker. Safe to call more than once.
func (t *TimerEventSource) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}
