package production

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/core"
)

func TestChannelPublisher_Delivery(t *testing.T) {
	ch := make(chan core.Record, 1)
	p := NewChannelPublisher(ch)
	rec := core.Record{MachineID: "m", Event: "go", From: []string{"A"}, To: []string{"B"}, Timestamp: time.Now()}

	require.NoError(t, p.Publish(context.Background(), rec))
	// full channel drops
	require.NoError(t, p.Publish(context.Background(), rec))

	assert.Equal(t, rec, <-ch)
	select {
	case <-ch:
		t.Fatal("second record should have been dropped")
	default:
	}

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestChannelPublisher_CancelledContext(t *testing.T) {
	p := NewChannelPublisher(make(chan core.Record))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Publish(ctx, core.Record{})
	// either branch may win: a cancelled context or a dropped record
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(slog.New(slog.NewTextHandler(&buf, nil)), slog.LevelInfo)
	require.NoError(t, p.Publish(context.Background(), core.Record{MachineID: "m-7", Event: "open"}))
	require.NoError(t, p.Close())
	assert.Contains(t, buf.String(), "configuration changed")
	assert.Contains(t, buf.String(), "machine=m-7")
	assert.Contains(t, buf.String(), "event=open")
}

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(context.Context, core.Record) error { return f.err }
func (f failingPublisher) Close() error                               { return f.err }

func TestMultiPublisher(t *testing.T) {
	ch := make(chan core.Record, 1)
	boom := errors.New("boom")
	m := MultiPublisher{failingPublisher{boom}, NewChannelPublisher(ch)}

	assert.ErrorIs(t, m.Publish(context.Background(), core.Record{MachineID: "x"}), boom)
	assert.Equal(t, "x", (<-ch).MachineID)
	assert.ErrorIs(t, m.Close(), boom)
}

func TestMachinePublishesToChannel(t *testing.T) {
	ch := make(chan core.Record, 10)
	m := core.NewMachine(doorChart(t), core.WithID("door"), core.WithPublisher(NewChannelPublisher(ch)))
	require.NoError(t, m.Start(context.Background()))
	defer m.Stop()

	for _, ev := range []string{"open", "push", "close"} {
		require.NoError(t, m.Send(harel.NewEvent(ev, nil)))
	}
	require.NoError(t, m.Sync(context.Background()))

	var got [][]string
	for i := 0; i < 3; i++ {
		rec := <-ch
		assert.Equal(t, "door", rec.MachineID)
		got = append(got, rec.To)
	}
	assert.Equal(t, [][]string{{"opened", "ajar"}, {"opened", "wide"}, {"closed"}}, got)
}
