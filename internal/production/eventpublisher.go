package production

import (
	"context"
	"log/slog"
	"sync"

	"github.com/comalice/harel/internal/core"
)

// ChannelPublisher forwards records to a Go channel. Publish never blocks:
// records are dropped while the channel is full.
type ChannelPublisher struct {
	ch        chan<- core.Record
	closeOnce sync.Once
}

// NewChannelPublisher publishes into ch. Close closes ch.
func NewChannelPublisher(ch chan<- core.Record) *ChannelPublisher {
	return &ChannelPublisher{ch: ch}
}

func (p *ChannelPublisher) Publish(ctx context.Context, rec core.Record) error {
	select {
	case p.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (p *ChannelPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.ch) })
	return nil
}

// LogPublisher writes every record to a structured logger.
type LogPublisher struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogPublisher logs records at level.
func NewLogPublisher(logger *slog.Logger, level slog.Level) *LogPublisher {
	return &LogPublisher{logger: logger, level: level}
}

func (p *LogPublisher) Publish(ctx context.Context, rec core.Record) error {
	p.logger.Log(ctx, p.level, "configuration changed",
		slog.String("machine", rec.MachineID),
		slog.String("chart", rec.Chart),
		slog.String("event", rec.Event),
		slog.Any("from", rec.From),
		slog.Any("to", rec.To),
		slog.Bool("halted", rec.Halted),
	)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// MultiPublisher fans a record out to several publishers.
type MultiPublisher []core.Publisher

func (m MultiPublisher) Publish(ctx context.Context, rec core.Record) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiPublisher) Close() error {
	var first error
	for _, p := range m {
		if err := p.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
