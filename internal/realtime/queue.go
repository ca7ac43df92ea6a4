package realtime

import (
	"context"
	"log/slog"
	"sync/atomic"
)

const DefaultQueueSize = 256

// Queue decouples callers from a slow publisher. Publish never blocks: events
// are buffered and delivered in order by Run, and dropped when the buffer is
// full.
type Queue struct {
	name    string
	next    Publisher
	events  chan queued
	logger  *slog.Logger
	dropped atomic.Int64
}

type queued struct {
	ctx context.Context
	ev  Event
}

func NewQueue(name string, next Publisher, size int, logger *slog.Logger) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{
		name:   name,
		next:   next,
		events: make(chan queued, size),
		logger: logger,
	}
}

func (q *Queue) Publish(ctx context.Context, ev Event) {
	select {
	case q.events <- queued{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		n := q.dropped.Add(1)
		q.logger.WarnContext(ctx, "realtime queue full, dropping event",
			"publisher", q.name, "type", ev.Type, "dropped_total", n)
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}

// Run delivers queued events until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-q.events:
			q.next.Publish(item.ctx, item.ev)
		}
	}
}
