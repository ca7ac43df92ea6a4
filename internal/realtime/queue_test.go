package realtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingPublisher struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (b *blockingPublisher) Publish(_ context.Context, ev Event) {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *blockingPublisher) delivered() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueue_PublishNeverBlocks(t *testing.T) {
	slow := &blockingPublisher{release: make(chan struct{})}
	q := NewQueue("slow", slow, 2, discardLogger())

	start := time.Now()
	for i := 0; i < 5; i++ {
		q.Publish(context.Background(), Event{Type: EventPhotoUpdated})
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(3), q.Dropped())
}

func TestQueue_DeliversInOrder(t *testing.T) {
	slow := &blockingPublisher{release: make(chan struct{})}
	close(slow.release)
	q := NewQueue("ordered", slow, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- q.Run(ctx) }()

	for _, id := range []string{"p1", "p2", "p3"} {
		q.Publish(context.Background(), Event{Type: EventPhotoUpdated, PhotoID: id})
	}

	require.Eventually(t, func() bool { return len(slow.delivered()) == 3 }, time.Second, 5*time.Millisecond)
	got := slow.delivered()
	assert.Equal(t, "p1", got[0].PhotoID)
	assert.Equal(t, "p3", got[2].PhotoID)
	assert.Equal(t, int64(0), q.Dropped())

	cancel()
	assert.NoError(t, <-done)
}

func TestQueue_OutlivesRequestContext(t *testing.T) {
	rec := &recorder{}
	q := NewQueue("rec", rec, 1, discardLogger())

	reqCtx, cancelReq := context.WithCancel(context.Background())
	q.Publish(reqCtx, Event{Type: EventCancelled})
	cancelReq()

	item := <-q.events
	assert.NoError(t, item.ctx.Err())
	q.next.Publish(item.ctx, item.ev)
	assert.Len(t, rec.events, 1)
}
