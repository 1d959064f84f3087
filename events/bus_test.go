package events_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Dosada05/field-booking-system/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type countingSubscriber struct {
	mu    sync.Mutex
	seen  []events.Event
	done  chan struct{}
	want  int
	panic bool
}

func newCountingSubscriber(want int) *countingSubscriber {
	return &countingSubscriber{done: make(chan struct{}), want: want}
}

func (s *countingSubscriber) Notify(event events.Event) {
	if s.panic {
		panic("subscriber blew up")
	}
	s.mu.Lock()
	s.seen = append(s.seen, event)
	if len(s.seen) == s.want {
		close(s.done)
	}
	s.mu.Unlock()
}

func (s *countingSubscriber) wait(t *testing.T) {
	t.Helper()
	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive expected events in time")
	}
}

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	first := newCountingSubscriber(3)
	second := newCountingSubscriber(3)
	bus := events.NewBus(discardLogger(), []events.Subscriber{first, second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	for i := 1; i <= 3; i++ {
		bus.Publish(events.Event{Type: events.PlayerJoined, MatchID: i})
	}

	first.wait(t)
	second.wait(t)
	assert.Len(t, first.seen, 3)
	assert.Len(t, second.seen, 3)
}

func TestBus_FillsOccurredAt(t *testing.T) {
	sub := newCountingSubscriber(1)
	bus := events.NewBus(discardLogger(), []events.Subscriber{sub})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Publish(events.Event{Type: events.MatchCreated, MatchID: 1})
	sub.wait(t)

	assert.False(t, sub.seen[0].OccurredAt.IsZero())
}

func TestBus_DropsWhenQueueFull(t *testing.T) {
	// Воркеры не запущены: очередь в один слот переполняется вторым событием.
	bus := events.NewBus(discardLogger(), nil, events.WithQueueSize(1))

	bus.Publish(events.Event{Type: events.MatchCreated, MatchID: 1})
	bus.Publish(events.Event{Type: events.MatchCreated, MatchID: 2})
	bus.Publish(events.Event{Type: events.MatchCreated, MatchID: 3})

	assert.Equal(t, int64(2), bus.Dropped())
}

func TestBus_PanickingSubscriberDoesNotStopOthers(t *testing.T) {
	bad := newCountingSubscriber(1)
	bad.panic = true
	good := newCountingSubscriber(2)
	bus := events.NewBus(discardLogger(), []events.Subscriber{bad, good}, events.WithWorkers(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	bus.Publish(events.Event{Type: events.PlayerLeft, MatchID: 1})
	bus.Publish(events.Event{Type: events.PlayerLeft, MatchID: 2})

	good.wait(t)
	assert.Len(t, good.seen, 2)
}
