package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 4
)

// Bus — ограниченная очередь событий с пулом воркеров. Публикация никогда
// не блокирует вызывающего: при переполненной очереди событие отбрасывается
// и считается, а переход, его породивший, не откатывается.
type Bus struct {
	queue       chan Event
	subscribers []Subscriber
	logger      *slog.Logger
	workers     int
	dropped     atomic.Int64
	wg          sync.WaitGroup
}

type BusOption func(*Bus)

func WithQueueSize(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan Event, n)
		}
	}
}

func WithWorkers(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.workers = n
		}
	}
}

func NewBus(logger *slog.Logger, subscribers []Subscriber, opts ...BusOption) *Bus {
	b := &Bus{
		queue:       make(chan Event, defaultQueueSize),
		subscribers: subscribers,
		logger:      logger,
		workers:     defaultWorkers,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish ставит событие в очередь. Пустое OccurredAt заполняется текущим временем.
func (b *Bus) Publish(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	select {
	case b.queue <- event:
	default:
		dropped := b.dropped.Add(1)
		b.logger.Warn("event queue full, event dropped",
			slog.String("type", string(event.Type)),
			slog.Int64("dropped_total", dropped),
		)
	}
}

// Dropped возвращает число отброшенных событий с момента старта.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Run запускает воркеров и блокируется до отмены контекста. События,
// оставшиеся в очереди на момент отмены, не доставляются.
func (b *Bus) Run(ctx context.Context) {
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(ctx)
	}
	b.wg.Wait()
}

func (b *Bus) worker(ctx context.Context) {
	defer b.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-b.queue:
			b.dispatch(event)
		}
	}
}

func (b *Bus) dispatch(event Event) {
	for _, sub := range b.subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event subscriber panicked",
						slog.String("type", string(event.Type)),
						slog.Any("panic", r),
					)
				}
			}()
			sub.Notify(event)
		}()
	}
}
