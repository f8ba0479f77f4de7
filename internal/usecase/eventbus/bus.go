package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"conductor/internal/domain"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscriber struct {
	id      uint64
	typ     domain.EventType // empty: every event
	handler domain.EventHandler
	queue   chan delivery
}

// Bus is an in-process event bus. Each subscriber has its own queue and
// goroutine, so it sees events in publish order. Publish never blocks: when a
// subscriber's queue is full the event is dropped for that subscriber.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  atomic.Uint64
	dropped atomic.Uint64
	closed  bool
	buffer  int
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// Option configures a Bus.
type Option func(*Bus)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[uint64]*subscriber),
		buffer: DefaultBuffer,
		logger: logger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Publish queues event for every matching subscriber. Handlers receive a
// context that is not cancelled when ctx is.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	d := delivery{ctx: context.WithoutCancel(ctx), event: event}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if s.typ != "" && s.typ != event.Type {
			continue
		}
		select {
		case s.queue <- d:
		default:
			b.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber queue full",
				"event", string(event.Type),
				"subscriber", s.id,
			)
		}
	}
}

// Subscribe registers a handler for one event type. The returned function
// unsubscribes; events already queued are still delivered.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler for every event type.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

func (b *Bus) add(typ domain.EventType, handler domain.EventHandler) func() {
	s := &subscriber{
		id:      b.nextID.Add(1),
		typ:     typ,
		handler: handler,
		queue:   make(chan delivery, b.buffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[s.id] = s
	b.wg.Add(1)
	b.mu.Unlock()

	go b.drain(s)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(s.id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(s.queue)
	}
}

func (b *Bus) drain(s *subscriber) {
	defer b.wg.Done()
	for d := range s.queue {
		b.deliver(s, d)
	}
}

func (b *Bus) deliver(s *subscriber, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"subscriber", s.id,
				"panic", r,
			)
		}
	}()
	s.handler(d.ctx, d.event)
}

// Dropped returns how many deliveries were discarded because a queue was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close stops accepting events, delivers everything already queued and
// waits for the handlers to return. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for id, s := range b.subs {
		delete(b.subs, id)
		close(s.queue)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

// LogEvents subscribes a handler that writes every event to logger at debug level.
func LogEvents(bus domain.EventBus, logger *slog.Logger) func() {
	return bus.SubscribeAll(func(_ context.Context, ev domain.Event) {
		logger.Debug("event",
			"type", string(ev.Type),
			"agent_id", ev.AgentID,
			"conversation_id", ev.ConversationID,
			"payload", string(ev.Payload),
		)
	})
}
