package eventbus

import (
	"fmt"
	"log/slog"
	"sync"
)

// Topic is a named, typed channel on the bus. The type parameter fixes the
// payload so publishers and subscribers cannot disagree on its shape.
type Topic[T any] struct {
	name string
}

// NewTopic declares a topic. Names must be unique per bus.
func NewTopic[T any](name string) Topic[T] {
	return Topic[T]{name: name}
}

// Name returns the topic name.
func (t Topic[T]) Name() string {
	return t.name
}

type subscriber struct {
	id      uint64
	handler func(any)
}

// Bus is an in-process publish/subscribe fabric.
// Delivery is synchronous, in subscription order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]subscriber
	nextID uint64
	logger *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used to report handler panics.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string][]subscriber),
		logger: slog.Default().With("component", "eventbus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topic and returns an unsubscribe function.
// Calling the returned function more than once is a no-op.
func Subscribe[T any](b *Bus, topic Topic[T], handler func(T)) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[topic.name] = append(b.subs[topic.name], subscriber{
		id: id,
		handler: func(v any) {
			handler(v.(T))
		},
	})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.remove(topic.name, id)
		})
	}
}

// Publish delivers payload to every current subscriber of topic and returns
// the number of handlers invoked. Handlers added or removed during delivery
// take effect on the next Publish.
func Publish[T any](b *Bus, topic Topic[T], payload T) int {
	b.mu.RLock()
	snapshot := append([]subscriber(nil), b.subs[topic.name]...)
	b.mu.RUnlock()

	for _, s := range snapshot {
		b.deliver(topic.name, s, payload)
	}
	return len(snapshot)
}

// SubscriberCount returns the number of handlers registered for a topic name.
func (b *Bus) SubscriberCount(name string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func (b *Bus) deliver(name string, s subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("handler panic", "topic", name, "subscriber", s.id, "panic", fmt.Sprint(r))
		}
	}()
	s.handler(payload)
}

func (b *Bus) remove(name string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[name]
	for i, s := range subs {
		if s.id == id {
			// Copy so in-flight snapshots keep their own backing array.
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, name)
			} else {
				b.subs[name] = next
			}
			return
		}
	}
}
