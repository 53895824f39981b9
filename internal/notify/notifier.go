// Package notify fans committed change events out to topic subscribers.
// Publish never blocks: every subscriber owns a bounded queue and events
// that do not fit are dropped and counted.
package notify

import (
	"sync"
	"sync/atomic"

	"flowcore/pkg/domain"
)

const defaultBuffer = 64

// Logger receives drop diagnostics. *slog.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
}

// Topic filters events. Empty fields match anything.
type Topic struct {
	Kind      domain.Kind
	EntityID  string
	Operation domain.Operation
	Attribute string
}

// Matches reports whether ev falls under the topic.
func (t Topic) Matches(ev domain.Event) bool {
	return (t.Kind == "" || t.Kind == ev.EntityKind) &&
		(t.EntityID == "" || t.EntityID == ev.EntityID) &&
		(t.Operation == "" || t.Operation == ev.Operation) &&
		(t.Attribute == "" || t.Attribute == ev.AttributeName)
}

// Option customizes Bus construction.
type Option func(*Bus)

// WithLogger injects a logger for drop messages.
func WithLogger(l Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithDefaultBuffer sets the queue size used when Subscribe gets buffer <= 0.
func WithDefaultBuffer(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.buffer = n
		}
	}
}

// Bus is an in-process topic-filtered publisher.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscriber]struct{}
	closed  bool
	buffer  int
	logger  Logger
	dropped atomic.Int64
	wg      sync.WaitGroup
}

var _ domain.Publisher = (*Bus)(nil)

// New returns an open bus.
func New(opts ...Option) *Bus {
	b := &Bus{subs: make(map[*subscriber]struct{}), buffer: defaultBuffer}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscription is an active registration. Events is closed after
// Unsubscribe or Bus.Close.
type Subscription struct {
	Events <-chan domain.Event
	sub    *subscriber
}

// Dropped returns the number of events this subscription lost to overflow.
func (s *Subscription) Dropped() int64 {
	if s == nil || s.sub == nil {
		return 0
	}
	return s.sub.dropped.Load()
}

// Subscribe registers a queue of buffer events for topic.
func (b *Bus) Subscribe(topic Topic, buffer int) *Subscription {
	s, _ := b.subscribe(topic, buffer, false)
	return s
}

// SubscribeFunc registers fn for topic. fn runs on a dedicated goroutine
// draining the subscription queue in publish order. On a closed bus the
// subscription comes back already closed and fn never runs.
func (b *Bus) SubscribeFunc(topic Topic, buffer int, fn func(domain.Event)) *Subscription {
	s, open := b.subscribe(topic, buffer, true)
	if !open {
		return s
	}
	go func() {
		defer b.wg.Done()
		for ev := range s.Events {
			fn(ev)
		}
	}()
	return s
}

// subscribe registers a queue unless the bus is closed. With worker set the
// drain goroutine is counted under the lock Close takes, so no Add can land
// after Close has moved on to Wait.
func (b *Bus) subscribe(topic Topic, buffer int, worker bool) (*Subscription, bool) {
	if buffer <= 0 {
		buffer = b.buffer
	}
	sub := &subscriber{topic: topic, ch: make(chan domain.Event, buffer)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return &Subscription{Events: sub.ch, sub: sub}, false
	}
	b.subs[sub] = struct{}{}
	if worker {
		b.wg.Add(1)
	}
	return &Subscription{Events: sub.ch, sub: sub}, true
}

// Unsubscribe removes s and closes its queue. Calling it twice is harmless.
func (b *Bus) Unsubscribe(s *Subscription) {
	if s == nil || s.sub == nil {
		return
	}
	b.mu.Lock()
	delete(b.subs, s.sub)
	b.mu.Unlock()
	s.sub.close()
}

// Publish delivers ev to every matching subscriber without blocking.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		if !sub.topic.Matches(ev) {
			continue
		}
		if !sub.deliver(ev) {
			b.dropped.Add(1)
			if b.logger != nil {
				b.logger.Warn("notify: subscriber queue full, event dropped",
					"entity_kind", ev.EntityKind, "entity_id", ev.EntityID, "operation", ev.Operation, "attribute", ev.AttributeName)
			}
		}
	}
}

// Dropped returns the total number of events dropped across subscribers.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Close stops delivery, closes every queue and waits for SubscribeFunc
// goroutines to drain.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[*subscriber]struct{})
	b.mu.Unlock()
	for sub := range subs {
		sub.close()
	}
	b.wg.Wait()
}

type subscriber struct {
	topic   Topic
	ch      chan domain.Event
	mu      sync.Mutex
	closed  bool
	dropped atomic.Int64
}

func (s *subscriber) deliver(ev domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
