package events

import (
	"context"
	"errors"
	"sync"
)

// Handler receives changes matching a subscription filter. Handlers run on the
// publisher's goroutine and must not block.
type Handler func(context.Context, Change)

// Subscription is an active feed subscription.
type Subscription interface {
	Close() error
}

// Feed publishes row changes and fans them out to subscribers.
type Feed interface {
	Publish(ctx context.Context, change Change) error
	Subscribe(ctx context.Context, filter Filter, handler Handler) (Subscription, error)
}

// ErrFeedClosed is returned by a closed feed.
var ErrFeedClosed = errors.New("feed closed")

type memorySubscriber struct {
	filter  Filter
	handler Handler
}

// MemoryFeed is a synchronous in-process feed.
type MemoryFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]memorySubscriber
	closed bool
}

// NewMemoryFeed creates an in-process feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]memorySubscriber)}
}

// Publish synchronously invokes every matching handler.
func (f *MemoryFeed) Publish(ctx context.Context, change Change) error {
	f.mu.RLock()
	if f.closed {
		f.mu.RUnlock()
		return ErrFeedClosed
	}
	matched := make([]Handler, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.filter.Match(change) {
			matched = append(matched, sub.handler)
		}
	}
	f.mu.RUnlock()

	for _, handler := range matched {
		handler(ctx, change)
	}
	return nil
}

// Subscribe registers handler until the subscription is closed or ctx ends.
func (f *MemoryFeed) Subscribe(ctx context.Context, filter Filter, handler Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrFeedClosed
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = memorySubscriber{filter: filter, handler: handler}

	sub := &memorySubscription{feed: f, id: id, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Close drops every subscriber.
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.subs = make(map[int]memorySubscriber)
	return nil
}

// Len returns the number of active subscribers.
func (f *MemoryFeed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

type memorySubscription struct {
	feed *MemoryFeed
	id   int
	once sync.Once
	done chan struct{}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.feed.mu.Lock()
		delete(s.feed.subs, s.id)
		s.feed.mu.Unlock()
		close(s.done)
	})
	return nil
}
