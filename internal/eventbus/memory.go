package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"achievements/internal/achievement"
)

// Memory is an in-process bus. Publish blocks until every subscriber has
// room in its buffer, so a slow consumer applies backpressure instead of
// losing grants.
type Memory struct {
	buffer int

	done      chan struct{}
	closeOnce sync.Once

	mu     sync.RWMutex
	subs   map[*memorySubscription]struct{}
	closed bool
}

// MemoryOption configures a Memory bus.
type MemoryOption func(*Memory)

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) MemoryOption {
	return func(b *Memory) {
		if n >= 0 {
			b.buffer = n
		}
	}
}

func NewMemory(opts ...MemoryOption) *Memory {
	b := &Memory{
		buffer: 64,
		done:   make(chan struct{}),
		subs:   make(map[*memorySubscription]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Memory) Publish(ctx context.Context, env achievement.Envelope) error {
	msg := Message{ID: uuid.New(), Envelope: env}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for sub := range b.subs {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		case <-b.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *Memory) Subscribe(_ context.Context) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	sub := &memorySubscription{
		bus:  b,
		ch:   make(chan Message, b.buffer),
		done: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Close closes every open subscription and rejects further use.
func (b *Memory) Close() error {
	// Release blocked publishers first; they hold the read lock.
	b.closeOnce.Do(func() { close(b.done) })

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*memorySubscription, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	// Signal every subscription before removing any, so a publisher blocked
	// on one full buffer cannot hold up the removal of another.
	for _, sub := range subs {
		sub.signal()
	}
	for _, sub := range subs {
		b.remove(sub)
	}
	return nil
}

func (b *Memory) remove(sub *memorySubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; !ok {
		return
	}
	delete(b.subs, sub)
	// Publishers hold the read lock for the whole fan-out, so nobody is
	// sending on ch once we own the write lock.
	close(sub.ch)
}

type memorySubscription struct {
	bus  *Memory
	ch   chan Message
	done chan struct{}
	once sync.Once
}

func (s *memorySubscription) signal() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySubscription) Messages() <-chan Message {
	return s.ch
}

func (s *memorySubscription) Close() error {
	s.signal()
	s.bus.remove(s)
	return nil
}
