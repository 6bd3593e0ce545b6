package broadcast

import (
	"sync"
	"sync/atomic"

	"MarketPulse/internal/domain/models"
)

// Subscription is one consumer's handle on the tick stream. Close it to
// unsubscribe; the channel is closed by the broker afterwards.
type Subscription struct {
	C      <-chan models.Tick
	cancel func()
	once   sync.Once
}

// Close unsubscribes. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
}

// Broker fans normalized ticks out to subscribers. Delivery per subscriber
// is non-blocking: a subscriber that falls behind loses ticks instead of
// stalling the producer or its peers.
type Broker struct {
	mu      sync.RWMutex
	subs    map[int]chan models.Tick
	nextID  int
	bufSize int
	dropped atomic.Uint64
}

func NewBroker(bufSize int) *Broker {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Broker{subs: make(map[int]chan models.Tick), bufSize: bufSize}
}

// Subscribe registers a consumer.
func (b *Broker) Subscribe() *Subscription {
	ch := make(chan models.Tick, b.bufSize)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return &Subscription{
		C: ch,
		cancel: func() {
			b.mu.Lock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
			b.mu.Unlock()
		},
	}
}

// Publish fans t out to all current subscribers.
func (b *Broker) Publish(t models.Tick) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- t:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many ticks were discarded for slow subscribers.
func (b *Broker) Dropped() uint64 { return b.dropped.Load() }

// Subscribers returns the current subscriber count.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close unsubscribes everyone.
func (b *Broker) Close() {
	b.mu.Lock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}
