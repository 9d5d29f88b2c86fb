// Package bus implements the pipeline's single-producer-multi-consumer
// event broadcast: every connector, gateway, risk update, and log line
// taps the same Bus, and slow subscribers miss events rather than
// blocking a publisher.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/latencyx/core/internal/models"
)

// defaultCapacity is the per-subscriber ring buffer size. Subscribers
// lagging past this many unreceived events observe a gap on their next
// receive rather than stalling the publisher.
const defaultCapacity = 1024

// Bus is a non-blocking broadcast of PipelineEvents. Safe for concurrent
// Publish from many components; Subscribe/Unsubscribe are synchronized.
type Bus struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	ch      chan models.PipelineEvent
	lagging atomic.Uint64 // count of events dropped since subscription start
}

// New creates an event bus ready for use.
func New() *Bus {
	return &Bus{subs: make(map[*subscriber]struct{})}
}

// Publish broadcasts an event to every current subscriber. Non-blocking:
// a subscriber whose buffer is full has the event dropped and its lag
// counter incremented, per subscriber, rather than stalling the
// producer or corrupting other subscribers' streams.
func (b *Bus) Publish(e models.PipelineEvent) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		select {
		case s.ch <- e:
		default:
			s.lagging.Add(1)
		}
	}
}

// Subscription is a live handle returned by Subscribe. Events arrives on
// Events(); Lagging reports how many events have been dropped for this
// subscriber since it subscribed.
type Subscription struct {
	bus *Bus
	sub *subscriber
}

// Subscribe registers a new subscriber with the given buffer capacity
// (defaultCapacity if bufSize <= 0). The caller must call Close to avoid
// leaking the subscription.
func (b *Bus) Subscribe(bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = defaultCapacity
	}
	s := &subscriber{ch: make(chan models.PipelineEvent, bufSize)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return &Subscription{bus: b, sub: s}
}

// Events returns the channel this subscription receives PipelineEvents on.
func (s *Subscription) Events() <-chan models.PipelineEvent { return s.sub.ch }

// Lagging returns the number of events dropped for this subscriber since
// Subscribe. It is a monotonically non-decreasing counter; it is never reset.
func (s *Subscription) Lagging() uint64 { return s.sub.lagging.Load() }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.sub]; !ok {
		return
	}
	delete(s.bus.subs, s.sub)
	close(s.sub.ch)
}

// SubscriberCount returns the number of active subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
