package pipeline

import (
	"sync"
	"sync/atomic"

	"netsniff/internal/models"
)

// Subscription is one consumer's bounded queue.
// When the queue is full the oldest queued record is discarded for this consumer only.
type Subscription struct {
	name   string
	ch     chan models.Record
	accept func(models.Record) bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
	stopped   atomic.Bool
}

// Name identifies the consumer in reports.
func (s *Subscription) Name() string { return s.name }

// C is closed by the Fanout once capture ends.
func (s *Subscription) C() <-chan models.Record { return s.ch }

// Dropped is the number of records discarded because the consumer fell behind.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Delivered is the number of records queued for the consumer.
func (s *Subscription) Delivered() uint64 { return s.delivered.Load() }

// Stop tells the Fanout the consumer has exited; later records are not queued.
func (s *Subscription) Stop() { s.stopped.Store(true) }

// push never blocks. It must only be called from the single producer.
func (s *Subscription) push(rec models.Record) {
	if s.stopped.Load() || (s.accept != nil && !s.accept(rec)) {
		return
	}
	s.delivered.Add(1)
	for {
		select {
		case s.ch <- rec:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

// Fanout distributes each record to every subscription.
type Fanout struct {
	mu     sync.Mutex
	subs   []*Subscription
	closed bool
}

// Subscribe registers a consumer queue of the given capacity.
// accept, if non-nil, is the consumer's own filter.
// All subscriptions must be made before the first Publish.
func (f *Fanout) Subscribe(name string, capacity int, accept func(models.Record) bool) *Subscription {
	if capacity <= 0 {
		capacity = 1
	}
	s := &Subscription{name: name, ch: make(chan models.Record, capacity), accept: accept}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return s
}

// Subscriptions returns the registered subscriptions in registration order.
func (f *Fanout) Subscriptions() []*Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Subscription(nil), f.subs...)
}

// Publish hands rec to every subscription without blocking.
func (f *Fanout) Publish(rec models.Record) {
	for _, s := range f.subs {
		s.push(rec)
	}
}

// Close closes every subscription channel. Safe to call more than once.
func (f *Fanout) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, s := range f.subs {
		close(s.ch)
	}
}
