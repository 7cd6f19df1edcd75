package stream

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tbourn/review-orchestrator/internal/observability"
)

// DefaultMaxBacklog is the per-subscriber queue bound when Options leaves it unset.
const DefaultMaxBacklog = 1024

// Sink is one connected client.
type Sink interface {
	// ID identifies the connection. Subscribing an ID again replaces the
	// previous subscription.
	ID() string
	// Send delivers one event. An error prunes the subscriber.
	Send(Event) error
}

// Options configures a Bus.
type Options struct {
	MaxBacklog int
}

// Bus holds no job state; it relays events to subscribers. Subscribers are
// keyed by connection id only, so a dead connection is pruned on its first
// failed delivery and producers never track who is listening.
//
// Each subscriber has its own unbounded FIFO and writer goroutine, so a slow
// client delays only itself. Events published from one goroutine reach every
// subscriber in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	closed bool

	maxBacklog int
	failLog    rate.Sometimes
}

// NewBus returns an empty Bus.
func NewBus(opts Options) *Bus {
	if opts.MaxBacklog <= 0 {
		opts.MaxBacklog = DefaultMaxBacklog
	}
	return &Bus{
		subs:       make(map[string]*subscriber),
		maxBacklog: opts.MaxBacklog,
		failLog:    rate.Sometimes{First: 5, Interval: 10 * time.Second},
	}
}

// Subscribe registers sink and returns a function that removes it. After
// Shutdown the sink is not registered and the returned function is a no-op.
func (b *Bus) Subscribe(sink Sink) (unsubscribe func()) {
	s := newSubscriber(sink)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	old := b.subs[sink.ID()]
	b.subs[sink.ID()] = s
	n := len(b.subs)
	b.mu.Unlock()

	if old != nil {
		old.close()
	}
	observability.StreamSubscribers.Set(float64(n))
	go s.run(b)

	var once sync.Once
	return func() { once.Do(func() { b.remove(s) }) }
}

// Len reports the number of subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers ev to every current subscriber. It never blocks on a
// client. Publishing after Shutdown drops the event.
func (b *Bus) Publish(ev Event) {
	var overflow []*subscriber

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for _, s := range b.subs {
		if !s.enqueue(ev, b.maxBacklog) {
			overflow = append(overflow, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range overflow {
		b.drop(s, "backlog", nil)
	}
}

// Deliver queues ev for one subscriber and reports whether it is subscribed.
func (b *Bus) Deliver(id string, ev Event) bool {
	b.mu.RLock()
	s, ok := b.subs[id]
	closed := b.closed
	b.mu.RUnlock()
	if !ok || closed {
		return false
	}
	if !s.enqueue(ev, b.maxBacklog) {
		b.drop(s, "backlog", nil)
		return false
	}
	return true
}

// Shutdown closes every subscriber. Queued events are discarded.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	b.closed = true
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	observability.StreamSubscribers.Set(0)
}

// remove unregisters s if it is still the subscriber for its id.
func (b *Bus) remove(s *subscriber) bool {
	b.mu.Lock()
	cur, ok := b.subs[s.sink.ID()]
	removed := ok && cur == s
	if removed {
		delete(b.subs, s.sink.ID())
	}
	n := len(b.subs)
	b.mu.Unlock()

	s.close()
	if removed {
		observability.StreamSubscribers.Set(float64(n))
	}
	return removed
}

// drop prunes a subscriber after a delivery failure.
func (b *Bus) drop(s *subscriber, reason string, err error) {
	if !b.remove(s) {
		return
	}
	observability.StreamDeliveryFailures.WithLabelValues(reason).Inc()
	b.failLog.Do(func() {
		log.Warn().Err(err).Str("connection_id", s.sink.ID()).Str("reason", reason).Msg("stream subscriber pruned")
	})
}

// subscriber is an unbounded FIFO drained by one writer goroutine. signal
// has capacity one, so multiple enqueues coalesce into one wakeup.
type subscriber struct {
	sink Sink

	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{}
}

func newSubscriber(sink Sink) *subscriber {
	return &subscriber{
		sink:   sink,
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// enqueue appends ev. It returns false when the backlog is full.
func (s *subscriber) enqueue(ev Event, limit int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if len(s.events) >= limit {
		return false
	}
	s.events = append(s.events, ev)
	s.wake()
	return true
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.events = nil
	s.wake()
}

// wake must be called with mu held.
func (s *subscriber) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscriber) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// take swaps out everything queued so far.
func (s *subscriber) take() ([]Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	batch := s.events
	s.events = make([]Event, 0, 16)
	return batch, true
}

func (s *subscriber) run(b *Bus) {
	for {
		batch, ok := s.take()
		if !ok {
			return
		}
		if len(batch) == 0 {
			<-s.signal
			continue
		}
		for _, ev := range batch {
			if s.isClosed() {
				return
			}
			if err := s.sink.Send(ev); err != nil {
				b.drop(s, "send", err)
				return
			}
		}
	}
}
