// Package pubsub provides in-process broadcast fan-out for session events,
// one topic per session id.
//
// Delivery is best-effort: a subscriber that cannot keep up has events
// dropped rather than blocking the publishing actor. Observers that miss
// events must pull a fresh snapshot instead of relying on replay.
package pubsub

import (
	"sync"

	"github.com/louisbranch/pointing.space/internal/poker/event"
)

// subscriberBuffer is the per-subscription channel capacity. Sessions hold a
// handful of humans, so a short burst buffer is plenty.
const subscriberBuffer = 32

// Broker routes published events to the subscribers of their session topic.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[*Subscription]struct{}
}

// Subscription is one observer's handle on a session topic.
type Subscription struct {
	broker    *Broker
	sessionID string
	events    chan event.Event
	closed    bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{topics: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers a new subscription on the session topic. Subscribing
// to a topic with no live session is allowed; the subscription simply never
// receives events until one exists.
func (b *Broker) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		broker:    b,
		sessionID: sessionID,
		events:    make(chan event.Event, subscriberBuffer),
	}

	b.mu.Lock()
	topic, ok := b.topics[sessionID]
	if !ok {
		topic = make(map[*Subscription]struct{})
		b.topics[sessionID] = topic
	}
	topic[sub] = struct{}{}
	b.mu.Unlock()

	return sub
}

// Events returns the subscription's event stream. The channel is closed when
// the subscription is closed or the session topic shuts down.
func (s *Subscription) Events() <-chan event.Event {
	return s.events
}

// Close unsubscribes and closes the event stream. Safe to call more than
// once.
func (s *Subscription) Close() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	if topic, ok := s.broker.topics[s.sessionID]; ok {
		delete(topic, s)
		if len(topic) == 0 {
			delete(s.broker.topics, s.sessionID)
		}
	}
	close(s.events)
}

// Publish delivers the event to every current subscriber of its session
// topic, in publish order per subscriber. Subscribers with full buffers are
// skipped so publishing never blocks.
func (b *Broker) Publish(evt event.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[evt.SessionID] {
		select {
		case sub.events <- evt:
		default:
			// Slow consumer. It will refresh from a snapshot.
		}
	}
}

// CloseTopic closes every subscription on the session topic. Used when the
// session's actor terminates: subscribers simply stop receiving events.
func (b *Broker) CloseTopic(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[sessionID] {
		sub.closeLocked()
	}
}

// SubscriberCount reports the number of live subscriptions on a topic.
func (b *Broker) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[sessionID])
}
