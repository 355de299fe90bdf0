// Package eventbus provides in-process pub/sub for session lifecycle
// events.
//
// Collaborators (the watch websocket, CLI followers) subscribe for
// state transitions without touching the registry. Delivery is
// best-effort: a subscriber that stops draining its channel loses
// events rather than blocking the poll loop or the ingest fast path.
package eventbus

import (
	"sync"
	"time"

	"github.com/agentwatch/agentwatch/internal/monitor"
	"github.com/agentwatch/agentwatch/internal/registry"
)

// EventType classifies bus events.
type EventType string

const (
	// EventSessionDiscovered fires when the scanner first registers a
	// session.
	EventSessionDiscovered EventType = "session_discovered"

	// EventStateChanged fires on every committed detector transition.
	EventStateChanged EventType = "state_changed"

	// EventSessionDead fires when a session is confirmed dead and
	// retired from the active registry.
	EventSessionDead EventType = "session_dead"
)

// Event is one session lifecycle notification.
type Event struct {
	Type       EventType          `json:"type"`
	SessionID  registry.ID        `json:"session_id"`
	Transition monitor.Transition `json:"transition,omitzero"`
	At         time.Time          `json:"at"`
}

// subscriberBuffer is each subscriber's channel capacity. Overflow is
// dropped and counted, never blocked on.
const subscriberBuffer = 100

// Metrics reports bus activity counters.
type Metrics struct {
	EventsPublished   uint64
	EventsDelivered   uint64
	EventsDropped     uint64
	SubscribersActive int
	SubscribersTotal  uint64
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool

	published        uint64
	delivered        uint64
	dropped          uint64
	subscribersTotal uint64
}

// New creates a Bus.
func New() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber. The returned function unsubscribes
// and closes the channel; calling it twice is safe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.subscribersTotal++

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, unsub
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.published++
	for _, ch := range b.subs {
		select {
		case ch <- event:
			b.delivered++
		default:
			b.dropped++
		}
	}
}

// PublishDiscovered publishes a session-discovered event.
func (b *Bus) PublishDiscovered(id registry.ID) {
	b.Publish(Event{Type: EventSessionDiscovered, SessionID: id})
}

// PublishTransition publishes the right event type for a committed
// transition: session_dead for death, state_changed otherwise.
func (b *Bus) PublishTransition(id registry.ID, tr monitor.Transition) {
	typ := EventStateChanged
	if tr.To == monitor.StateDead {
		typ = EventSessionDead
	}
	b.Publish(Event{Type: typ, SessionID: id, Transition: tr, At: tr.At})
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		EventsPublished:   b.published,
		EventsDelivered:   b.delivered,
		EventsDropped:     b.dropped,
		SubscribersActive: len(b.subs),
		SubscribersTotal:  b.subscribersTotal,
	}
}

// Close shuts the bus down and closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
