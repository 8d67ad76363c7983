package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe bus with namespace filtering.
// Delivery is best-effort: a subscriber whose buffer is full misses the
// event. The bus therefore only carries re-read notifications — never
// protocol events the engine must not lose.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish sends evt to every subscriber whose namespace prefixes evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber buffer full; skip.
			}
		}
	}
}

// PublishKind publishes an event of the given kind stamped with the
// current time.
func (b *Bus) PublishKind(kind string, payload any) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// Subscribe registers interest in events whose kind starts with namespace.
// Returns the delivery channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
