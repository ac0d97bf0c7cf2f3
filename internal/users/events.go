package users

import "sync"

// Event names emitted on the /events stream.
const (
	EventConnected    = "connected"
	EventUsersUpdated = "users-updated"
)

const subscriberBuffer = 8

// Broker is an in-process fan-out of change notifications to SSE clients.
type Broker struct {
	mu   sync.Mutex
	subs map[chan string]struct{}
}

// NewBroker constructs an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan string]struct{})}
}

// Subscribe registers a listener. The returned cancel func must be called
// once the listener goes away.
func (b *Broker) Subscribe() (<-chan string, func()) {
	ch := make(chan string, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
		})
	}
}

// Publish delivers event to every subscriber without blocking. A subscriber
// whose buffer is full already has undelivered notifications and skips this one.
func (b *Broker) Publish(event string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribers returns the number of active listeners.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
