package dashboard

import (
	"log"
	"sync"

	"github.com/zulandar/carpool/internal/tripsync"
)

const subscriberBuffer = 8

// Broker fans transitions out to SSE subscribers. Publish never blocks; a
// subscriber that falls behind loses events.
type Broker struct {
	mu   sync.Mutex
	subs map[chan tripsync.Transition]struct{}
}

// NewBroker creates an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[chan tripsync.Transition]struct{})}
}

// Subscribe registers a new subscriber. The returned func unsubscribes and
// closes the channel; calling it more than once is safe.
func (b *Broker) Subscribe() (<-chan tripsync.Transition, func()) {
	ch := make(chan tripsync.Transition, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers t to every current subscriber.
func (b *Broker) Publish(t tripsync.Transition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- t:
		default:
			log.Printf("dashboard: subscriber full, dropped %s for trip %d", t.Kind, t.TripID)
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
