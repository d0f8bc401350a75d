package notify

import "sync"

// Bus is the in-process delivery channel. Delivery is synchronous under the
// bus lock, which gives observers publish-order delivery per card.
type Bus struct {
	mu          sync.Mutex
	nextID      int
	subscribers map[int]func(Event)
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[int]func(Event))}
}

// Subscribe registers an observer and returns its cancel function.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// publish delivers the event to every subscriber.
func (b *Bus) publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, fn := range b.subscribers {
		fn(event)
	}
}
