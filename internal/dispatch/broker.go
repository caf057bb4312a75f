package dispatch

import (
	"sync"

	"loanpipe/internal/book"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 16

type subscriber struct {
	topics map[book.Kind]struct{}
	ch     chan book.Request
}

// Broker fans requests out to the subscribers of their topic. Delivery is
// best-effort: a subscriber whose queue is full misses the message.
type Broker struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
	buffer int
}

// NewBroker creates a broker with the given per-subscriber buffer.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[uint64]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers interest in topics. The returned cancel function
// unregisters the subscriber and must be called exactly once.
func (b *Broker) Subscribe(topics []book.Kind) (<-chan book.Request, func()) {
	sub := &subscriber{
		topics: make(map[book.Kind]struct{}, len(topics)),
		ch:     make(chan book.Request, b.buffer),
	}
	for _, t := range topics {
		sub.topics[t] = struct{}{}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	return sub.ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish offers req to every subscriber of req.Kind and returns how many
// accepted it.
func (b *Broker) Publish(req book.Request) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, sub := range b.subs {
		if _, ok := sub.topics[req.Kind]; !ok {
			continue
		}
		select {
		case sub.ch <- req:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of subscribers to topic.
func (b *Broker) Subscribers(topic book.Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, sub := range b.subs {
		if _, ok := sub.topics[topic]; ok {
			n++
		}
	}
	return n
}
