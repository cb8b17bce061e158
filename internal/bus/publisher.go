package bus

import (
	"sync"
	"sync/atomic"

	"main/internal/schema"
)

const defaultBuffer = 64

// Publisher fans events out to subscribers keyed by topic. Delivery is
// best-effort and never blocks: a subscriber that cannot keep up misses
// events and reconstructs state from a snapshot query.
type Publisher struct {
	mu     sync.RWMutex
	subs   map[schema.TopicID]map[uint64]chan schema.Event
	nextID uint64
	buffer int

	dropped   uint64
	delivered uint64
	closed    uint32
}

// NewPublisher allocates a publisher with the given per-subscriber
// buffer capacity.
func NewPublisher(buffer int) *Publisher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Publisher{
		subs:   make(map[schema.TopicID]map[uint64]chan schema.Event),
		buffer: buffer,
	}
}

// Subscribe registers for a topic's events. The returned cancel func
// unsubscribes and closes the channel.
func (p *Publisher) Subscribe(topic schema.TopicID) (<-chan schema.Event, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan schema.Event, p.buffer)
	if atomic.LoadUint32(&p.closed) != 0 {
		close(ch)
		return ch, func() {}
	}

	id := p.nextID
	p.nextID++
	if p.subs[topic] == nil {
		p.subs[topic] = make(map[uint64]chan schema.Event)
	}
	p.subs[topic][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if set, ok := p.subs[topic]; ok {
				if sub, ok := set[id]; ok {
					delete(set, id)
					close(sub)
				}
			}
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of its topic without
// blocking; full buffers drop and count.
func (p *Publisher) Publish(e schema.Event) {
	if atomic.LoadUint32(&p.closed) != 0 {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.subs[e.TopicID] {
		select {
		case ch <- e:
			atomic.AddUint64(&p.delivered, 1)
		default:
			atomic.AddUint64(&p.dropped, 1)
		}
	}
}

// Dropped returns the number of events dropped on full buffers.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// Delivered returns the number of events handed to subscribers.
func (p *Publisher) Delivered() uint64 {
	return atomic.LoadUint64(&p.delivered)
}

// Close unsubscribes everyone and rejects further publishes.
func (p *Publisher) Close() {
	if !atomic.CompareAndSwapUint32(&p.closed, 0, 1) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for topic, set := range p.subs {
		for id, ch := range set {
			delete(set, id)
			close(ch)
		}
		delete(p.subs, topic)
	}
}
