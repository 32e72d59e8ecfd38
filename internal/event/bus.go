package event

import (
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/agentdeck/agentdeck/pkg/protocol"
)

// Subscriber receives broadcast events.
type Subscriber func(ev protocol.Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus fans protocol events out to subscribers. Publishing is synchronous so
// that events reach every subscriber in the exact order they were produced;
// subscribers that need buffering enqueue into their own channels.
type Bus struct {
	mu sync.RWMutex

	// Watermill infrastructure, kept for middleware/routing and so the bus
	// can be swapped for a distributed backend without changing callers.
	pubsub *gochannel.GoChannel

	byType map[protocol.EventType][]subscriberEntry
	global []subscriberEntry

	nextID uint64
	closed bool
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		byType: make(map[protocol.EventType][]subscriberEntry),
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for one event type. Returns an unsubscribe function.
func (b *Bus) Subscribe(t protocol.EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.byType[t] = append(b.byType[t], subscriberEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.byType[t]
		for i, entry := range subs {
			if entry.id == id {
				b.byType[t] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
}

// SubscribeAll registers fn for every event. Returns an unsubscribe function.
func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, entry := range b.global {
			if entry.id == id {
				b.global = append(b.global[:i], b.global[i+1:]...)
				break
			}
		}
	}
}

// Publish delivers ev to all matching subscribers in the calling goroutine.
// Per-turn event ordering depends on this staying synchronous.
func (b *Bus) Publish(ev protocol.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]Subscriber, 0, len(b.byType[ev.Type])+len(b.global))
	for _, entry := range b.byType[ev.Type] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// Close shuts the bus down. Further Publish and Subscribe calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.byType = make(map[protocol.EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill channel for advanced wiring.
func (b *Bus) PubSub() *gochannel.GoChannel {
	return b.pubsub
}
