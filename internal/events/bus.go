// Package events provides the publish/subscribe channel used to notify
// subscribers of remote-origin mutations (calendar entries, session state).
// Delivery is per-subscriber in publish order; a subscriber that stops
// draining its channel loses messages rather than blocking publishers.
package events

import (
	"context"
	"sync"
	"time"
)

// ChangeType enumerates the mutation kinds carried on the bus.
type ChangeType string

const (
	ChangeCreate     ChangeType = "create"
	ChangeUpdate     ChangeType = "update"
	ChangeDelete     ChangeType = "delete"
	ChangeBulkUpdate ChangeType = "bulk_update"
)

// ChangeEvent describes a single remote-origin mutation.
type ChangeEvent struct {
	Type      ChangeType
	Entity    string
	EntityID  string
	Payload   any
	Timestamp time.Time
}

// Bus fans change events out to subscribers over buffered channels.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan ChangeEvent
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener. The subscription ends when the context is
// cancelled or the cleanup function is called.
func (b *Bus) Subscribe(ctx context.Context) (<-chan ChangeEvent, func()) {
	sub := &subscriber{
		id:     b.nextSequence(),
		stream: make(chan ChangeEvent, b.bufferSize),
	}
	b.mu.Lock()
	b.subscribers[sub.id] = sub
	b.mu.Unlock()

	cleanup := func() {
		b.mu.Lock()
		delete(b.subscribers, sub.id)
		b.mu.Unlock()
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

// Publish delivers the event to every current subscriber. Subscribers with
// a full buffer are skipped.
func (b *Bus) Publish(event ChangeEvent) {
	if event.Type == "" {
		return
	}
	b.mu.RLock()
	copies := make([]*subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		copies = append(copies, sub)
	}
	b.mu.RUnlock()

	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

func (b *Bus) nextSequence() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}
