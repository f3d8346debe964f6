// Package events carries cart notifications between the storefront
// components living in one process.
package events

import (
	"context"
	"slices"
	"sync"

	"github.com/fjod/homeservices/storefront/domain"
)

type Type string

const (
	// Mutations, emitted by the cart store after a local change.
	ItemAdded   Type = "cart.item_added"
	ItemUpdated Type = "cart.item_updated"
	ItemRemoved Type = "cart.item_removed"
	ItemsClear  Type = "cart.items_cleared"

	// Notifications for anything rendering the cart.
	CartUpdated Type = "cart.updated"
	CartCleared Type = "cart.cleared"
)

// Event is one message on the bus. Which fields are set depends on Type:
// mutations carry the affected line, notifications carry a snapshot.
type Event struct {
	Type      Type
	ProductID string
	Item      *domain.LineItem
	Count     int
	Items     []domain.LineItem
}

type Handler func(ctx context.Context, e Event)

// Bus fans events out to subscribers synchronously, in subscription order.
// Handlers that do slow work must hand it off themselves.
type Bus struct {
	mu       sync.RWMutex
	next     int
	handlers map[int]subscription
}

type subscription struct {
	types   map[Type]struct{}
	handler Handler
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]subscription)}
}

// Subscribe registers h for the given types (all types when none are given)
// and returns a function that removes it.
func (b *Bus) Subscribe(h Handler, types ...Type) (unsubscribe func()) {
	sub := subscription{handler: h}
	if len(types) > 0 {
		sub.types = make(map[Type]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers))
	for id := range b.handlers {
		ids = append(ids, id)
	}
	subs := make([]subscription, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		subs = append(subs, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.types != nil {
			if _, ok := s.types[e.Type]; !ok {
				continue
			}
		}
		s.handler(ctx, e)
	}
}
