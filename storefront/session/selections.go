// Package session holds the checkout choices a customer makes before
// placing an order. Only the address outlives the checkout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/events"
	"github.com/fjod/homeservices/storefront/localstore"
)

type Selections struct {
	mu      sync.Mutex
	storage localstore.Storage
	log     *logger.Logger

	address *domain.Address
	date    string
	slot    *domain.TimeSlot
	tip     float64
}

func NewSelections(storage localstore.Storage, log *logger.Logger) *Selections {
	if log == nil {
		log = logger.Nop()
	}
	return &Selections{storage: storage, log: log}
}

// Load restores the cached address. A missing or unreadable one leaves no
// address selected.
func (s *Selections) Load(ctx context.Context) error {
	raw, err := s.storage.Get(ctx, localstore.KeySelectedAddress)
	if errors.Is(err, localstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	var addr domain.Address
	if err := json.Unmarshal(raw, &addr); err != nil {
		s.log.Warn(ctx, "cached address is corrupt, ignoring it", err)
		return nil
	}
	s.mu.Lock()
	s.address = &addr
	s.mu.Unlock()
	return nil
}

// SetAddress selects addr and caches it locally. The selection holds even
// when the cache write fails.
func (s *Selections) SetAddress(ctx context.Context, addr domain.Address) error {
	s.mu.Lock()
	s.address = &addr
	s.mu.Unlock()

	raw, err := json.Marshal(addr)
	if err != nil {
		return err
	}
	if err := s.storage.Set(ctx, localstore.KeySelectedAddress, raw); err != nil {
		s.log.Warn(ctx, "address cache write failed", err)
		return err
	}
	return nil
}

func (s *Selections) Address() (domain.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.address == nil {
		return domain.Address{}, false
	}
	return *s.address, true
}

func (s *Selections) SetDate(date string) {
	s.mu.Lock()
	s.date = date
	s.mu.Unlock()
}

func (s *Selections) Date() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.date
}

func (s *Selections) SelectSlot(slot domain.TimeSlot) {
	s.mu.Lock()
	s.slot = &slot
	s.mu.Unlock()
}

func (s *Selections) Slot() (domain.TimeSlot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return domain.TimeSlot{}, false
	}
	return *s.slot, true
}

// SlotSurcharge is the selected slot's extra charge, 0 without a slot.
func (s *Selections) SlotSurcharge() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.slot == nil {
		return 0
	}
	return s.slot.ExtraCharge.Float64()
}

func (s *Selections) SetTip(tip float64) {
	if tip < 0 {
		tip = 0
	}
	s.mu.Lock()
	s.tip = tip
	s.mu.Unlock()
}

func (s *Selections) Tip() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tip
}

// Reset drops the date, slot and tip. The address stays selected.
func (s *Selections) Reset() {
	s.mu.Lock()
	s.date = ""
	s.slot = nil
	s.tip = 0
	s.mu.Unlock()
}

// Watch resets the selections whenever the cart is cleared or becomes
// empty.
func (s *Selections) Watch(bus *events.Bus) (unsubscribe func()) {
	return bus.Subscribe(func(_ context.Context, e events.Event) {
		if e.Type == events.CartCleared || len(e.Items) == 0 {
			s.Reset()
		}
	}, events.CartCleared, events.CartUpdated)
}
