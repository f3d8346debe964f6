// Package booking places an order from the cart and the checkout
// selections, then empties the cart once the booking is acknowledged.
package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/storefront/checkout"
	"github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/events"
	"github.com/fjod/homeservices/storefront/localstore"
	"github.com/go-playground/validator/v10"
)

// Identity yields the signed-in customer, if any.
type Identity interface {
	CurrentUser(ctx context.Context) (domain.User, bool)
}

// Cart is the part of cart.Store a submission reads and clears.
type Cart interface {
	Items() []domain.LineItem
	Clear(ctx context.Context) error
}

// Selections is the part of session.Selections a submission reads and resets.
type Selections interface {
	Address() (domain.Address, bool)
	Date() string
	Slot() (domain.TimeSlot, bool)
	Tip() float64
	Reset()
}

// Client is the booking resource. Submissions carrying the same
// idempotency key create at most one booking.
type Client interface {
	Submit(ctx context.Context, idempotencyKey string, rec domain.BookingRecord) (domain.Confirmation, error)
}

type Submitter struct {
	identity   Identity
	cart       Cart
	selections Selections
	client     Client
	bus        *events.Bus
	storage    localstore.Storage
	log        *logger.Logger
	validate   *validator.Validate
	now        func() time.Time

	mu      sync.Mutex
	state   State
	pending *pendingBooking
}

type Deps struct {
	Identity   Identity
	Cart       Cart
	Selections Selections
	Client     Client
	Bus        *events.Bus
	// Storage is written directly when the post-booking cleanup fails.
	Storage localstore.Storage
	Log     *logger.Logger
}

func NewSubmitter(d Deps) *Submitter {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Submitter{
		identity:   d.Identity,
		cart:       d.Cart,
		selections: d.Selections,
		client:     d.Client,
		bus:        d.Bus,
		storage:    d.Storage,
		log:        log,
		validate:   validator.New(),
		now:        time.Now,
		state:      StateIdle,
	}
}

func (s *Submitter) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Submitter) transition(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransitionTo(next) {
		return false
	}
	s.state = next
	return true
}

// PlaceOrder validates the checkout, submits the booking and, once it is
// acknowledged, clears the cart and resets the selections. A
// *ValidationError means nothing was sent; a *SubmissionError means the
// cart was kept for a retry.
func (s *Submitter) PlaceOrder(ctx context.Context) (domain.Confirmation, error) {
	if !s.transition(StateValidating) {
		return domain.Confirmation{}, ErrInProgress
	}

	rec, err := s.assemble(ctx)
	if err != nil {
		s.transition(StateIdle)
		return domain.Confirmation{}, err
	}

	key := s.idempotencyKey(ctx, rec)
	s.transition(StateSubmitting)
	conf, err := s.client.Submit(ctx, key, rec)
	if err != nil {
		s.transition(StateFailed)
		s.log.Warn(ctx, "booking submission failed", err)
		return domain.Confirmation{}, &SubmissionError{Err: err}
	}
	s.transition(StateSucceeded)
	s.forgetPending(ctx)

	ctx = s.log.WithField(ctx, "booking_id", conf.ID)
	s.log.Info(ctx, "booking placed")
	s.cleanup(ctx)
	return conf, nil
}

func (s *Submitter) assemble(ctx context.Context) (domain.BookingRecord, error) {
	var reasons []string

	user, ok := s.identity.CurrentUser(ctx)
	if !ok || user.ID == "" {
		reasons = append(reasons, "sign in to place a booking")
	} else if user.Email == "" {
		reasons = append(reasons, "your account has no email address")
	}
	addr, hasAddr := s.selections.Address()
	if !hasAddr {
		reasons = append(reasons, "select an address")
	}
	slot, hasSlot := s.selections.Slot()
	if !hasSlot {
		reasons = append(reasons, "select a time slot")
	}
	date := s.selections.Date()
	if hasSlot && date == "" {
		reasons = append(reasons, "select a date")
	}
	items := s.cart.Items()
	if len(items) == 0 {
		reasons = append(reasons, "your cart is empty")
	}
	if len(reasons) > 0 {
		return domain.BookingRecord{}, &ValidationError{Reasons: reasons}
	}

	booked := make([]domain.BookedItem, 0, len(items))
	for _, it := range items {
		booked = append(booked, domain.BookedItem{
			ProductID: it.ProductID,
			Title:     it.Title,
			Price:     it.Price.Float64(),
			Count:     it.Count,
			Subtotal:  it.Subtotal(),
			Category:  it.Category,
			Content:   it.Content,
		})
	}

	surcharge := slot.ExtraCharge.Float64()
	rec := domain.BookingRecord{
		Customer: user,
		Address:  addr,
		Slot: domain.BookedSlot{
			Date:        date,
			SlotID:      slot.ID,
			Time:        slot.Label,
			ExtraCharge: surcharge,
		},
		Items:    booked,
		Charges:  checkout.Calculate(items, s.selections.Tip(), surcharge),
		PlacedAt: s.now().UTC(),
	}
	if err := s.validate.Struct(rec); err != nil {
		return domain.BookingRecord{}, &ValidationError{Reasons: []string{err.Error()}}
	}
	return rec, nil
}

// cleanup runs the post-booking cascade. The booking already stands, so a
// failing step is logged and the persisted cart is forced empty instead.
func (s *Submitter) cleanup(ctx context.Context) {
	failed := false
	defer func() {
		if r := recover(); r != nil {
			s.log.Error(ctx, "post-booking cleanup panicked", fmt.Errorf("%v", r))
			failed = true
		}
		if failed {
			s.forceEmptyCart(ctx)
		}
	}()

	// the mirror deletes the cleared lines remotely when it sees the clear
	if err := s.cart.Clear(ctx); err != nil {
		s.log.Warn(ctx, "cart clear after booking failed", err)
		failed = true
	}
	s.selections.Reset()
	s.bus.Publish(ctx, events.Event{Type: events.CartCleared})
}

func (s *Submitter) forceEmptyCart(ctx context.Context) {
	if s.storage == nil {
		return
	}
	if err := s.storage.Set(ctx, localstore.KeyCartItems, []byte("[]")); err != nil {
		s.log.Error(ctx, "could not reset persisted cart after booking", err)
	}
}
