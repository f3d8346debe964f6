package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	d "github.com/fjod/homeservices/booking-service/internal/domain"
	r "github.com/fjod/homeservices/booking-service/internal/repository"
	"github.com/fjod/homeservices/pkg/bookingevent"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/fjod/homeservices/storefront/checkout"
	sf "github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/price"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Caller is the authenticated customer a request acts for.
type Caller struct {
	UserID string
	Email  string
}

type BookingService struct {
	repo     r.RepoInterface
	log      *logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

func NewBookingService(repo r.RepoInterface, log *logger.Logger) *BookingService {
	if log == nil {
		log = logger.Nop()
	}
	return &BookingService{
		repo:     repo,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// Place stores rec as a booking for caller. The customer on the record is
// always the caller. A repeated idempotencyKey returns the booking placed
// with it the first time.
func (s *BookingService) Place(ctx context.Context, caller Caller, idempotencyKey string, rec sf.BookingRecord) (*d.Booking, error) {
	rec.Customer.ID = caller.UserID
	if rec.Customer.Email == "" {
		rec.Customer.Email = caller.Email
	}
	if err := s.validate.Struct(rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBooking, err)
	}
	if err := verifyCharges(rec); err != nil {
		return nil, err
	}

	if idempotencyKey != "" {
		existing, err := s.repo.GetBookingByIdempotencyKey(ctx, caller.UserID, idempotencyKey)
		if err == nil {
			s.log.Info(ctx, "duplicate booking request, returning booking "+existing.ID)
			return existing, nil
		}
		if !errors.Is(err, r.ErrBookingNotFound) {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
	}

	now := s.now().UTC()
	rec.ID = uuid.NewString()
	rec.PlacedAt = now
	b := &d.Booking{
		ID:             rec.ID,
		UserID:         caller.UserID,
		IdempotencyKey: idempotencyKey,
		Status:         d.BookingStatusPlaced,
		Record:         rec,
		PlacedAt:       now,
		UpdatedAt:      now,
	}

	event, err := newEvent(bookingevent.TypePlaced, b)
	if err != nil {
		return nil, err
	}
	err = s.repo.CreateBooking(ctx, b, event)
	if errors.Is(err, r.ErrDuplicateIdempotencyKey) {
		// lost a race with a concurrent request carrying the same key
		return s.repo.GetBookingByIdempotencyKey(ctx, caller.UserID, idempotencyKey)
	}
	if err != nil {
		s.log.Error(ctx, "create booking failed", err)
		return nil, err
	}

	ctx = s.log.WithField(ctx, "booking_id", b.ID)
	s.log.Info(ctx, "booking placed")
	return b, nil
}

func (s *BookingService) List(ctx context.Context, userID string) ([]*d.Booking, error) {
	return s.repo.ListBookings(ctx, userID)
}

func (s *BookingService) Get(ctx context.Context, userID, id string) (*d.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, r.ErrBookingNotFound
	}
	return s.repo.GetBooking(ctx, userID, id)
}

// Cancel removes the booking from the user's history.
func (s *BookingService) Cancel(ctx context.Context, userID, id string) error {
	b, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	event, err := newEvent(bookingevent.TypeCancelled, b)
	if err != nil {
		return err
	}
	if err := s.repo.CancelBooking(ctx, userID, id, event); err != nil {
		if !errors.Is(err, r.ErrBookingNotFound) {
			s.log.Error(ctx, "cancel booking failed", err)
		}
		return err
	}
	return nil
}

func newEvent(eventType string, b *d.Booking) (*d.OutboxEvent, error) {
	payload, err := json.Marshal(bookingevent.Placed{
		EventType: eventType,
		BookingID: b.ID,
		UserID:    b.UserID,
		Total:     b.Record.Charges.Total,
		PlacedAt:  b.PlacedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return &d.OutboxEvent{AggregateID: b.ID, EventType: eventType, Payload: payload}, nil
}

// verifyCharges recomputes the charges from the booked items and the
// submitted tip and slot surcharge.
func verifyCharges(rec sf.BookingRecord) error {
	items := make([]sf.LineItem, 0, len(rec.Items))
	for _, it := range rec.Items {
		items = append(items, sf.LineItem{ProductID: it.ProductID, Price: price.Amount(it.Price), Count: it.Count})
		if !same(it.Subtotal, it.Price*float64(it.Count)) {
			return &ChargesError{Field: "subtotal of " + it.ProductID, Got: it.Subtotal, Expected: it.Price * float64(it.Count)}
		}
	}
	if !same(rec.Charges.SlotSurcharge, rec.Slot.ExtraCharge) {
		return &ChargesError{Field: "slotSurcharge", Got: rec.Charges.SlotSurcharge, Expected: rec.Slot.ExtraCharge}
	}

	want := checkout.Calculate(items, rec.Charges.Tip, rec.Slot.ExtraCharge)
	checks := []struct {
		field     string
		got, want float64
	}{
		{"itemTotal", rec.Charges.ItemTotal, want.ItemTotal},
		{"tax", rec.Charges.Tax, want.Tax},
		{"tip", rec.Charges.Tip, want.Tip},
		{"total", rec.Charges.Total, want.Total},
	}
	for _, c := range checks {
		if !same(c.got, c.want) {
			return &ChargesError{Field: c.field, Got: c.got, Expected: c.want}
		}
	}
	return nil
}

func same(a, b float64) bool {
	return math.Abs(a-b) < 0.005
}
