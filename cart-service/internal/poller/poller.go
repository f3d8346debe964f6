package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/homeservices/pkg/bookingevent"
	"github.com/fjod/homeservices/pkg/logger"
	"github.com/segmentio/kafka-go"
)

// CartClearer empties a user's cart, both stored copy and cache.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// MessageReader is the part of *kafka.Reader the poller uses. Offsets are
// committed by hand so a message is only acknowledged once handled.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Poller clears a customer's server-side cart once their booking is placed.
type Poller struct {
	carts   CartClearer
	reader  MessageReader
	log     *logger.Logger
	backoff time.Duration
	// pending is a fetched message whose cart clear failed; it is retried
	// before anything new is fetched.
	pending *kafka.Message
}

func NewPoller(carts CartClearer, log *logger.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    bookingevent.Topic,
		GroupID:  "cart-service-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return NewPollerWithReader(carts, reader, log)
}

func NewPollerWithReader(carts CartClearer, reader MessageReader, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{carts: carts, reader: reader, log: log, backoff: time.Second}
}

// Run consumes until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.handleNext(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn(ctx, "booking event not handled", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.backoff):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn(context.Background(), "closing kafka reader", err)
	}
}

var errMissingUser = errors.New("booking event has no user_id")

// handleNext handles the pending message, or fetches the next one, and
// commits its offset once the cart is cleared or the message is skipped.
func (p *Poller) handleNext(ctx context.Context) error {
	m := p.pending
	if m == nil {
		fetched, err := p.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		m = &fetched
	}
	if err := p.handle(ctx, *m); err != nil {
		p.pending = m
		return err
	}
	p.pending = nil
	if err := p.reader.CommitMessages(ctx, *m); err != nil {
		return fmt.Errorf("commit offset %d: %w", m.Offset, err)
	}
	return nil
}

// handle clears the cart for a placed booking. Messages that are not placed
// bookings are skipped; malformed ones are logged and skipped too since
// retrying them cannot succeed.
func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	var event bookingevent.Placed
	if err := json.Unmarshal(m.Value, &event); err != nil {
		p.log.Warn(ctx, "skipping malformed booking event", err)
		return nil
	}
	if event.EventType != bookingevent.TypePlaced {
		p.log.Debug(ctx, "skipping booking event of type "+event.EventType)
		return nil
	}
	if event.UserID == "" {
		p.log.Warn(ctx, "skipping booking event", errMissingUser)
		return nil
	}

	ctx = p.log.WithUserID(ctx, event.UserID)
	ctx = p.log.WithField(ctx, "booking_id", event.BookingID)
	if err := p.carts.ClearCart(ctx, event.UserID); err != nil {
		return err
	}
	p.log.Info(ctx, "cart cleared after booking")
	return nil
}
