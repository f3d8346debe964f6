package domain

import (
	"time"

	sf "github.com/fjod/homeservices/storefront/domain"
)

type BookingStatus string

const (
	BookingStatusPlaced    BookingStatus = "PLACED"
	BookingStatusCancelled BookingStatus = "CANCELLED"
)

func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCancelled
}

// String representation (for logging)
func (s BookingStatus) String() string {
	return string(s)
}

// Booking is a stored booking. Record is the snapshot the customer
// submitted, with its id and placement time filled in by the service.
type Booking struct {
	ID             string
	UserID         string
	IdempotencyKey string
	Status         BookingStatus
	Record         sf.BookingRecord
	PlacedAt       time.Time
	UpdatedAt      time.Time
}

// OutboxEvent is a row waiting to be published to Kafka.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}
