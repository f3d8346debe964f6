// Package bookingevent holds the message contract between the booking
// service, which publishes placed bookings through its outbox, and the
// services that react to them.
package bookingevent

import "time"

const (
	Topic         = "booking-events"
	TypePlaced    = "booking.placed"
	TypeCancelled = "booking.cancelled"

	// HeaderEventType carries the event type on every Kafka message.
	HeaderEventType = "event_type"
)

// Placed is published once per booking after it is committed. The same
// shape carries TypeCancelled when the customer removes the booking.
type Placed struct {
	EventType string    `json:"event_type"`
	BookingID string    `json:"booking_id"`
	UserID    string    `json:"user_id"`
	Total     float64   `json:"total"`
	PlacedAt  time.Time `json:"placed_at"`
}
