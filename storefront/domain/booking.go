package domain

import "time"

type User struct {
	ID    string `json:"id" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name,omitempty"`
}

type Address struct {
	Label   string `json:"label,omitempty"`
	Line1   string `json:"line1" validate:"required"`
	Line2   string `json:"line2,omitempty"`
	City    string `json:"city" validate:"required"`
	Pincode string `json:"pincode" validate:"required"`
}

// Totals is the charge breakdown shown at checkout and stored with a booking.
type Totals struct {
	ItemTotal     float64 `json:"itemTotal"`
	Tax           float64 `json:"tax"`
	Tip           float64 `json:"tip"`
	SlotSurcharge float64 `json:"slotSurcharge"`
	Total         float64 `json:"total"`
}

// BookedSlot is the visit window the customer picked.
type BookedSlot struct {
	Date        string  `json:"date" validate:"required"`
	SlotID      string  `json:"slotId,omitempty"`
	Time        string  `json:"time" validate:"required"`
	ExtraCharge float64 `json:"extraCharge" validate:"gte=0"`
}

// BookedItem is the denormalized copy of a cart line kept on the booking.
type BookedItem struct {
	ProductID string       `json:"productId" validate:"required"`
	Title     string       `json:"title"`
	Price     float64      `json:"price" validate:"gte=0"`
	Count     int          `json:"count" validate:"gte=1"`
	Subtotal  float64      `json:"subtotal"`
	Category  string       `json:"category,omitempty"`
	Content   []SubService `json:"content,omitempty"`
}

// BookingRecord is the snapshot submitted at checkout.
type BookingRecord struct {
	ID       string       `json:"id,omitempty"`
	Customer User         `json:"customer"`
	Address  Address      `json:"address"`
	Slot     BookedSlot   `json:"slot"`
	Items    []BookedItem `json:"items" validate:"required,min=1,dive"`
	Charges  Totals       `json:"charges"`
	PlacedAt time.Time    `json:"placedAt,omitempty"`
}

// Confirmation is what the booking resource returns after a submit.
type Confirmation struct {
	ID       string    `json:"id"`
	PlacedAt time.Time `json:"placedAt"`
}
