package domain

import (
	"time"

	sf "github.com/fjod/homeservices/storefront/domain"
	"github.com/fjod/homeservices/storefront/price"
)

type Cart struct {
	ID        string     `bson:"_id,omitempty" json:"-"`
	UserID    string     `bson:"user_id" json:"userId"`
	Items     []CartLine `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

// CartLine is one line of a user's remote cart. ID is assigned by the
// service; ProductID is unique within a cart.
type CartLine struct {
	ID              string          `bson:"id" json:"id"`
	ProductID       string          `bson:"product_id" json:"productId" validate:"required"`
	Title           string          `bson:"title" json:"title"`
	Price           price.Amount    `bson:"price" json:"price" validate:"gte=0"`
	Count           int             `bson:"count" json:"count" validate:"gte=1"`
	Content         []sf.SubService `bson:"content,omitempty" json:"content,omitempty"`
	SavedSelections []sf.SubService `bson:"saved_selections,omitempty" json:"savedSelections,omitempty"`
	Category        string          `bson:"category,omitempty" json:"category,omitempty"`
	AddedAt         time.Time       `bson:"added_at" json:"addedAt"`
}

// LinePatch is a partial line update. Nil fields are left unchanged.
type LinePatch struct {
	Count   *int            `json:"count,omitempty"`
	Content []sf.SubService `json:"content,omitempty"`
}

// Line returns the line with the given id.
func (c *Cart) Line(id string) (CartLine, bool) {
	for _, l := range c.Items {
		if l.ID == id {
			return l, true
		}
	}
	return CartLine{}, false
}
