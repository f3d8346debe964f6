package repository

import (
	"context"
	"errors"

	"github.com/fjod/homeservices/cart-service/internal/domain"
)

var (
	ErrCartNotFound = errors.New("cart not found")
	ErrItemNotFound = errors.New("item not found in cart")
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// UpsertLine stores line under its product id, keeping the existing line
	// id when the product is already in the cart.
	UpsertLine(ctx context.Context, userID string, line domain.CartLine) (domain.CartLine, error)
	UpdateLine(ctx context.Context, userID, lineID string, patch domain.LinePatch) (domain.CartLine, error)
	RemoveLine(ctx context.Context, userID, lineID string) error
	DeleteCart(ctx context.Context, userID string) error
}
