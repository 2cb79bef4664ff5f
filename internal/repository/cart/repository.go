package cart

import (
	"context"

	"sevirun/internal/domain"
)

// Repository persists carts keyed by their owner.
type Repository interface {
	GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Create(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	// AddLine merges quantity into the variant's line, capping at the line maximum.
	AddLine(ctx context.Context, cartID string, v domain.Variant, quantity int) error
	// SetLineQuantity removes the line when quantity drops below the minimum.
	SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error
	RemoveLine(ctx context.Context, cartID, lineID string) error
	// AssignSessionToCustomer hands a guest cart over to an account that has none.
	AssignSessionToCustomer(ctx context.Context, sessionID, customerID string) (*domain.Cart, error)
}
