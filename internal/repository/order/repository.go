package order

import (
	"context"

	"sevirun/internal/domain"
)

// CreateFromCartInput describes the order materialised from an owner's cart.
type CreateFromCartInput struct {
	Owner             domain.Owner
	DeliveryCostCents int64
}

// ContactInfo is captured on the order info step while the order is pending.
type ContactInfo struct {
	ShippingAddress string
	Email           string
	Phone           string
	DeliveryType    domain.DeliveryType
}

// ListFilter narrows order listings. A zero Owner lists every order.
type ListFilter struct {
	Owner  domain.Owner
	States []domain.OrderState
}

// FulfilInput drives the pending to processing transition.
type FulfilInput struct {
	OrderID        int64
	PaymentMethod  domain.PaymentMethod
	TrackingNumber string
	// RequireStock aborts with domain.ErrInsufficientStock instead of clamping.
	RequireStock bool
}

// FulfilResult reports what the transition did. Transitioned is false when the
// order had already left pending and nothing was changed.
type FulfilResult struct {
	Order        domain.Order
	Transitioned bool
	Oversold     []domain.OversoldLine
}

// Repository persists orders and performs their stock-affecting transitions.
type Repository interface {
	// CreateFromCart snapshots the owner's cart into a pending order and deletes
	// the cart. An absent or empty cart yields domain.ErrEmptyCart.
	CreateFromCart(ctx context.Context, in CreateFromCartInput) (*domain.Order, error)
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Order, error)
	List(ctx context.Context, filter ListFilter) ([]domain.Order, error)
	// UpdateContact and SetPaymentMethod only touch pending orders.
	UpdateContact(ctx context.Context, id int64, info ContactInfo) (*domain.Order, error)
	SetPaymentMethod(ctx context.Context, id int64, method domain.PaymentMethod) (*domain.Order, error)
	// UpdateState moves the order from one state to another only if it is
	// still in from.
	UpdateState(ctx context.Context, id int64, from, to domain.OrderState) (*domain.Order, error)
	Fulfil(ctx context.Context, in FulfilInput) (FulfilResult, error)
}
