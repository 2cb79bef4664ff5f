package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness constraint was violated.
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidOwner    = errors.New("owner must be exactly one of customer or session")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 99")
	ErrEmptyCart       = errors.New("cart is empty")

	// ErrForbidden is returned when the requester does not own the resource.
	ErrForbidden         = errors.New("forbidden")
	ErrStaffOnly         = errors.New("staff only")
	ErrCustomerOnly      = errors.New("customers only")
	ErrOrderNotPending   = errors.New("order is not pending payment")
	ErrIncompleteOrder   = errors.New("order contact information is incomplete")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidPayment    = errors.New("invalid payment method")
)
