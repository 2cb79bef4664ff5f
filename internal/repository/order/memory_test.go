package order

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevirun/internal/domain"
)

var (
	variantA = domain.Variant{ProductID: "p1", SizeID: "s42", ColourID: "red"}
	variantB = domain.Variant{ProductID: "p2", SizeID: "s40", ColourID: "blue"}
)

func guestCart() domain.Cart {
	return domain.Cart{
		ID: "cart-1",
		Lines: []domain.CartLine{
			{Variant: variantA, ProductName: "Runner", Quantity: 2, UnitPriceCents: 5590},
			{Variant: variantB, ProductName: "Trail", Quantity: 1, UnitPriceCents: 7500},
		},
	}
}

func TestMemory_CreateFromCartDeletesCart(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	owner := domain.Owner{SessionID: "sess"}
	m.PutCart(owner, guestCart())

	o, err := m.CreateFromCart(ctx, CreateFromCartInput{Owner: owner, DeliveryCostCents: 550})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.State)
	assert.Equal(t, int64(550), o.DeliveryCostCents)
	require.NotNil(t, o.SessionID)
	assert.Equal(t, "sess", *o.SessionID)
	assert.Len(t, o.Lines, 2)
	assert.Equal(t, 0, m.CartCount())

	_, err = m.CreateFromCart(ctx, CreateFromCartInput{Owner: owner})
	require.ErrorIs(t, err, domain.ErrEmptyCart)
}

func TestMemory_CreateFromEmptyCartKeepsCart(t *testing.T) {
	m := NewMemory()
	owner := domain.Owner{CustomerID: "c1"}
	m.PutCart(owner, domain.Cart{ID: "empty"})

	_, err := m.CreateFromCart(context.Background(), CreateFromCartInput{Owner: owner})
	require.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Equal(t, 1, m.CartCount())

	orders, err := m.List(context.Background(), ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestMemory_FulfilIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetStock(variantA, 5)
	m.SetStock(variantB, 5)
	o := m.Insert(domain.Order{Lines: []domain.OrderLine{
		{Variant: variantA, Quantity: 2},
		{Variant: variantB, Quantity: 1},
	}})

	first, err := m.Fulfil(ctx, FulfilInput{OrderID: o.ID, PaymentMethod: domain.PaymentCard, TrackingNumber: "tn-1"})
	require.NoError(t, err)
	assert.True(t, first.Transitioned)
	assert.Equal(t, domain.OrderProcessing, first.Order.State)

	second, err := m.Fulfil(ctx, FulfilInput{OrderID: o.ID, PaymentMethod: domain.PaymentCard, TrackingNumber: "tn-2"})
	require.NoError(t, err)
	assert.False(t, second.Transitioned)
	require.NotNil(t, second.Order.TrackingNumber)
	assert.Equal(t, "tn-1", *second.Order.TrackingNumber)

	assert.Equal(t, 3, m.Stock(variantA))
	assert.Equal(t, 4, m.Stock(variantB))
}

func TestMemory_FulfilClampsOrRequiresStock(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.SetStock(variantA, 1)
	o := m.Insert(domain.Order{Lines: []domain.OrderLine{{Variant: variantA, Quantity: 2}}})

	_, err := m.Fulfil(ctx, FulfilInput{OrderID: o.ID, PaymentMethod: domain.PaymentCash, RequireStock: true})
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 1, m.Stock(variantA))
	got, err := m.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, got.State)

	res, err := m.Fulfil(ctx, FulfilInput{OrderID: o.ID, PaymentMethod: domain.PaymentCard})
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	assert.Equal(t, 0, m.Stock(variantA))
	require.Len(t, res.Oversold, 1)
	assert.Equal(t, 1, res.Oversold[0].Available)
}

func TestMemory_PendingOnlyMutations(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := m.Insert(domain.Order{State: domain.OrderProcessing})

	_, err := m.SetPaymentMethod(ctx, o.ID, domain.PaymentCash)
	require.ErrorIs(t, err, domain.ErrOrderNotPending)
	_, err = m.UpdateContact(ctx, 999, ContactInfo{})
	require.ErrorIs(t, err, domain.ErrNotFound)

	shipped, err := m.UpdateState(ctx, o.ID, domain.OrderProcessing, domain.OrderShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderShipped, shipped.State)
	_, err = m.UpdateState(ctx, o.ID, domain.OrderProcessing, domain.OrderShipped)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestMemory_ListFilters(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cust := "c1"
	m.Insert(domain.Order{CustomerID: &cust, State: domain.OrderDelivered})
	m.Insert(domain.Order{CustomerID: &cust})
	m.Insert(domain.Order{})

	own, err := m.List(ctx, ListFilter{Owner: domain.Owner{CustomerID: cust}})
	require.NoError(t, err)
	assert.Len(t, own, 2)

	sales, err := m.List(ctx, ListFilter{States: []domain.OrderState{domain.OrderDelivered}})
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	all, err := m.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
