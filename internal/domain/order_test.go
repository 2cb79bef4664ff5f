package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderTotalsRoundUp(t *testing.T) {
	order := Order{
		DeliveryCostCents:  550,
		DiscountPercentage: decimal.NewFromInt(10),
		Lines: []OrderLine{
			{Quantity: 2, UnitPriceCents: 5590},
			{Quantity: 1, UnitPriceCents: 7500},
		},
	}

	totals := order.Totals()
	assert.Equal(t, "186.8", totals.Subtotal.String())
	assert.Equal(t, "5.5", totals.DeliveryCost.String())
	assert.Equal(t, "209.42", totals.Total.StringFixed(2))
	assert.Equal(t, int64(20942), order.AmountCents())
}

func TestOrderTotalsWithoutDiscount(t *testing.T) {
	order := Order{
		DeliveryCostCents:  0,
		DiscountPercentage: decimal.Zero,
		Lines:              []OrderLine{{Quantity: 1, UnitPriceCents: 1000}},
	}
	assert.Equal(t, "12.10", order.TotalPrice().StringFixed(2))
	assert.Equal(t, int64(1210), order.AmountCents())
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to OrderState
		ok       bool
	}{
		{OrderPending, OrderProcessing, true},
		{OrderPending, OrderCancelled, true},
		{OrderProcessing, OrderShipped, true},
		{OrderShipped, OrderDelivered, true},
		{OrderShipped, OrderCancelled, true},
		{OrderProcessing, OrderPending, false},
		{OrderDelivered, OrderCancelled, false},
		{OrderCancelled, OrderProcessing, false},
		{OrderPending, OrderDelivered, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, OrderDelivered.Terminal())
	assert.False(t, OrderPending.Terminal())
}

func TestDecrementStockClampsAtZero(t *testing.T) {
	left, oversold := DecrementStock(1, 2)
	assert.Equal(t, 0, left)
	assert.True(t, oversold)

	left, oversold = DecrementStock(5, 2)
	assert.Equal(t, 3, left)
	assert.False(t, oversold)
}

func TestOwnerValidate(t *testing.T) {
	require.ErrorIs(t, Owner{}.Validate(), ErrInvalidOwner)
	require.ErrorIs(t, Owner{CustomerID: "c", SessionID: "s"}.Validate(), ErrInvalidOwner)
	require.NoError(t, Owner{CustomerID: "c"}.Validate())
	require.NoError(t, Owner{SessionID: "s"}.Validate())
}

func TestOrderOwnedBy(t *testing.T) {
	cust := "cust-1"
	sess := "sess-1"
	order := Order{CustomerID: &cust}
	assert.True(t, order.OwnedBy(Requester{CustomerID: cust}))
	assert.False(t, order.OwnedBy(Requester{CustomerID: "other"}))
	assert.False(t, order.OwnedBy(Requester{SessionID: sess}))

	guest := Order{SessionID: &sess}
	assert.True(t, guest.OwnedBy(Requester{SessionID: sess}))
	assert.False(t, guest.OwnedBy(Requester{CustomerID: cust, SessionID: sess}))
}

func TestValidPhone(t *testing.T) {
	assert.True(t, ValidPhone("+341234356789"))
	assert.True(t, ValidPhone("612345678"))
	assert.False(t, ValidPhone("12-34"))
}
