package domain

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderPending    OrderState = "pending"
	OrderProcessing OrderState = "processing"
	OrderShipped    OrderState = "shipped"
	OrderDelivered  OrderState = "delivered"
	OrderCancelled  OrderState = "cancelled"
)

var orderTransitions = map[OrderState][]OrderState{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered, OrderCancelled},
}

// ParseOrderState validates a state name.
func ParseOrderState(s string) (OrderState, bool) {
	switch st := OrderState(strings.ToLower(strings.TrimSpace(s))); st {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return st, true
	}
	return "", false
}

// CanTransition reports whether an order may move forward from one state to another.
func CanTransition(from, to OrderState) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderState) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

type PaymentMethod string

const (
	PaymentCard PaymentMethod = "card"
	PaymentCash PaymentMethod = "cash"
)

type DeliveryType string

const (
	DeliveryHome        DeliveryType = "home"
	DeliveryStorePickup DeliveryType = "store_pickup"
)

func ParseDeliveryType(s string) (DeliveryType, bool) {
	switch dt := DeliveryType(strings.ToLower(strings.TrimSpace(s))); dt {
	case DeliveryHome, DeliveryStorePickup:
		return dt, true
	case "":
		return DeliveryHome, true
	}
	return "", false
}

// TaxPercentage is the VAT applied to every order.
const TaxPercentage = 21

var phonePattern = regexp.MustCompile(`^\+?1?\d{9,15}$`)

// ValidPhone reports whether the phone number matches the accepted format.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(phone)
}

type Order struct {
	ID                 int64           `json:"id"`
	CustomerID         *string         `json:"customerId,omitempty"`
	SessionID          *string         `json:"-"`
	State              OrderState      `json:"state"`
	DeliveryType       DeliveryType    `json:"deliveryType"`
	ShippingAddress    string          `json:"shippingAddress"`
	Email              string          `json:"email"`
	Phone              string          `json:"phone"`
	PaymentMethod      PaymentMethod   `json:"paymentMethod"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	DeliveryCostCents  int64           `json:"deliveryCostCents"`
	TrackingNumber     *string         `json:"trackingNumber,omitempty"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	Lines              []OrderLine     `json:"lines"`
}

// OrderLine freezes the unit price at the moment the order was created.
type OrderLine struct {
	ID      int64 `json:"id"`
	OrderID int64 `json:"orderId"`
	Variant
	ProductName    string `json:"productName"`
	SizeName       string `json:"sizeName"`
	ColourName     string `json:"colourName"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

func (l OrderLine) Total() decimal.Decimal {
	return Cents(l.UnitPriceCents).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type OrderTotals struct {
	Subtotal     decimal.Decimal `json:"subtotal"`
	DeliveryCost decimal.Decimal `json:"deliveryCost"`
	Tax          decimal.Decimal `json:"tax"`
	Discount     decimal.Decimal `json:"discount"`
	Total        decimal.Decimal `json:"total"`
}

var (
	hundred = decimal.NewFromInt(100)
	taxRate = decimal.NewFromInt(TaxPercentage).Div(hundred)
)

// Totals derives the financial figures from the lines. Every figure is
// rounded up to two decimal places.
func (o Order) Totals() OrderTotals {
	subtotal := decimal.Zero
	for _, line := range o.Lines {
		subtotal = subtotal.Add(line.Total())
	}
	subtotal = subtotal.RoundCeil(2)
	delivery := Cents(o.DeliveryCostCents)
	base := subtotal.Add(delivery)
	tax := base.Mul(taxRate)
	taxed := base.Add(tax)
	discount := taxed.Mul(o.DiscountPercentage).Div(hundred)
	total := taxed.Mul(hundred.Sub(o.DiscountPercentage)).Div(hundred)
	return OrderTotals{
		Subtotal:     subtotal,
		DeliveryCost: delivery,
		Tax:          tax.RoundCeil(2),
		Discount:     discount.RoundCeil(2),
		Total:        total.RoundCeil(2),
	}
}

// TotalPrice is the grand total rounded up to cents.
func (o Order) TotalPrice() decimal.Decimal {
	return o.Totals().Total
}

// AmountCents is the grand total in minor currency units.
func (o Order) AmountCents() int64 {
	return o.TotalPrice().Mul(hundred).Round(0).IntPart()
}

func (o Order) TotalUnits() int {
	n := 0
	for _, line := range o.Lines {
		n += line.Quantity
	}
	return n
}

// HasContactInfo reports whether the order carries what is required to leave pending.
func (o Order) HasContactInfo() bool {
	return strings.TrimSpace(o.ShippingAddress) != "" &&
		strings.TrimSpace(o.Phone) != "" &&
		strings.TrimSpace(o.Email) != ""
}

// OwnedBy reports whether the requester owns the order.
func (o Order) OwnedBy(r Requester) bool {
	return r.Owner().Matches(o.CustomerID, o.SessionID)
}

// OversoldLine records a fulfilled line whose stock could not cover the quantity.
type OversoldLine struct {
	Variant
	Requested int
	Available int
}
