package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinLineQuantity = 1
	MaxLineQuantity = 99
)

// Owner identifies who a cart or order belongs to: an account or an anonymous
// session, never both.
type Owner struct {
	CustomerID string
	SessionID  string
}

func (o Owner) Validate() error {
	hasCustomer := strings.TrimSpace(o.CustomerID) != ""
	hasSession := strings.TrimSpace(o.SessionID) != ""
	if hasCustomer == hasSession {
		return ErrInvalidOwner
	}
	return nil
}

// Matches reports whether the stored owner columns belong to o.
func (o Owner) Matches(customerID, sessionID *string) bool {
	if o.CustomerID != "" {
		return customerID != nil && *customerID == o.CustomerID
	}
	if o.SessionID != "" {
		return sessionID != nil && *sessionID == o.SessionID
	}
	return false
}

// Columns returns the nullable customer and session columns for persistence.
func (o Owner) Columns() (customerID, sessionID *string) {
	if o.CustomerID != "" {
		v := o.CustomerID
		customerID = &v
	}
	if o.SessionID != "" {
		v := o.SessionID
		sessionID = &v
	}
	return customerID, sessionID
}

type Cart struct {
	ID         string     `json:"id"`
	CustomerID *string    `json:"customerId,omitempty"`
	SessionID  *string    `json:"-"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Lines      []CartLine `json:"lines"`
}

// CartLine carries the live product price, not a frozen one.
type CartLine struct {
	ID             string `json:"id"`
	CartID         string `json:"cartId"`
	Variant
	ProductName    string `json:"productName"`
	SizeName       string `json:"sizeName"`
	ColourName     string `json:"colourName"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

func (l CartLine) Total() decimal.Decimal {
	return Cents(l.UnitPriceCents).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range c.Lines {
		total = total.Add(line.Total())
	}
	return total
}

func (c Cart) TotalUnits() int {
	n := 0
	for _, line := range c.Lines {
		n += line.Quantity
	}
	return n
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// ValidQuantity reports whether q fits the per-line bounds.
func ValidQuantity(q int) bool {
	return q >= MinLineQuantity && q <= MaxLineQuantity
}

// Cents converts an integer amount of cents into a decimal amount.
func Cents(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
