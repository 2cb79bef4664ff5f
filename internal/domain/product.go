package domain

import "time"

type Product struct {
	ID             string    `json:"id"`
	Key            string    `json:"key"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	PictureURL     string    `json:"picture,omitempty"`
	PriceCents     int64     `json:"priceCents"`
	SalePriceCents *int64    `json:"salePriceCents,omitempty"`
	IsAvailable    bool      `json:"isAvailable"`
	IsHighlighted  bool      `json:"isHighlighted"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EffectivePriceCents is the sale price when one is set, the list price otherwise.
func (p Product) EffectivePriceCents() int64 {
	if p.SalePriceCents != nil && *p.SalePriceCents > 0 {
		return *p.SalePriceCents
	}
	return p.PriceCents
}

type Size struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Colour struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Variant identifies a purchasable product × size × colour combination.
type Variant struct {
	ProductID string `json:"productId"`
	SizeID    string `json:"sizeId"`
	ColourID  string `json:"colourId"`
}

// Key returns a stable ordering key for the variant.
func (v Variant) Key() string {
	return v.ProductID + "/" + v.SizeID + "/" + v.ColourID
}

type StockLevel struct {
	Variant
	Stock int `json:"stock"`
}

// DecrementStock subtracts quantity from stock, clamping at zero. The boolean
// reports whether the line was oversold.
func DecrementStock(stock, quantity int) (int, bool) {
	if stock >= quantity {
		return stock - quantity, false
	}
	return 0, true
}
