package order

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"sevirun/internal/domain"
)

// Memory is an in-process Repository used by tests and local tooling. It keeps
// carts and per-variant stock alongside orders so the whole checkout flow can
// run without Postgres.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	orders map[int64]domain.Order
	carts  map[domain.Owner]domain.Cart
	stock  map[string]int
	now    func() time.Time
}

var _ Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		orders: make(map[int64]domain.Order),
		carts:  make(map[domain.Owner]domain.Cart),
		stock:  make(map[string]int),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PutCart stores a cart for its owner, replacing any previous one.
func (m *Memory) PutCart(owner domain.Owner, cart domain.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[owner] = cart
}

// CartCount reports how many carts are stored.
func (m *Memory) CartCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.carts)
}

// SetStock sets the stock for a variant. Variants never set have no stock row.
func (m *Memory) SetStock(v domain.Variant, stock int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stock[v.Key()] = stock
}

// Stock returns the stock for a variant.
func (m *Memory) Stock(v domain.Variant) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[v.Key()]
}

// Insert stores an order as given, assigning an id when it has none.
func (m *Memory) Insert(o domain.Order) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == 0 {
		m.nextID++
		o.ID = m.nextID
	} else if o.ID > m.nextID {
		m.nextID = o.ID
	}
	if o.State == "" {
		o.State = domain.OrderPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = m.now()
		o.UpdatedAt = o.CreatedAt
	}
	m.orders[o.ID] = cloneOrder(o)
	return cloneOrder(o)
}

func (m *Memory) CreateFromCart(_ context.Context, in CreateFromCartInput) (*domain.Order, error) {
	if err := in.Owner.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.carts[in.Owner]
	if !ok || cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	m.nextID++
	now := m.now()
	customerID, sessionID := in.Owner.Columns()
	o := domain.Order{
		ID:                 m.nextID,
		CustomerID:         customerID,
		SessionID:          sessionID,
		State:              domain.OrderPending,
		DeliveryType:       domain.DeliveryHome,
		PaymentMethod:      domain.PaymentCard,
		DiscountPercentage: decimal.Zero,
		DeliveryCostCents:  in.DeliveryCostCents,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for i, line := range cart.Lines {
		o.Lines = append(o.Lines, domain.OrderLine{
			ID:             int64(i + 1),
			OrderID:        o.ID,
			Variant:        line.Variant,
			ProductName:    line.ProductName,
			SizeName:       line.SizeName,
			ColourName:     line.ColourName,
			Quantity:       line.Quantity,
			UnitPriceCents: line.UnitPriceCents,
		})
	}
	m.orders[o.ID] = o
	delete(m.carts, in.Owner)
	out := cloneOrder(o)
	return &out, nil
}

func (m *Memory) GetByID(_ context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (m *Memory) GetByTrackingNumber(_ context.Context, trackingNumber string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	trackingNumber = strings.TrimSpace(trackingNumber)
	for _, o := range m.orders {
		if trackingNumber != "" && o.TrackingNumber != nil && *o.TrackingNumber == trackingNumber {
			out := cloneOrder(o)
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *Memory) List(_ context.Context, filter ListFilter) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if filter.Owner != (domain.Owner{}) && !filter.Owner.Matches(o.CustomerID, o.SessionID) {
			continue
		}
		if len(filter.States) > 0 && !containsState(filter.States, o.State) {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateContact(_ context.Context, id int64, info ContactInfo) (*domain.Order, error) {
	return m.mutatePending(id, func(o *domain.Order) {
		o.ShippingAddress = info.ShippingAddress
		o.Email = info.Email
		o.Phone = info.Phone
		o.DeliveryType = info.DeliveryType
	})
}

func (m *Memory) SetPaymentMethod(_ context.Context, id int64, method domain.PaymentMethod) (*domain.Order, error) {
	return m.mutatePending(id, func(o *domain.Order) {
		o.PaymentMethod = method
	})
}

func (m *Memory) UpdateState(_ context.Context, id int64, from, to domain.OrderState) (*domain.Order, error) {
	if !domain.CanTransition(from, to) {
		return nil, domain.ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.State != from {
		return nil, domain.ErrInvalidTransition
	}
	o.State = to
	o.UpdatedAt = m.now()
	m.orders[id] = o
	out := cloneOrder(o)
	return &out, nil
}

func (m *Memory) Fulfil(_ context.Context, in FulfilInput) (FulfilResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[in.OrderID]
	if !ok {
		return FulfilResult{}, domain.ErrNotFound
	}
	if o.State != domain.OrderPending {
		return FulfilResult{Order: cloneOrder(o)}, nil
	}

	wanted := aggregateLines(o.Lines)
	if in.RequireStock {
		for k, line := range wanted {
			if m.stock[k] < line.quantity {
				return FulfilResult{}, domain.ErrInsufficientStock
			}
		}
	}

	keys := make([]string, 0, len(wanted))
	for k := range wanted {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var oversold []domain.OversoldLine
	for _, k := range keys {
		line := wanted[k]
		current, present := m.stock[k]
		left, short := domain.DecrementStock(current, line.quantity)
		if short {
			oversold = append(oversold, domain.OversoldLine{Variant: line.Variant, Requested: line.quantity, Available: current})
		}
		if present {
			m.stock[k] = left
		}
	}

	o.State = domain.OrderProcessing
	o.PaymentMethod = in.PaymentMethod
	if o.TrackingNumber == nil && in.TrackingNumber != "" {
		tn := in.TrackingNumber
		o.TrackingNumber = &tn
	}
	o.UpdatedAt = m.now()
	m.orders[o.ID] = o
	return FulfilResult{Order: cloneOrder(o), Transitioned: true, Oversold: oversold}, nil
}

func (m *Memory) mutatePending(id int64, fn func(*domain.Order)) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if o.State != domain.OrderPending {
		return nil, domain.ErrOrderNotPending
	}
	fn(&o)
	o.UpdatedAt = m.now()
	m.orders[id] = o
	out := cloneOrder(o)
	return &out, nil
}

func containsState(states []domain.OrderState, s domain.OrderState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func cloneOrder(o domain.Order) domain.Order {
	o.Lines = append([]domain.OrderLine(nil), o.Lines...)
	if o.TrackingNumber != nil {
		tn := *o.TrackingNumber
		o.TrackingNumber = &tn
	}
	return o
}
