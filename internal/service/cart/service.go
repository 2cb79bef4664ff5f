package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
	orderrepo "sevirun/internal/repository/order"
)

var (
	ErrActionsRequired   = errors.New("actions required")
	ErrUnsupportedAction = errors.New("unsupported action")
	ErrProductNotFound   = errors.New("product not found")
	ErrVariantRequired   = errors.New("productId, sizeId and colourId required")
	ErrLineItemRequired  = errors.New("lineItemId required")
	// ErrUnknownVariant is returned when the size or colour does not exist.
	ErrUnknownVariant = errors.New("unknown size or colour")
)

type Service struct {
	repo              cartRepo
	products          productRepo
	orders            orderCreator
	deliveryCostCents int64
	logger            *zap.Logger
}

type cartRepo interface {
	GetByOwner(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Create(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	AddLine(ctx context.Context, cartID string, v domain.Variant, quantity int) error
	SetLineQuantity(ctx context.Context, cartID, lineID string, quantity int) error
	RemoveLine(ctx context.Context, cartID, lineID string) error
	AssignSessionToCustomer(ctx context.Context, sessionID, customerID string) (*domain.Cart, error)
}

type productRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type orderCreator interface {
	CreateFromCart(ctx context.Context, in orderrepo.CreateFromCartInput) (*domain.Order, error)
}

// Deps groups the collaborators of the cart service.
type Deps struct {
	Carts             cartRepo
	Products          productRepo
	Orders            orderCreator
	DeliveryCostCents int64
	Logger            *zap.Logger
}

func New(deps Deps) *Service {
	return &Service{
		repo:              deps.Carts,
		products:          deps.Products,
		orders:            deps.Orders,
		deliveryCostCents: deps.DeliveryCostCents,
		logger:            logging.OrNop(deps.Logger).Named("cart_service"),
	}
}

type UpdateInput struct {
	Actions []UpdateAction `json:"actions"`
}

// UpdateAction is one cart mutation. Supported actions are addLineItem,
// changeLineItemQuantity, incrementLineItem, decrementLineItem and
// removeLineItem.
type UpdateAction struct {
	Action     string `json:"action"`
	ProductID  string `json:"productId,omitempty"`
	SizeID     string `json:"sizeId,omitempty"`
	ColourID   string `json:"colourId,omitempty"`
	LineItemID string `json:"lineItemId,omitempty"`
	Quantity   int    `json:"quantity,omitempty"`
}

// Get returns the owner's cart, or an empty unsaved cart when there is none.
func (s *Service) Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.repo.GetByOwner(ctx, owner)
	if errors.Is(err, domain.ErrNotFound) {
		customerID, sessionID := owner.Columns()
		return &domain.Cart{CustomerID: customerID, SessionID: sessionID}, nil
	}
	return cart, err
}

func (s *Service) getOrCreate(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	cart, err := s.repo.GetByOwner(ctx, owner)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	cart, err = s.repo.Create(ctx, owner)
	if errors.Is(err, domain.ErrAlreadyExists) {
		// Lost a race with a concurrent request for the same owner.
		return s.repo.GetByOwner(ctx, owner)
	}
	return cart, err
}

// Update applies the actions in order to the owner's cart, creating it if needed.
func (s *Service) Update(ctx context.Context, owner domain.Owner, in UpdateInput) (*domain.Cart, error) {
	if len(in.Actions) == 0 {
		return nil, ErrActionsRequired
	}
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cart, err := s.getOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}

	for _, action := range in.Actions {
		if err := s.apply(ctx, cart, action); err != nil {
			return nil, err
		}
	}
	return s.repo.GetByOwner(ctx, owner)
}

func (s *Service) apply(ctx context.Context, cart *domain.Cart, action UpdateAction) error {
	switch strings.ToLower(strings.TrimSpace(action.Action)) {
	case "addlineitem":
		v := domain.Variant{
			ProductID: strings.TrimSpace(action.ProductID),
			SizeID:    strings.TrimSpace(action.SizeID),
			ColourID:  strings.TrimSpace(action.ColourID),
		}
		if v.ProductID == "" || v.SizeID == "" || v.ColourID == "" {
			return ErrVariantRequired
		}
		qty := action.Quantity
		if qty == 0 {
			qty = 1
		}
		if !domain.ValidQuantity(qty) {
			return domain.ErrInvalidQuantity
		}
		product, err := s.products.GetByID(ctx, v.ProductID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		if !product.IsAvailable {
			return ErrProductNotFound
		}
		if err := s.repo.AddLine(ctx, cart.ID, v, qty); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ErrUnknownVariant
			}
			return err
		}
		return nil
	case "changelineitemquantity":
		lineID, err := requireLine(action)
		if err != nil {
			return err
		}
		return s.repo.SetLineQuantity(ctx, cart.ID, lineID, action.Quantity)
	case "incrementlineitem", "decrementlineitem":
		lineID, err := requireLine(action)
		if err != nil {
			return err
		}
		line, ok := findLine(cart, lineID)
		if !ok {
			return domain.ErrNotFound
		}
		step := 1
		if strings.EqualFold(action.Action, "decrementLineItem") {
			step = -1
		}
		qty := line.Quantity + step
		if qty > domain.MaxLineQuantity {
			qty = domain.MaxLineQuantity
		}
		if err := s.repo.SetLineQuantity(ctx, cart.ID, lineID, qty); err != nil {
			return err
		}
		return s.refresh(ctx, cart)
	case "removelineitem":
		lineID, err := requireLine(action)
		if err != nil {
			return err
		}
		return s.repo.RemoveLine(ctx, cart.ID, lineID)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAction, action.Action)
	}
}

// refresh reloads the lines so later actions in the same update see current quantities.
func (s *Service) refresh(ctx context.Context, cart *domain.Cart) error {
	owner := domain.Owner{}
	if cart.CustomerID != nil {
		owner.CustomerID = *cart.CustomerID
	} else if cart.SessionID != nil {
		owner.SessionID = *cart.SessionID
	}
	fresh, err := s.repo.GetByOwner(ctx, owner)
	if err != nil {
		return err
	}
	*cart = *fresh
	return nil
}

// AdoptGuestCart moves the session's cart to the account when the account has
// none. It is a no-op otherwise.
func (s *Service) AdoptGuestCart(ctx context.Context, sessionID, customerID string) error {
	if sessionID == "" || customerID == "" {
		return nil
	}
	_, err := s.repo.AssignSessionToCustomer(ctx, sessionID, customerID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// Checkout materialises the owner's cart into a pending order. The cart is
// deleted in the same transaction.
func (s *Service) Checkout(ctx context.Context, owner domain.Owner) (*domain.Order, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	order, err := s.orders.CreateFromCart(ctx, orderrepo.CreateFromCartInput{
		Owner:             owner,
		DeliveryCostCents: s.deliveryCostCents,
	})
	if err != nil {
		if !errors.Is(err, domain.ErrEmptyCart) {
			s.logger.Error("checkout failed", zap.Error(err))
		}
		return nil, err
	}
	s.logger.Info("order created", zap.Int64("order_id", order.ID), zap.Int("units", order.TotalUnits()))
	return order, nil
}

func requireLine(action UpdateAction) (string, error) {
	lineID := strings.TrimSpace(action.LineItemID)
	if lineID == "" {
		return "", ErrLineItemRequired
	}
	return lineID, nil
}

func findLine(cart *domain.Cart, lineID string) (domain.CartLine, bool) {
	for _, l := range cart.Lines {
		if l.ID == lineID {
			return l, true
		}
	}
	return domain.CartLine{}, false
}
