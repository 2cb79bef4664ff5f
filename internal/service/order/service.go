package order

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
	mailer "sevirun/internal/mail"
	"sevirun/internal/redsys"
	orderrepo "sevirun/internal/repository/order"
)

var (
	ErrInvalidPhone        = errors.New("invalid phone number")
	ErrInvalidEmail        = errors.New("invalid email")
	ErrAddressRequired     = errors.New("shipping address required")
	ErrInvalidDeliveryType = errors.New("invalid delivery type")
	// ErrCardUnavailable is returned when no payment gateway is configured.
	ErrCardUnavailable = errors.New("card payments are not available")
)

// defaultMailTimeout bounds the confirmation send so a slow provider cannot
// hold the gateway notification open.
const defaultMailTimeout = 5 * time.Second

type customerLookup interface {
	GetByID(ctx context.Context, id string) (*domain.Customer, error)
}

type sessionBuilder interface {
	Build(order domain.Order, urls redsys.CallbackURLs) (redsys.Session, error)
}

// Deps groups the collaborators of the order service.
type Deps struct {
	Orders    orderrepo.Repository
	Customers customerLookup
	Mailer    mailer.Sender
	Sessions  sessionBuilder
	// BaseURL is the public origin used for gateway callbacks and tracking links.
	BaseURL           string
	NewTrackingNumber func() string
	// MailTimeout caps the confirmation send. Zero means defaultMailTimeout.
	MailTimeout time.Duration
	Logger      *zap.Logger
}

type Service struct {
	orders            orderrepo.Repository
	customers         customerLookup
	mailer            mailer.Sender
	sessions          sessionBuilder
	baseURL           string
	newTrackingNumber func() string
	mailTimeout       time.Duration
	logger            *zap.Logger
}

func New(deps Deps) *Service {
	s := &Service{
		orders:            deps.Orders,
		customers:         deps.Customers,
		mailer:            deps.Mailer,
		sessions:          deps.Sessions,
		baseURL:           strings.TrimRight(deps.BaseURL, "/"),
		newTrackingNumber: deps.NewTrackingNumber,
		mailTimeout:       deps.MailTimeout,
		logger:            logging.OrNop(deps.Logger).Named("order_service"),
	}
	if s.newTrackingNumber == nil {
		s.newTrackingNumber = func() string { return uuid.NewString() }
	}
	if s.mailer == nil {
		s.mailer = mailer.NewLogSender(deps.Logger)
	}
	if s.mailTimeout <= 0 {
		s.mailTimeout = defaultMailTimeout
	}
	return s
}

func (s *Service) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return s.orders.GetByID(ctx, id)
}

// GetForRequester returns the order when the requester owns it or is staff.
func (s *Service) GetForRequester(ctx context.Context, r domain.Requester, id int64) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !r.IsStaff && !o.OwnedBy(r) {
		return nil, domain.ErrForbidden
	}
	return o, nil
}

// InfoInput is the contact data captured on the order info step.
type InfoInput struct {
	ShippingAddress string `json:"shippingAddress" form:"shipping_address"`
	Email           string `json:"email" form:"email"`
	Phone           string `json:"phone" form:"phone"`
	DeliveryType    string `json:"deliveryType" form:"delivery_type"`
}

func (in InfoInput) contact() (orderrepo.ContactInfo, error) {
	info := orderrepo.ContactInfo{
		ShippingAddress: strings.TrimSpace(in.ShippingAddress),
		Email:           strings.TrimSpace(in.Email),
		Phone:           strings.TrimSpace(in.Phone),
	}
	if info.ShippingAddress == "" {
		return info, ErrAddressRequired
	}
	if addr, err := mail.ParseAddress(info.Email); err != nil || addr.Address != info.Email {
		return info, ErrInvalidEmail
	}
	if !domain.ValidPhone(info.Phone) {
		return info, ErrInvalidPhone
	}
	dt, ok := domain.ParseDeliveryType(in.DeliveryType)
	if !ok {
		return info, ErrInvalidDeliveryType
	}
	info.DeliveryType = dt
	return info, nil
}

// UpdateInfo stores contact details on a pending order owned by the requester.
func (s *Service) UpdateInfo(ctx context.Context, r domain.Requester, id int64, in InfoInput) (*domain.Order, error) {
	if _, err := s.ownedPending(ctx, r, id); err != nil {
		return nil, err
	}
	info, err := in.contact()
	if err != nil {
		return nil, err
	}
	return s.orders.UpdateContact(ctx, id, info)
}

// ownedPending loads an order the requester owns and may still pay for.
func (s *Service) ownedPending(ctx context.Context, r domain.Requester, id int64) (*domain.Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.OwnedBy(r) {
		return nil, domain.ErrForbidden
	}
	if o.State != domain.OrderPending {
		return nil, domain.ErrOrderNotPending
	}
	return o, nil
}

func (s *Service) payable(ctx context.Context, r domain.Requester, id int64) (*domain.Order, error) {
	if r.IsStaff {
		return nil, domain.ErrCustomerOnly
	}
	o, err := s.ownedPending(ctx, r, id)
	if err != nil {
		return nil, err
	}
	if !o.HasContactInfo() {
		return nil, domain.ErrIncompleteOrder
	}
	return o, nil
}

// PayCashOnDelivery fulfils the order immediately. Every line must be in
// stock, otherwise nothing changes and domain.ErrInsufficientStock is returned.
func (s *Service) PayCashOnDelivery(ctx context.Context, r domain.Requester, id int64) (*domain.Order, error) {
	if _, err := s.payable(ctx, r, id); err != nil {
		return nil, err
	}
	res, err := s.fulfil(ctx, orderrepo.FulfilInput{
		OrderID:       id,
		PaymentMethod: domain.PaymentCash,
		RequireStock:  true,
	})
	if err != nil {
		return nil, err
	}
	return &res.Order, nil
}

// StartCardPayment records card as the payment method and signs the gateway
// request for the order.
func (s *Service) StartCardPayment(ctx context.Context, r domain.Requester, id int64) (redsys.Session, error) {
	if s.sessions == nil {
		return redsys.Session{}, ErrCardUnavailable
	}
	if _, err := s.payable(ctx, r, id); err != nil {
		return redsys.Session{}, err
	}
	o, err := s.orders.SetPaymentMethod(ctx, id, domain.PaymentCard)
	if err != nil {
		return redsys.Session{}, err
	}
	session, err := s.sessions.Build(*o, s.CallbackURLs(id))
	if err != nil {
		return redsys.Session{}, fmt.Errorf("build payment session: %w", err)
	}
	logging.FromContext(ctx, s.logger).Info("card payment started",
		zap.Int64("order_id", id),
		zap.String("order_reference", session.OrderReference),
		zap.Int64("amount_cents", session.AmountCents),
	)
	return session, nil
}

// ConfirmCardPayment handles a verified gateway notification for the internal
// order id. Unknown orders and declined payments are acknowledged without
// changes. Repeated notifications for an order that already left pending are
// no-ops.
func (s *Service) ConfirmCardPayment(ctx context.Context, id int64, n redsys.Notification) error {
	logger := logging.FromContext(ctx, s.logger).With(
		zap.Int64("order_id", id),
		zap.String("order_reference", n.OrderReference),
		zap.Int("response_code", n.ResponseCode),
	)
	if !n.Authorized {
		logger.Info("card payment not authorized")
		return nil
	}
	_, err := s.fulfil(ctx, orderrepo.FulfilInput{OrderID: id, PaymentMethod: domain.PaymentCard})
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("payment notification for unknown order")
		return nil
	}
	return err
}

func (s *Service) fulfil(ctx context.Context, in orderrepo.FulfilInput) (orderrepo.FulfilResult, error) {
	logger := logging.FromContext(ctx, s.logger).With(
		zap.Int64("order_id", in.OrderID),
		zap.String("payment_method", string(in.PaymentMethod)),
	)
	in.TrackingNumber = s.newTrackingNumber()
	res, err := s.orders.Fulfil(ctx, in)
	if err != nil {
		return res, err
	}
	if !res.Transitioned {
		logger.Info("order already fulfilled", zap.String("state", string(res.Order.State)))
		return res, nil
	}
	for _, line := range res.Oversold {
		logger.Warn("order line oversold",
			zap.String("variant", line.Key()),
			zap.Int("requested", line.Requested),
			zap.Int("available", line.Available),
		)
	}
	logger.Info("order fulfilled")
	s.sendConfirmation(ctx, res.Order)
	return res, nil
}

// sendConfirmation never fails the caller: the order has already been fulfilled.
func (s *Service) sendConfirmation(ctx context.Context, o domain.Order) {
	logger := logging.FromContext(ctx, s.logger).With(zap.Int64("order_id", o.ID))

	trackingNumber := ""
	if o.TrackingNumber != nil {
		trackingNumber = *o.TrackingNumber
	}
	trackingURL := s.TrackingURL(trackingNumber)

	to := s.recipient(ctx, o)
	msg, err := mailer.OrderConfirmation(to, mailer.Confirmation{
		Order:          o,
		TrackingNumber: trackingNumber,
		TrackingURL:    trackingURL,
	})
	if err != nil {
		logger.Error("render order confirmation", zap.Error(err))
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.mailTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, msg); err != nil {
		logger.Error("send order confirmation", zap.Error(err))
	}
}

// recipient prefers the account e-mail and falls back to the contact e-mail.
func (s *Service) recipient(ctx context.Context, o domain.Order) string {
	if o.CustomerID != nil && s.customers != nil {
		c, err := s.customers.GetByID(ctx, *o.CustomerID)
		if err == nil && c.Email != "" {
			return c.Email
		}
		if err != nil {
			logging.FromContext(ctx, s.logger).Warn("lookup order customer", zap.Int64("order_id", o.ID), zap.Error(err))
		}
	}
	return o.Email
}

// Transition applies a manual staff state change.
func (s *Service) Transition(ctx context.Context, r domain.Requester, id int64, state string) (*domain.Order, error) {
	if !r.IsStaff {
		return nil, domain.ErrStaffOnly
	}
	to, ok := domain.ParseOrderState(state)
	// processing is only reachable through payment.
	if !ok || to == domain.OrderProcessing {
		return nil, domain.ErrInvalidTransition
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !domain.CanTransition(o.State, to) {
		return nil, domain.ErrInvalidTransition
	}
	updated, err := s.orders.UpdateState(ctx, id, o.State, to)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx, s.logger).Info("order state changed",
		zap.Int64("order_id", id),
		zap.String("from", string(o.State)),
		zap.String("to", string(to)),
		zap.String("staff_id", r.CustomerID),
	)
	return updated, nil
}

// Track looks up an order by its public tracking number.
func (s *Service) Track(ctx context.Context, trackingNumber string) (*domain.Order, error) {
	trackingNumber = strings.TrimSpace(trackingNumber)
	if trackingNumber == "" {
		return nil, domain.ErrNotFound
	}
	return s.orders.GetByTrackingNumber(ctx, trackingNumber)
}

// List returns every order for staff and the requester's own orders otherwise.
func (s *Service) List(ctx context.Context, r domain.Requester) ([]domain.Order, error) {
	if r.IsStaff {
		return s.orders.List(ctx, orderrepo.ListFilter{})
	}
	owner := r.Owner()
	if err := owner.Validate(); err != nil {
		return nil, domain.ErrForbidden
	}
	return s.orders.List(ctx, orderrepo.ListFilter{Owner: owner})
}

// ListSales returns delivered orders.
func (s *Service) ListSales(ctx context.Context, r domain.Requester) ([]domain.Order, error) {
	if !r.IsStaff {
		return nil, domain.ErrStaffOnly
	}
	return s.orders.List(ctx, orderrepo.ListFilter{States: []domain.OrderState{domain.OrderDelivered}})
}

func (s *Service) TrackingURL(trackingNumber string) string {
	return s.baseURL + "/orders/tracking/" + trackingNumber
}

// CallbackURLs are the gateway URLs for an order.
func (s *Service) CallbackURLs(id int64) redsys.CallbackURLs {
	sid := strconv.FormatInt(id, 10)
	return redsys.CallbackURLs{
		Notification: s.baseURL + "/cart/pay/notification/" + sid + "/",
		OK:           s.baseURL + "/cart/pay/ok/" + sid,
		KO:           s.baseURL + "/cart/pay/ko/" + sid,
	}
}
