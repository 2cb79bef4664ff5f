package httpserver

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"sevirun/internal/domain"
	"sevirun/internal/mail"
	"sevirun/internal/redsys"
	orderrepo "sevirun/internal/repository/order"
	cartsvc "sevirun/internal/service/cart"
	customersvc "sevirun/internal/service/customer"
	ordersvc "sevirun/internal/service/order"
	productsvc "sevirun/internal/service/product"
)

const (
	sandboxSecret = "sq7HjrUOBfKmC576ILgskD5srU870gJ7"
	guestToken    = "guest-token"
	staffToken    = "staff-token"
	customerToken = "customer-token"
)

var (
	variantA = domain.Variant{ProductID: "p1", SizeID: "s42", ColourID: "red"}
	variantB = domain.Variant{ProductID: "p2", SizeID: "s40", ColourID: "blue"}
)

type stubCustomers struct {
	byToken  map[string]*domain.Customer
	loginErr error
}

func newStubCustomers() *stubCustomers {
	return &stubCustomers{byToken: map[string]*domain.Customer{
		staffToken:    {ID: "staff-1", Email: "staff@example.com", IsStaff: true},
		customerToken: {ID: "cust-1", Email: "ana@example.com"},
	}}
}

func (s *stubCustomers) Signup(_ context.Context, in customersvc.SignupInput) (*domain.Customer, error) {
	if in.Email == "" {
		return nil, customersvc.ErrInvalidEmail
	}
	return &domain.Customer{ID: "new-1", Email: in.Email}, nil
}

func (s *stubCustomers) Login(_ context.Context, email, _ string) (*domain.Customer, string, string, error) {
	if s.loginErr != nil {
		return nil, "", "", s.loginErr
	}
	return &domain.Customer{ID: "cust-1", Email: email}, "access", "refresh", nil
}

func (s *stubCustomers) Logout(context.Context, string) error { return nil }

func (s *stubCustomers) LookupByToken(_ context.Context, token string) (*domain.Customer, error) {
	c, ok := s.byToken[token]
	if !ok {
		return nil, customersvc.ErrInvalidToken
	}
	return c, nil
}

func (s *stubCustomers) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	for _, c := range s.byToken {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *stubCustomers) AccessTTLSeconds() int { return 3600 }

type stubSessions struct {
	issued int
}

func (s *stubSessions) Issue(context.Context) (string, string, error) {
	s.issued++
	return "fresh-token", "sess-new", nil
}

func (s *stubSessions) LookupByToken(_ context.Context, token string) (string, error) {
	if token == guestToken {
		return "sess-1", nil
	}
	return "", domain.ErrNotFound
}

func (s *stubSessions) SessionTTLSeconds() int { return 600 }

type stubCarts struct {
	cart         domain.Cart
	order        *domain.Order
	checkoutErr  error
	updateErr    error
	adoptSession string
	adoptCust    string
}

func (s *stubCarts) Get(context.Context, domain.Owner) (*domain.Cart, error) {
	c := s.cart
	return &c, nil
}

func (s *stubCarts) Update(_ context.Context, _ domain.Owner, in cartsvc.UpdateInput) (*domain.Cart, error) {
	if len(in.Actions) == 0 {
		return nil, cartsvc.ErrActionsRequired
	}
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	c := s.cart
	return &c, nil
}

func (s *stubCarts) AdoptGuestCart(_ context.Context, sessionID, customerID string) error {
	s.adoptSession = sessionID
	s.adoptCust = customerID
	return nil
}

func (s *stubCarts) Checkout(context.Context, domain.Owner) (*domain.Order, error) {
	return s.order, s.checkoutErr
}

type stubProducts struct{}

func (stubProducts) List(context.Context) ([]domain.Product, error) {
	return []domain.Product{{ID: "p1", Key: "runner", Name: "Runner", PriceCents: 5590}}, nil
}

func (stubProducts) Get(_ context.Context, id string) (*productsvc.Detail, error) {
	if id != "p1" {
		return nil, domain.ErrNotFound
	}
	return &productsvc.Detail{
		Product: domain.Product{ID: "p1", Key: "runner", Name: "Runner", PriceCents: 5590},
		Stock:   []domain.StockLevel{{Variant: variantA, Stock: 3}},
		InStock: true,
	}, nil
}

type harness struct {
	router    *gin.Engine
	orders    *orderrepo.Memory
	mail      *mail.Recorder
	carts     *stubCarts
	sessions  *stubSessions
	customers *stubCustomers
	secret    []byte
}

func newHarness(t *testing.T) harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := redsys.Config{
		SecretKey:       sandboxSecret,
		MerchantCode:    "999008881",
		Currency:        "978",
		TransactionType: "0",
		Terminal:        "1",
		Endpoint:        "https://sis-t.redsys.es:25443/sis/realizarPago",
	}
	builder, err := redsys.NewSessionBuilder(cfg, redsys.WithReferenceGenerator(func() string { return "170000000042" }))
	require.NoError(t, err)
	verifier, err := redsys.NewVerifier(cfg)
	require.NoError(t, err)
	secret, err := redsys.DecodeSecret(sandboxSecret)
	require.NoError(t, err)

	h := harness{
		orders:    orderrepo.NewMemory(),
		mail:      &mail.Recorder{},
		carts:     &stubCarts{},
		sessions:  &stubSessions{},
		customers: newStubCustomers(),
		secret:    secret,
	}
	orders := ordersvc.New(ordersvc.Deps{
		Orders:    h.orders,
		Customers: h.customers,
		Mailer:    h.mail,
		Sessions:  builder,
		BaseURL:   "http://shop.test",
	})
	h.router, err = buildRouter(nil, nil, Deps{
		Customers: h.customers,
		Sessions:  h.sessions,
		Carts:     h.carts,
		Orders:    orders,
		Products:  stubProducts{},
		Verifier:  verifier,
	})
	require.NoError(t, err)
	return h
}

func (h harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func strPtr(s string) *string { return &s }

// pendingGuestOrder stores a payable order owned by the guest session.
func (h harness) pendingGuestOrder() domain.Order {
	return h.orders.Insert(domain.Order{
		SessionID:         strPtr("sess-1"),
		State:             domain.OrderPending,
		DeliveryType:      domain.DeliveryHome,
		ShippingAddress:   "Calle Sierpes 1, Sevilla",
		Email:             "guest@example.com",
		Phone:             "+34600111222",
		PaymentMethod:     domain.PaymentCard,
		DeliveryCostCents: 550,
		Lines: []domain.OrderLine{
			{Variant: variantA, ProductName: "Runner", Quantity: 2, UnitPriceCents: 5590},
			{Variant: variantB, ProductName: "Trail", Quantity: 1, UnitPriceCents: 7500},
		},
	})
}

func guestRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.AddCookie(&http.Cookie{Name: sessionCookie, Value: guestToken})
	return req
}

func formRequest(method, target string, form url.Values) *http.Request {
	req := guestRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// signedNotification builds the form the gateway posts for ref.
func (h harness) signedNotification(t *testing.T, ref, response string) url.Values {
	t.Helper()
	params := fmt.Sprintf(`{"Ds_Amount":"23269","Ds_Order":"%s","Ds_Response":"%s"}`, ref, response)
	encoded := base64.StdEncoding.EncodeToString([]byte(params))
	sig, err := redsys.SignOrder(encoded, h.secret, ref)
	require.NoError(t, err)
	return url.Values{
		"Ds_SignatureVersion":   {redsys.SignatureVersion},
		"Ds_MerchantParameters": {encoded},
		"Ds_Signature":          {sig},
	}
}

func notificationRequest(method string, orderID int64, form url.Values) *http.Request {
	target := fmt.Sprintf("/cart/pay/notification/%d/", orderID)
	if method != http.MethodPost {
		return httptest.NewRequest(method, target+"?"+form.Encode(), nil)
	}
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}
