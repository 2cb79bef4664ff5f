package httpserver

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sevirun/internal/domain"
	cartsvc "sevirun/internal/service/cart"
	customersvc "sevirun/internal/service/customer"
)

func TestBuildRouter_RequiresDependencies(t *testing.T) {
	_, err := buildRouter(nil, nil, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifier")
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	rec := h.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	rec = h.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIdentify_IssuesSessionForNewGuests(t *testing.T) {
	h := newHarness(t)

	rec := h.serve(httptest.NewRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.sessions.issued)
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookie {
			found = true
			assert.Equal(t, "fresh-token", c.Value)
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, found)

	rec = h.serve(guestRequest(http.MethodGet, "/cart", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, h.sessions.issued)
}

func TestFlashMessageIsShownOnce(t *testing.T) {
	h := newHarness(t)
	req := guestRequest(http.MethodGet, "/cart", nil)
	req.AddCookie(&http.Cookie{Name: flashCookie, Value: url.QueryEscape("Your cart is empty")})

	rec := h.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"flash":"Your cart is empty"`)
	var cleared bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == flashCookie && c.MaxAge < 0 {
			cleared = true
		}
	}
	assert.True(t, cleared)
}

func TestMe(t *testing.T) {
	h := newHarness(t)

	rec := h.serve(guestRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	bad := httptest.NewRequest(http.MethodGet, "/me", nil)
	bad.Header.Set("Authorization", "Bearer nope")
	rec = h.serve(bad)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ok := httptest.NewRequest(http.MethodGet, "/me", nil)
	ok.Header.Set("Authorization", "Bearer "+customerToken)
	rec = h.serve(ok)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"email":"ana@example.com"`)
}

func TestSignupAndLogin(t *testing.T) {
	h := newHarness(t)

	req := guestRequest(http.MethodPost, "/signup", strings.NewReader(`{"email":"new@example.com","password":"Abcdefg1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := h.serve(req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	req = guestRequest(http.MethodPost, "/signup", strings.NewReader(`{"password":"Abcdefg1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = h.serve(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = guestRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ana@example.com","password":"Abcdefg1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = h.serve(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accessToken":"access"`)
	assert.Equal(t, "sess-1", h.carts.adoptSession)
	assert.Equal(t, "cust-1", h.carts.adoptCust)

	h.customers.loginErr = customersvc.ErrInvalidCredentials
	req = guestRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"ana@example.com","password":"bad"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = h.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateCartRequiresActions(t *testing.T) {
	h := newHarness(t)
	req := guestRequest(http.MethodPost, "/cart", strings.NewReader(`{"actions":[]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := h.serve(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateCartClientMistakesAreBadRequests(t *testing.T) {
	for _, err := range []error{
		cartsvc.ErrVariantRequired,
		cartsvc.ErrLineItemRequired,
		cartsvc.ErrUnknownVariant,
		fmt.Errorf("%w: explode", cartsvc.ErrUnsupportedAction),
	} {
		h := newHarness(t)
		h.carts.updateErr = err
		req := guestRequest(http.MethodPost, "/cart", strings.NewReader(`{"actions":[{"action":"removeLineItem"}]}`))
		req.Header.Set("Content-Type", "application/json")
		rec := h.serve(req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, err.Error())
		assert.Contains(t, rec.Body.String(), err.Error())
	}
}

func TestProducts(t *testing.T) {
	h := newHarness(t)
	rec := h.serve(guestRequest(http.MethodGet, "/products", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = h.serve(guestRequest(http.MethodGet, "/products/p1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"stock":3`)

	rec = h.serve(guestRequest(http.MethodGet, "/products/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOrdersListingAndStaffTransitions(t *testing.T) {
	h := newHarness(t)
	h.orders.Insert(domain.Order{SessionID: strPtr("sess-1"), State: domain.OrderProcessing, TrackingNumber: strPtr("tn-1")})
	h.orders.Insert(domain.Order{SessionID: strPtr("sess-2"), State: domain.OrderDelivered})

	rec := h.serve(guestRequest(http.MethodGet, "/orders", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)
	assert.Contains(t, rec.Body.String(), `"trackingUrl":"http://shop.test/orders/tracking/tn-1"`)

	rec = h.serve(guestRequest(http.MethodGet, "/orders/sales", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.serve(guestRequest(http.MethodGet, "/orders/detail/2", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	staff := func(method, target string, form url.Values) *http.Request {
		var req *http.Request
		if form != nil {
			req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		} else {
			req = httptest.NewRequest(method, target, nil)
		}
		req.Header.Set("Authorization", "Bearer "+staffToken)
		return req
	}

	rec = h.serve(staff(http.MethodGet, "/orders/sales", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = h.serve(formRequest(http.MethodPost, "/orders/detail/1/state", url.Values{"state": {"shipped"}}))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.serve(staff(http.MethodPost, "/orders/detail/1/state", url.Values{"state": {"shipped"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/orders/detail/1", rec.Header().Get("Location"))

	rec = h.serve(staff(http.MethodPost, "/orders/detail/2/state", url.Values{"state": {"cancelled"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "That state change is not allowed", flashFrom(t, rec.Result()))

	rec = h.serve(httptest.NewRequest(http.MethodGet, "/orders/tracking/tn-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"shipped"`)

	rec = h.serve(httptest.NewRequest(http.MethodGet, "/orders/tracking/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
