package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	ordersvc "sevirun/internal/service/order"
)

func flashFrom(t *testing.T, resp *http.Response) string {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == flashCookie {
			msg, err := url.QueryUnescape(c.Value)
			require.NoError(t, err)
			return msg
		}
	}
	return ""
}

func TestCheckout_RedirectsToInfoStep(t *testing.T) {
	h := newHarness(t)
	h.carts.order = &domain.Order{ID: 7}

	rec := h.serve(guestRequest(http.MethodPost, "/cart/checkout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/info/7", rec.Header().Get("Location"))
}

func TestCheckout_EmptyCartFlashes(t *testing.T) {
	h := newHarness(t)
	h.carts.checkoutErr = domain.ErrEmptyCart

	rec := h.serve(guestRequest(http.MethodPost, "/cart/checkout", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	assert.Equal(t, "Your cart is empty", flashFrom(t, rec.Result()))
}

func TestUpdateOrderInfo(t *testing.T) {
	h := newHarness(t)
	o := h.orders.Insert(domain.Order{SessionID: strPtr("sess-1"), State: domain.OrderPending})

	bad := url.Values{"shipping_address": {"Calle Feria 9"}, "email": {"g@example.com"}, "phone": {"abc"}}
	rec := h.serve(formRequest(http.MethodPost, "/cart/info/1", bad))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/info/1", rec.Header().Get("Location"))

	good := url.Values{"shipping_address": {"Calle Feria 9"}, "email": {"g@example.com"}, "phone": {"600111222"}, "delivery_type": {"home"}}
	rec = h.serve(formRequest(http.MethodPost, "/cart/info/1", good))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/pay/method/1", rec.Header().Get("Location"))

	stored, err := h.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasContactInfo())
}

func TestCashOnDelivery_RedirectsToSuccessPage(t *testing.T) {
	h := newHarness(t)
	h.orders.SetStock(variantA, 5)
	h.orders.SetStock(variantB, 5)
	o := h.pendingGuestOrder()

	rec := h.serve(formRequest(http.MethodPost, "/cart/pay/method/1", url.Values{"method": {"cod"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/pay/ok/1", rec.Header().Get("Location"))

	stored, err := h.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderProcessing, stored.State)
	assert.Equal(t, domain.PaymentCash, stored.PaymentMethod)
	assert.Len(t, h.mail.Sent(), 1)

	ok := h.serve(guestRequest(http.MethodGet, "/cart/pay/ok/1", nil))
	require.Equal(t, http.StatusOK, ok.Code)
	assert.Contains(t, ok.Body.String(), `"state":"processing"`)
	assert.Contains(t, ok.Body.String(), `"total":"232.69"`)
}

func TestCashOnDelivery_OutOfStockReturnsToCart(t *testing.T) {
	h := newHarness(t)
	h.orders.SetStock(variantA, 1)
	h.orders.SetStock(variantB, 5)
	o := h.pendingGuestOrder()

	rec := h.serve(formRequest(http.MethodPost, "/cart/pay/method/1", url.Values{"method": {"cod"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart", rec.Header().Get("Location"))
	assert.Equal(t, "Some products are out of stock", flashFrom(t, rec.Result()))

	stored, err := h.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.State)
	assert.Equal(t, 1, h.orders.Stock(variantA))
	assert.Empty(t, h.mail.Sent())
}

func TestPaymentMethod_Refusals(t *testing.T) {
	h := newHarness(t)
	h.pendingGuestOrder()
	h.orders.Insert(domain.Order{SessionID: strPtr("sess-1"), State: domain.OrderPending})

	staff := guestRequest(http.MethodGet, "/cart/pay/method/1", nil)
	staff.Header.Set("Authorization", "Bearer "+staffToken)
	rec := h.serve(staff)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/orders", rec.Header().Get("Location"))

	rec = h.serve(guestRequest(http.MethodGet, "/cart/pay/method/2", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/info/2", rec.Header().Get("Location"))

	rec = h.serve(formRequest(http.MethodPost, "/cart/pay/method/1", url.Values{"method": {"bitcoin"}}))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/pay/method/1", rec.Header().Get("Location"))

	rec = h.serve(guestRequest(http.MethodGet, "/cart/pay/method/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"methods":["card","cod"]`)
}

func TestCardPayment_ReturnsSignedForm(t *testing.T) {
	h := newHarness(t)
	o := h.pendingGuestOrder()

	rec := h.serve(formRequest(http.MethodPost, "/cart/pay/method/1", url.Values{"method": {"card"}}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var form paymentFormResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &form))
	assert.Equal(t, "https://sis-t.redsys.es:25443/sis/realizarPago", form.Action)
	assert.Equal(t, "HMAC_SHA256_V1", form.SignatureVersion)
	assert.Equal(t, "170000000042", form.OrderReference)
	assert.NotEmpty(t, form.MerchantParameters)
	assert.False(t, strings.ContainsAny(form.Signature, "+/"))

	stored, err := h.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.State)
	assert.Equal(t, domain.PaymentCard, stored.PaymentMethod)
}

func TestSelectPaymentMethod_MalformedBodyFlashes(t *testing.T) {
	h := newHarness(t)
	o := h.pendingGuestOrder()

	req := guestRequest(http.MethodPost, "/cart/pay/method/1", strings.NewReader(`{"method":`))
	req.Header.Set("Content-Type", "application/json")
	rec := h.serve(req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/pay/method/1", rec.Header().Get("Location"))
	assert.Equal(t, "Invalid form", flashFrom(t, rec.Result()))

	stored, err := h.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, stored.State)
	assert.Equal(t, o.PaymentMethod, stored.PaymentMethod)
}

func TestFlowError_CardUnavailableReturnsToMethodStep(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/cart/pay/method/3", nil)

	h := &handlers{logger: zap.NewNop()}
	h.flowError(c, 3, ordersvc.ErrCardUnavailable)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/cart/pay/method/3", rec.Header().Get("Location"))
	assert.Contains(t, flashFrom(t, rec.Result()), "Card payments are not available")
}
