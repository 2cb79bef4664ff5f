package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sevirun/internal/domain"
	ordersvc "sevirun/internal/service/order"
)

func orderPath(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

// orderFlow resolves the order of a checkout step. Failures redirect with a
// flash message and report false.
func (h *handlers) orderFlow(c *gin.Context) (*domain.Order, bool) {
	id, ok := parseOrderID(c)
	if !ok {
		h.redirectWithFlash(c, "/cart", "Order not found")
		return nil, false
	}
	o, err := h.Orders.GetForRequester(c.Request.Context(), requester(c), id)
	if err != nil {
		h.flowError(c, id, err)
		return nil, false
	}
	return o, true
}

// flowError turns business rule failures on the checkout steps into redirects.
func (h *handlers) flowError(c *gin.Context, id int64, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrForbidden):
		h.redirectWithFlash(c, "/cart", "Order not found")
	case errors.Is(err, domain.ErrCustomerOnly):
		h.redirectWithFlash(c, "/orders", "This view is for clients only")
	case errors.Is(err, domain.ErrOrderNotPending):
		h.redirectWithFlash(c, orderPath("/orders/detail/", id), "This order has already been paid")
	case errors.Is(err, domain.ErrIncompleteOrder):
		h.redirectWithFlash(c, orderPath("/cart/info/", id), "Please complete the shipping information")
	case errors.Is(err, domain.ErrInsufficientStock):
		h.redirectWithFlash(c, "/cart", "Some products are out of stock")
	case errors.Is(err, domain.ErrInvalidPayment):
		h.redirectWithFlash(c, orderPath("/cart/pay/method/", id), "Choose a valid payment method")
	case errors.Is(err, ordersvc.ErrCardUnavailable):
		h.redirectWithFlash(c, orderPath("/cart/pay/method/", id), "Card payments are not available, choose cash on delivery")
	case isValidation(err):
		h.redirectWithFlash(c, orderPath("/cart/info/", id), err.Error())
	default:
		h.internalError(c, "checkout step failed", err)
	}
}

func (h *handlers) orderInfo(c *gin.Context) {
	o, ok := h.orderFlow(c)
	if !ok {
		return
	}
	if o.State != domain.OrderPending {
		h.flowError(c, o.ID, domain.ErrOrderNotPending)
		return
	}
	page(c, http.StatusOK, gin.H{"order": h.viewOrder(*o)})
}

func (h *handlers) updateOrderInfo(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		h.redirectWithFlash(c, "/cart", "Order not found")
		return
	}
	var in ordersvc.InfoInput
	if err := c.ShouldBind(&in); err != nil {
		h.redirectWithFlash(c, orderPath("/cart/info/", id), "Invalid form")
		return
	}
	if _, err := h.Orders.UpdateInfo(c.Request.Context(), requester(c), id, in); err != nil {
		h.flowError(c, id, err)
		return
	}
	c.Redirect(http.StatusSeeOther, orderPath("/cart/pay/method/", id))
}

func (h *handlers) paymentMethod(c *gin.Context) {
	if requester(c).IsStaff {
		h.flowError(c, 0, domain.ErrCustomerOnly)
		return
	}
	o, ok := h.orderFlow(c)
	if !ok {
		return
	}
	switch {
	case o.State != domain.OrderPending:
		h.flowError(c, o.ID, domain.ErrOrderNotPending)
		return
	case !o.HasContactInfo():
		h.flowError(c, o.ID, domain.ErrIncompleteOrder)
		return
	}
	page(c, http.StatusOK, gin.H{
		"order":   h.viewOrder(*o),
		"methods": []string{"card", "cod"},
	})
}

type paymentMethodRequest struct {
	Method string `form:"method" json:"method"`
}

// paymentFormResponse carries what the auto-submit form posts to the gateway.
type paymentFormResponse struct {
	Action             string `json:"action"`
	SignatureVersion   string `json:"Ds_SignatureVersion"`
	MerchantParameters string `json:"Ds_MerchantParameters"`
	Signature          string `json:"Ds_Signature"`
	OrderReference     string `json:"orderReference"`
}

func (h *handlers) selectPaymentMethod(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		h.redirectWithFlash(c, "/cart", "Order not found")
		return
	}
	var in paymentMethodRequest
	if err := c.ShouldBind(&in); err != nil {
		h.redirectWithFlash(c, orderPath("/cart/pay/method/", id), "Invalid form")
		return
	}
	r := requester(c)
	ctx := c.Request.Context()

	switch strings.ToLower(strings.TrimSpace(in.Method)) {
	case "cod", "cash":
		if _, err := h.Orders.PayCashOnDelivery(ctx, r, id); err != nil {
			h.flowError(c, id, err)
			return
		}
		c.Redirect(http.StatusSeeOther, orderPath("/cart/pay/ok/", id))
	case "card":
		session, err := h.Orders.StartCardPayment(ctx, r, id)
		if err != nil {
			h.flowError(c, id, err)
			return
		}
		c.JSON(http.StatusOK, paymentFormResponse{
			Action:             session.Endpoint,
			SignatureVersion:   session.SignatureVersion,
			MerchantParameters: session.MerchantParameters,
			Signature:          session.Signature,
			OrderReference:     session.OrderReference,
		})
	default:
		h.flowError(c, id, domain.ErrInvalidPayment)
	}
}

func (h *handlers) paymentResult(success bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, ok := h.orderFlow(c)
		if !ok {
			return
		}
		page(c, http.StatusOK, gin.H{"order": h.viewOrder(*o), "paid": success})
	}
}

func (h *handlers) listOrders(c *gin.Context) {
	orders, err := h.Orders.List(c.Request.Context(), requester(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	page(c, http.StatusOK, gin.H{"results": h.viewOrders(orders), "count": len(orders)})
}

func (h *handlers) listSales(c *gin.Context) {
	orders, err := h.Orders.ListSales(c.Request.Context(), requester(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	page(c, http.StatusOK, gin.H{"results": h.viewOrders(orders), "count": len(orders)})
}

func (h *handlers) orderDetail(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		abortJSON(c, http.StatusNotFound, "not found")
		return
	}
	o, err := h.Orders.GetForRequester(c.Request.Context(), requester(c), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	page(c, http.StatusOK, gin.H{"order": h.viewOrder(*o)})
}

type stateRequest struct {
	State string `form:"state" json:"state" binding:"required"`
}

func (h *handlers) changeOrderState(c *gin.Context) {
	id, ok := parseOrderID(c)
	if !ok {
		abortJSON(c, http.StatusNotFound, "not found")
		return
	}
	var in stateRequest
	if err := c.ShouldBind(&in); err != nil {
		abortJSON(c, http.StatusBadRequest, "state is required")
		return
	}
	if _, err := h.Orders.Transition(c.Request.Context(), requester(c), id, in.State); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			h.redirectWithFlash(c, orderPath("/orders/detail/", id), "That state change is not allowed")
			return
		}
		h.writeError(c, err)
		return
	}
	h.redirectWithFlash(c, orderPath("/orders/detail/", id), "Order updated")
}

// trackOrder is public: the tracking number is the only credential.
func (h *handlers) trackOrder(c *gin.Context) {
	o, err := h.Orders.Track(c.Request.Context(), c.Param("trackingNumber"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":             o.ID,
		"state":          o.State,
		"deliveryType":   o.DeliveryType,
		"trackingNumber": o.TrackingNumber,
		"updatedAt":      o.UpdatedAt,
	})
}
