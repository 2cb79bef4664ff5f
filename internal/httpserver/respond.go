package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
	cartsvc "sevirun/internal/service/cart"
	customersvc "sevirun/internal/service/customer"
	ordersvc "sevirun/internal/service/order"
)

func abortJSON(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

func (h *handlers) internalError(c *gin.Context, msg string, err error) {
	logging.FromContext(c.Request.Context(), h.logger).Error(msg, zap.Error(err))
	abortJSON(c, http.StatusInternalServerError, "internal error")
}

// writeError maps service errors onto JSON responses.
func (h *handlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		abortJSON(c, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, domain.ErrStaffOnly),
		errors.Is(err, domain.ErrCustomerOnly):
		abortJSON(c, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		abortJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, customersvc.ErrInvalidCredentials),
		errors.Is(err, customersvc.ErrInvalidToken):
		abortJSON(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrOrderNotPending),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInsufficientStock):
		abortJSON(c, http.StatusConflict, err.Error())
	case isValidation(err):
		abortJSON(c, http.StatusBadRequest, err.Error())
	default:
		h.internalError(c, "request failed", err)
	}
}

func isValidation(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidOwner,
		domain.ErrInvalidQuantity,
		domain.ErrEmptyCart,
		domain.ErrIncompleteOrder,
		domain.ErrInvalidPayment,
		cartsvc.ErrActionsRequired,
		cartsvc.ErrUnsupportedAction,
		cartsvc.ErrProductNotFound,
		cartsvc.ErrVariantRequired,
		cartsvc.ErrLineItemRequired,
		cartsvc.ErrUnknownVariant,
		customersvc.ErrInvalidEmail,
		customersvc.ErrInvalidSignup,
		ordersvc.ErrInvalidPhone,
		ordersvc.ErrInvalidEmail,
		ordersvc.ErrAddressRequired,
		ordersvc.ErrInvalidDeliveryType,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseOrderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("orderID"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// page renders a storefront data context, attaching any pending flash message.
func page(c *gin.Context, status int, body gin.H) {
	if msg, ok := c.Get(flashKey); ok {
		body["flash"] = msg
	}
	c.JSON(status, body)
}

type orderView struct {
	domain.Order
	Totals      domain.OrderTotals `json:"totals"`
	TrackingURL string             `json:"trackingUrl,omitempty"`
}

func (h *handlers) viewOrder(o domain.Order) orderView {
	v := orderView{Order: o, Totals: o.Totals()}
	if o.TrackingNumber != nil {
		v.TrackingURL = h.Orders.TrackingURL(*o.TrackingNumber)
	}
	return v
}

func (h *handlers) viewOrders(orders []domain.Order) []orderView {
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, h.viewOrder(o))
	}
	return out
}

type cartView struct {
	domain.Cart
	Subtotal   decimal.Decimal `json:"subtotal"`
	TotalUnits int             `json:"totalUnits"`
}

func viewCart(cart domain.Cart) cartView {
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	return cartView{Cart: cart, Subtotal: cart.Subtotal(), TotalUnits: cart.TotalUnits()}
}
