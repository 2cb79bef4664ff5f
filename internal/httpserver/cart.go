package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sevirun/internal/domain"
	cartsvc "sevirun/internal/service/cart"
)

func (h *handlers) getCart(c *gin.Context) {
	cart, err := h.Carts.Get(c.Request.Context(), requester(c).Owner())
	if err != nil {
		h.writeError(c, err)
		return
	}
	page(c, http.StatusOK, gin.H{"cart": viewCart(*cart)})
}

func (h *handlers) updateCart(c *gin.Context) {
	var in cartsvc.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid body")
		return
	}
	cart, err := h.Carts.Update(c.Request.Context(), requester(c).Owner(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cart": viewCart(*cart)})
}

// checkout turns the cart into a pending order and sends the buyer to the
// order info step.
func (h *handlers) checkout(c *gin.Context) {
	order, err := h.Carts.Checkout(c.Request.Context(), requester(c).Owner())
	if err != nil {
		if errors.Is(err, domain.ErrEmptyCart) {
			h.redirectWithFlash(c, "/cart", "Your cart is empty")
			return
		}
		h.writeError(c, err)
		return
	}
	c.Redirect(http.StatusSeeOther, "/cart/info/"+strconv.FormatInt(order.ID, 10))
}
