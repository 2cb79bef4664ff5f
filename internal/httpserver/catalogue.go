package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *handlers) listProducts(c *gin.Context) {
	products, err := h.Products.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	page(c, http.StatusOK, gin.H{"results": products, "count": len(products)})
}

func (h *handlers) getProduct(c *gin.Context) {
	detail, err := h.Products.Get(c.Request.Context(), c.Param("productID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	page(c, http.StatusOK, gin.H{"product": detail.Product, "stock": detail.Stock, "inStock": detail.InStock})
}
