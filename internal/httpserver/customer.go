package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
	customersvc "sevirun/internal/service/customer"
)

type loginRequest struct {
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

type loginResponse struct {
	Customer     *domain.Customer `json:"customer"`
	AccessToken  string           `json:"accessToken"`
	RefreshToken string           `json:"refreshToken"`
	ExpiresIn    int              `json:"expiresIn"`
	TokenType    string           `json:"tokenType"`
}

func (h *handlers) signup(c *gin.Context) {
	var in customersvc.SignupInput
	if err := c.ShouldBindJSON(&in); err != nil {
		abortJSON(c, http.StatusBadRequest, "invalid body")
		return
	}
	cust, err := h.Customers.Signup(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"customer": cust})
}

// login issues tokens and moves the guest cart of the current session onto
// the account when the account has none.
func (h *handlers) login(c *gin.Context) {
	var in loginRequest
	if err := c.ShouldBind(&in); err != nil {
		abortJSON(c, http.StatusBadRequest, "email and password are required")
		return
	}
	ctx := c.Request.Context()
	cust, access, refresh, err := h.Customers.Login(ctx, in.Email, in.Password)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if r := requester(c); r.SessionID != "" {
		if err := h.Carts.AdoptGuestCart(ctx, r.SessionID, cust.ID); err != nil {
			logging.FromContext(ctx, h.logger).Warn("adopt guest cart", zap.String("customer_id", cust.ID), zap.Error(err))
		}
	}
	c.JSON(http.StatusOK, loginResponse{
		Customer:     cust,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    h.Customers.AccessTTLSeconds(),
		TokenType:    "Bearer",
	})
}

func (h *handlers) logout(c *gin.Context) {
	if token := bearerToken(c); token != "" {
		if err := h.Customers.Logout(c.Request.Context(), token); err != nil {
			h.writeError(c, err)
			return
		}
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) me(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		abortJSON(c, http.StatusUnauthorized, "missing bearer token")
		return
	}
	cust, err := h.Customers.LookupByToken(c.Request.Context(), token)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": cust})
}
