package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"

	"sevirun/internal/logging"
	"sevirun/internal/redsys"
)

// paymentNotification is the gateway's server to server callback. It answers
// "OK" once the notification has been consumed and 400 with a short reason
// otherwise, so the gateway retries only what was not consumed.
func (h *handlers) paymentNotification(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.FromContext(ctx, h.logger).With(zap.String("order_id", c.Param("orderID")))

	var req redsys.NotificationRequest
	if c.Request.Method == http.MethodPost {
		if err := c.ShouldBindWith(&req, binding.Form); err != nil {
			c.String(http.StatusBadRequest, "malformed parameters")
			return
		}
	}
	req.Method = c.Request.Method

	n, err := h.Verifier.Verify(req)
	if err != nil {
		if errors.Is(err, redsys.ErrInvalidSignature) {
			logger.Warn("payment notification signature mismatch: possible forgery",
				zap.String("order_reference", orderReference(req)),
				zap.String("remote_ip", c.ClientIP()),
			)
		} else {
			logger.Info("payment notification rejected", zap.Error(err))
		}
		c.String(http.StatusBadRequest, notificationRejection(err))
		return
	}

	id, err := strconv.ParseInt(c.Param("orderID"), 10, 64)
	if err != nil {
		logger.Warn("payment notification for unparseable order id", zap.String("order_reference", n.OrderReference))
		c.String(http.StatusOK, "OK")
		return
	}
	if err := h.Orders.ConfirmCardPayment(ctx, id, n); err != nil {
		logger.Error("confirm card payment", zap.String("order_reference", n.OrderReference), zap.Error(err))
		c.String(http.StatusBadRequest, "Invalid")
		return
	}
	c.String(http.StatusOK, "OK")
}

func notificationRejection(err error) string {
	switch {
	case errors.Is(err, redsys.ErrMissingParameters):
		return "missing parameters"
	case errors.Is(err, redsys.ErrMalformedParameters):
		return "malformed parameters"
	case errors.Is(err, redsys.ErrMissingOrderReference):
		return "no order reference"
	case errors.Is(err, redsys.ErrInvalidSignature):
		return "invalid signature"
	default:
		return "Invalid"
	}
}

// orderReference extracts the processor reference for logging only.
func orderReference(req redsys.NotificationRequest) string {
	ref, _ := redsys.PeekOrderReference(req.MerchantParameters)
	return ref
}
