package httpserver

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/logging"
	customersvc "sevirun/internal/service/customer"
)

const (
	sessionCookie   = "sessionid"
	flashCookie     = "flash"
	requesterKey    = "requester"
	flashKey        = "flash"
	requestIDHeader = "X-Request-ID"
)

// requestLogger puts a request scoped logger on the context and logs completion.
func requestLogger(base *zap.Logger) gin.HandlerFunc {
	base = logging.OrNop(base)
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		logger := base.With(
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("remote_ip", c.ClientIP()),
		)
		c.Request = c.Request.WithContext(logging.WithLogger(c.Request.Context(), logger))

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.Int("bytes", c.Writer.Size()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request completed", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request completed", fields...)
		default:
			logger.Info("request completed", fields...)
		}
	}
}

// identify resolves the bearer token to an account and the session cookie to
// a guest identity. Guests without a valid cookie get a new session.
func (h *handlers) identify(c *gin.Context) {
	ctx := c.Request.Context()
	var r domain.Requester

	if token := bearerToken(c); token != "" {
		cust, err := h.Customers.LookupByToken(ctx, token)
		if err != nil {
			if errors.Is(err, customersvc.ErrInvalidToken) {
				abortJSON(c, http.StatusUnauthorized, "invalid token")
				return
			}
			h.internalError(c, "lookup customer token", err)
			return
		}
		r.CustomerID = cust.ID
		r.Email = cust.Email
		r.IsStaff = cust.IsStaff
	}

	if raw, err := c.Cookie(sessionCookie); err == nil && raw != "" {
		if sessionID, err := h.Sessions.LookupByToken(ctx, raw); err == nil {
			r.SessionID = sessionID
		}
	}
	if r.SessionID == "" && r.CustomerID == "" {
		token, sessionID, err := h.Sessions.Issue(ctx)
		if err != nil {
			h.internalError(c, "issue session", err)
			return
		}
		r.SessionID = sessionID
		h.setCookie(c, sessionCookie, token, h.Sessions.SessionTTLSeconds())
	}

	c.Set(requesterKey, r)
	c.Next()
}

// flash moves a one-shot message from its cookie into the request.
func (h *handlers) flash(c *gin.Context) {
	if raw, err := c.Cookie(flashCookie); err == nil && raw != "" {
		if msg, err := url.QueryUnescape(raw); err == nil {
			c.Set(flashKey, msg)
		}
		h.setCookie(c, flashCookie, "", -1)
	}
	c.Next()
}

func requester(c *gin.Context) domain.Requester {
	if v, ok := c.Get(requesterKey); ok {
		if r, ok := v.(domain.Requester); ok {
			return r
		}
	}
	return domain.Requester{}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

func (h *handlers) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", "", h.SecureCookies, true)
}

// redirectWithFlash is how business rule failures reach the storefront.
func (h *handlers) redirectWithFlash(c *gin.Context, location, message string) {
	if message != "" {
		h.setCookie(c, flashCookie, url.QueryEscape(message), 60)
	}
	c.Redirect(http.StatusSeeOther, location)
}
