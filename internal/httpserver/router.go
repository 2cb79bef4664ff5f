package httpserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sevirun/internal/domain"
	"sevirun/internal/redsys"
	cartsvc "sevirun/internal/service/cart"
	customersvc "sevirun/internal/service/customer"
	ordersvc "sevirun/internal/service/order"
	productsvc "sevirun/internal/service/product"
)

type customerService interface {
	Signup(ctx context.Context, in customersvc.SignupInput) (*domain.Customer, error)
	Login(ctx context.Context, email, password string) (*domain.Customer, string, string, error)
	Logout(ctx context.Context, token string) error
	LookupByToken(ctx context.Context, token string) (*domain.Customer, error)
	AccessTTLSeconds() int
}

type sessionService interface {
	Issue(ctx context.Context) (token, anonymousID string, err error)
	LookupByToken(ctx context.Context, token string) (string, error)
	SessionTTLSeconds() int
}

type cartService interface {
	Get(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	Update(ctx context.Context, owner domain.Owner, in cartsvc.UpdateInput) (*domain.Cart, error)
	AdoptGuestCart(ctx context.Context, sessionID, customerID string) error
	Checkout(ctx context.Context, owner domain.Owner) (*domain.Order, error)
}

type orderService interface {
	GetForRequester(ctx context.Context, r domain.Requester, id int64) (*domain.Order, error)
	UpdateInfo(ctx context.Context, r domain.Requester, id int64, in ordersvc.InfoInput) (*domain.Order, error)
	PayCashOnDelivery(ctx context.Context, r domain.Requester, id int64) (*domain.Order, error)
	StartCardPayment(ctx context.Context, r domain.Requester, id int64) (redsys.Session, error)
	ConfirmCardPayment(ctx context.Context, id int64, n redsys.Notification) error
	Transition(ctx context.Context, r domain.Requester, id int64, state string) (*domain.Order, error)
	Track(ctx context.Context, trackingNumber string) (*domain.Order, error)
	List(ctx context.Context, r domain.Requester) ([]domain.Order, error)
	ListSales(ctx context.Context, r domain.Requester) ([]domain.Order, error)
	TrackingURL(trackingNumber string) string
}

type catalogue interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id string) (*productsvc.Detail, error)
}

type notificationVerifier interface {
	Verify(req redsys.NotificationRequest) (redsys.Notification, error)
}

// Deps groups the services the router dispatches to.
type Deps struct {
	Customers customerService
	Sessions  sessionService
	Carts     cartService
	Orders    orderService
	Products  catalogue
	Verifier  notificationVerifier
	// AllowedOrigins lists the storefront origins allowed by CORS. Empty disables CORS.
	AllowedOrigins []string
	// SecureCookies marks session and flash cookies as Secure.
	SecureCookies bool
}

func (d Deps) validate() error {
	var missing []string
	if d.Customers == nil {
		missing = append(missing, "customers")
	}
	if d.Sessions == nil {
		missing = append(missing, "sessions")
	}
	if d.Carts == nil {
		missing = append(missing, "carts")
	}
	if d.Orders == nil {
		missing = append(missing, "orders")
	}
	if d.Products == nil {
		missing = append(missing, "products")
	}
	if d.Verifier == nil {
		missing = append(missing, "verifier")
	}
	if len(missing) > 0 {
		return errors.New("httpserver: missing dependencies: " + strings.Join(missing, ", "))
	}
	return nil
}

type handlers struct {
	Deps
	logger *zap.Logger
}

// buildRouter wires routes for the storefront.
func buildRouter(logger *zap.Logger, db *pgxpool.Pool, deps Deps) (*gin.Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestLogger(logger), gin.Recovery())
	if len(deps.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     deps.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	h := &handlers{Deps: deps, logger: logger}

	router.GET("/healthz", healthHandler)
	router.GET("/readyz", readyHandler(db))

	// The gateway calls back without cookies or tokens.
	router.Any("/cart/pay/notification/:orderID/", h.paymentNotification)
	router.GET("/orders/tracking/:trackingNumber", h.trackOrder)

	store := router.Group("/", h.identify, h.flash)
	store.POST("/signup", h.signup)
	store.POST("/login", h.login)
	store.POST("/logout", h.logout)
	store.GET("/me", h.me)

	store.GET("/products", h.listProducts)
	store.GET("/products/:productID", h.getProduct)

	store.GET("/cart", h.getCart)
	store.POST("/cart", h.updateCart)
	store.POST("/cart/checkout", h.checkout)
	store.GET("/cart/info/:orderID", h.orderInfo)
	store.POST("/cart/info/:orderID", h.updateOrderInfo)
	store.GET("/cart/pay/method/:orderID", h.paymentMethod)
	store.POST("/cart/pay/method/:orderID", h.selectPaymentMethod)
	store.GET("/cart/pay/ok/:orderID", h.paymentResult(true))
	store.GET("/cart/pay/ko/:orderID", h.paymentResult(false))

	store.GET("/orders", h.listOrders)
	store.GET("/orders/sales", h.listSales)
	store.GET("/orders/detail/:orderID", h.orderDetail)
	store.POST("/orders/detail/:orderID/state", h.changeOrderState)

	return router, nil
}
