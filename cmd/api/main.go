package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"sevirun/internal/config"
	"sevirun/internal/db"
	"sevirun/internal/httpserver"
	"sevirun/internal/logging"
	"sevirun/internal/mail"
	"sevirun/internal/redsys"
	cartrepo "sevirun/internal/repository/cart"
	customerrepo "sevirun/internal/repository/customer"
	orderrepo "sevirun/internal/repository/order"
	productrepo "sevirun/internal/repository/product"
	tokenrepo "sevirun/internal/repository/token"
	anonymoussvc "sevirun/internal/service/anonymous"
	cartsvc "sevirun/internal/service/cart"
	customersvc "sevirun/internal/service/customer"
	ordersvc "sevirun/internal/service/order"
	productsvc "sevirun/internal/service/product"
)

func main() {
	cfg := config.Load()
	baseLogger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = baseLogger.Sync() }()
	logger := baseLogger.Named("api")

	ctx := context.Background()
	dbpool, err := db.Connect(ctx, cfg.DBConnString, logger)
	if err != nil {
		logger.Fatal("connect to db", zap.Error(err))
	}
	defer dbpool.Close()

	sessions, err := redsys.NewSessionBuilder(cfg.Redsys)
	if err != nil {
		logger.Fatal("init payment sessions", zap.Error(err))
	}
	verifier, err := redsys.NewVerifier(cfg.Redsys)
	if err != nil {
		logger.Fatal("init payment verifier", zap.Error(err))
	}

	var mailer mail.Sender
	if cfg.Mail.ResendAPIKey != "" {
		mailer = mail.NewResendSender(cfg.Mail.APIURL, cfg.Mail.ResendAPIKey, cfg.Mail.From, logger)
	} else {
		logger.Warn("RESEND_API_KEY not set: confirmation e-mails are only logged")
		mailer = mail.NewLogSender(logger)
	}

	tokenRepo := tokenrepo.NewPostgres(dbpool)
	productRepo := productrepo.NewPostgres(dbpool, logger)
	orderRepo := orderrepo.NewPostgres(dbpool, logger)
	customerService := customersvc.New(customerrepo.NewPostgres(dbpool, logger), tokenRepo, logger)
	anonymousService := anonymoussvc.New(tokenRepo, logger)
	cartService := cartsvc.New(cartsvc.Deps{
		Carts:             cartrepo.NewPostgres(dbpool, logger),
		Products:          productRepo,
		Orders:            orderRepo,
		DeliveryCostCents: cfg.DeliveryCostCents,
		Logger:            logger,
	})
	orderService := ordersvc.New(ordersvc.Deps{
		Orders:      orderRepo,
		Customers:   customerService,
		Mailer:      mailer,
		Sessions:    sessions,
		BaseURL:     cfg.PublicBaseURL,
		MailTimeout: cfg.Mail.Timeout,
		Logger:      logger,
	})

	srv, err := httpserver.New(cfg.HTTPAddr, logger, dbpool, httpserver.Deps{
		Customers:      customerService,
		Sessions:       anonymousService,
		Carts:          cartService,
		Orders:         orderService,
		Products:       productsvc.New(productRepo, logger),
		Verifier:       verifier,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		SecureCookies:  strings.HasPrefix(cfg.PublicBaseURL, "https://"),
	})
	if err != nil {
		logger.Fatal("init server", zap.Error(err))
	}

	if n, err := anonymousService.PurgeExpired(ctx); err != nil {
		logger.Warn("purge expired tokens", zap.Error(err))
	} else if n > 0 {
		logger.Info("purged expired tokens", zap.Int64("count", n))
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		logger.Error("server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logger.Info("server stopped")
	}
}
