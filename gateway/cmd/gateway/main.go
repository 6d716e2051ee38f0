package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	gatewaycfg "github.com/Skotchmaster/marketplace/gateway/internal/config"
	"github.com/Skotchmaster/marketplace/gateway/internal/httpserver"
	"github.com/Skotchmaster/marketplace/pkg/logging"
)

func main() {
	cfg := gatewaycfg.Load()

	logger := logging.New(cfg.LogLevel).With("service", "gateway")
	slog.SetDefault(logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if err := httpserver.Register(e, &httpserver.Deps{
		CatalogURL: cfg.CatalogURL,
		CartURL:    cfg.CartURL,
		OrderURL:   cfg.OrderURL,
		JWTSecret:  cfg.JWTSecret,
		Logger:     logger,
	}); err != nil {
		logger.Error("gateway_init_error", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           e,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 3 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway_listening",
			"addr", srv.Addr,
			"catalog", cfg.CatalogURL,
			"cart", cfg.CartURL,
			"order", cfg.OrderURL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("gateway_listen_error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("gateway_shutdown_error", "error", err)
	}
	logger.Info("gateway_stopped")
}
