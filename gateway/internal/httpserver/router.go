package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/Skotchmaster/marketplace/gateway/internal/middleware"
	authmw "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/labstack/echo/v4"
)

const apiPrefix = "/api/v1"

type Deps struct {
	CatalogURL string
	CartURL    string
	OrderURL   string

	JWTSecret []byte
	Logger    *slog.Logger
}

// Register mounts the public API under /api/v1. Tokens are checked at the
// edge and forwarded untouched; every backend verifies them again.
func Register(e *echo.Echo, d *Deps) error {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, m := range middleware.Common(logger) {
		e.Use(m)
	}

	catalog, err := newUpstream("catalog", d.CatalogURL, apiPrefix)
	if err != nil {
		return err
	}
	cart, err := newUpstream("cart", d.CartURL, apiPrefix)
	if err != nil {
		return err
	}
	order, err := newUpstream("order", d.OrderURL, apiPrefix)
	if err != nil {
		return err
	}
	catalogProxy, cartProxy, orderProxy := catalog.handler(), cart.handler(), order.handler()

	auth := authmw.NewJWTMiddleware(d.JWTSecret)
	api := e.Group(apiPrefix)

	api.GET("/catalog/*", catalogProxy)
	api.POST("/checkout/eligibility", orderProxy)

	api.Any("/vendor", catalogProxy, auth.RequireAuth)
	api.Any("/vendor/*", catalogProxy, auth.RequireAuth)
	api.Any("/cart", cartProxy, auth.RequireAuth)
	api.Any("/cart/*", cartProxy, auth.RequireAuth)
	api.POST("/checkout", orderProxy, auth.RequireAuth)
	api.Any("/orders", orderProxy, auth.RequireAuth)
	api.Any("/orders/*", orderProxy, auth.RequireAuth)

	admin := api.Group("/admin", auth.RequireAdmin)
	admin.Any("/products/*", catalogProxy)
	admin.Any("/vendors/*", catalogProxy)
	admin.Any("/orders/*", orderProxy)

	return nil
}
