package httpserver

import (
	"context"
	"net/http"

	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	OrderHandler *OrderHTTP
	JWTSecret    []byte
	Metrics      http.Handler
	Ready        func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return c.NoContent(http.StatusServiceUnavailable)
			}
		}
		return c.NoContent(http.StatusOK)
	})
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics))
	}

	authMW := middleware.NewJWTMiddleware(d.JWTSecret)

	e.POST("/checkout", d.OrderHandler.SubmitOrder, authMW.RequireAuth)
	e.POST("/checkout/eligibility", d.OrderHandler.PreviewEligibility, authMW.OptionalAuth)

	orders := e.Group("/orders", authMW.RequireAuth)
	orders.GET("", d.OrderHandler.ListOrders)
	orders.GET("/:id", d.OrderHandler.GetOrder)

	admin := e.Group("/admin", authMW.RequireAdmin)
	admin.PATCH("/orders/:id/status", d.OrderHandler.UpdateStatus)
}
