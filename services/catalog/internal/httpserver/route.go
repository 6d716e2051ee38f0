package httpserver

import (
	"context"
	"net/http"

	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/labstack/echo/v4"
)

type Deps struct {
	CatalogHandler *CatalogHTTP
	JWTSecret      []byte
	Ready          func(ctx context.Context) error
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

	authMW := middleware.NewJWTMiddleware(d.JWTSecret)

	products := e.Group("/catalog/products")
	products.GET("", d.CatalogHandler.GetProducts)
	products.GET("/:id", d.CatalogHandler.GetProduct)

	vendor := e.Group("/vendor", authMW.RequireAuth)
	vendor.POST("", d.CatalogHandler.RegisterVendor)
	vendor.POST("/products", d.CatalogHandler.CreateProduct)
	vendor.PATCH("/products/:id", d.CatalogHandler.PatchProduct)

	admin := e.Group("/admin", authMW.RequireAdmin)
	admin.PATCH("/products/:id/approve", d.CatalogHandler.ApproveProduct)
	admin.PATCH("/vendors/:id/approve", d.CatalogHandler.ApproveVendor)
}
