package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/Skotchmaster/marketplace/pkg/util"
	"github.com/Skotchmaster/marketplace/services/catalog/internal/service"
	"github.com/Skotchmaster/marketplace/services/catalog/internal/transport"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

type CatalogHTTP struct {
	Svc *service.CatalogService
}

func (h *CatalogHTTP) GetID(c echo.Context) (uuid.UUID, error) {
	s, ok := c.Get(middleware.CtxUserID).(string)
	if !ok || s == "" {
		return uuid.Nil, errors.New("unauthorized")
	}

	userID, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errors.New("unauthorized")
	}
	return userID, nil
}

func fail(c echo.Context, l *slog.Logger, event string, err error) error {
	status := errs.StatusCode(err)
	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "reason", "internal error", "error", err)
		return c.JSON(status, map[string]string{"error": "internal error"})
	}
	l.Warn(event, "status", status, "reason", errs.Class(err), "error", err)
	return c.JSON(status, map[string]string{"error": err.Error()})
}

func (h *CatalogHTTP) GetProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_product")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("get_product_failed", "status", 400, "reason", "invalid id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	product, err := h.Svc.GetProduct(ctx, id)
	if err != nil {
		return fail(c, l, "get_product_failed", err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) GetProducts(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.get_products")

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	res, err := h.Svc.GetProducts(ctx, c.QueryParam("category"), page, size)
	if err != nil {
		return fail(c, l, "get_products_error", err)
	}

	offset := (res.Page - 1) * res.Size
	return c.JSON(http.StatusOK, map[string]any{
		"data": res.Items,
		"meta": map[string]any{
			"page":        res.Page,
			"size":        res.Size,
			"total":       res.Total,
			"total_pages": (res.Total + int64(res.Size) - 1) / int64(res.Size),
			"has_prev":    res.Page > 1,
			"has_next":    int64(offset+res.Size) < res.Total,
		},
	})
}

func (h *CatalogHTTP) RegisterVendor(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "vendor.register")

	userID, err := h.GetID(c)
	if err != nil {
		l.Warn("register_vendor_error", "status", 401, "reason", "unauthorized", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.RegisterVendorRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("register_vendor_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	vendor, err := h.Svc.RegisterVendor(ctx, userID, req)
	if err != nil {
		return fail(c, l, "register_vendor_error", err)
	}

	l.Info("register_vendor_success", "vendor_id", vendor.ID)
	return c.JSON(http.StatusCreated, vendor)
}

func (h *CatalogHTTP) CreateProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.create_product")

	userID, err := h.GetID(c)
	if err != nil {
		l.Warn("product_create_error", "status", 401, "reason", "unauthorized", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.CreateProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("product_create_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	product, err := h.Svc.CreateProduct(ctx, userID, req)
	if err != nil {
		return fail(c, l, "product_create_error", err)
	}

	l.Info("product_create_success", "product_id", product.ID)
	return c.JSON(http.StatusCreated, product)
}

func (h *CatalogHTTP) PatchProduct(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "product.patch_product")

	userID, err := h.GetID(c)
	if err != nil {
		l.Warn("product_patch_error", "status", 401, "reason", "unauthorized", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("product_patch_error", "status", 400, "reason", "invalid id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req transport.PatchProductRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("product_patch_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	product, err := h.Svc.PatchProduct(ctx, userID, id, req)
	if err != nil {
		return fail(c, l, "product_patch_error", err)
	}
	return c.JSON(http.StatusOK, product)
}

func (h *CatalogHTTP) approve(c echo.Context, handler string, set func(uuid.UUID, bool) error) error {
	l := logging.FromContext(c.Request().Context()).With("handler", handler)

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("approve_error", "status", 400, "reason", "invalid id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	req := transport.ApproveRequest{}
	if err := c.Bind(&req); err != nil {
		l.Warn("approve_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}

	if err := set(id, approved); err != nil {
		return fail(c, l, "approve_error", err)
	}

	l.Info("approve_success", "id", id, "approved", approved)
	return c.JSON(http.StatusOK, map[string]any{"id": id, "approved": approved})
}

func (h *CatalogHTTP) ApproveProduct(c echo.Context) error {
	ctx := c.Request().Context()
	return h.approve(c, "admin.approve_product", func(id uuid.UUID, v bool) error {
		return h.Svc.ApproveProduct(ctx, id, v)
	})
}

func (h *CatalogHTTP) ApproveVendor(c echo.Context) error {
	ctx := c.Request().Context()
	return h.approve(c, "admin.approve_vendor", func(id uuid.UUID, v bool) error {
		return h.Svc.ApproveVendor(ctx, id, v)
	})
}
