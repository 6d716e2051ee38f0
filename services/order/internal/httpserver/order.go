package httpserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	middleware "github.com/Skotchmaster/marketplace/pkg/middleware/auth"
	"github.com/Skotchmaster/marketplace/pkg/util"
	"github.com/Skotchmaster/marketplace/services/order/internal/idempotency"
	"github.com/Skotchmaster/marketplace/services/order/internal/service"
	"github.com/Skotchmaster/marketplace/services/order/internal/transport"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrderHTTP struct {
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	// Idempotency is optional.
	Idempotency idempotency.Store
}

func (h *OrderHTTP) GetID(c echo.Context) (uuid.UUID, error) {
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

func role(c echo.Context) string {
	r, _ := c.Get(middleware.CtxRole).(string)
	return r
}

// fail renders a service error. Internal details stay in the log.
func fail(c echo.Context, l *slog.Logger, event string, err error) error {
	status := errs.StatusCode(err)
	body := transport.ErrorResponse{Error: err.Error()}

	var rejected *service.EligibilityRejectedError
	if errors.As(err, &rejected) {
		body.AppliedRules = rejected.Rules
	}
	var stock *service.InsufficientStockError
	if errors.As(err, &stock) {
		id := stock.ProductID
		body.ProductID = &id
	}

	if status >= http.StatusInternalServerError {
		l.Error(event, "status", status, "reason", "internal error", "error", err)
		body = transport.ErrorResponse{Error: "internal error"}
	} else {
		l.Warn(event, "status", status, "reason", errs.Class(err), "error", err)
	}
	return c.JSON(status, body)
}

func (h *OrderHTTP) SubmitOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.submit_order")

	userID, err := h.GetID(c)
	if err != nil {
		l.Warn("submit_order_error", "status", 401, "reason", "unauthorized", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var req transport.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("submit_order_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	// the store is a fast path; the orders table is what guarantees one
	// order per key
	key := c.Request().Header.Get(HeaderIdempotencyKey)
	if key != "" && h.Idempotency != nil {
		orderID, found, err := h.Idempotency.Lookup(ctx, userID, key)
		switch {
		case err != nil:
			l.Warn("idempotency_lookup_error", "error", err)
		case found:
			order, err := h.Orders.GetOrder(ctx, orderID, userID, false)
			if err != nil {
				return fail(c, l, "submit_order_error", err)
			}
			l.Info("submit_order_replayed", "order_id", orderID)
			return c.JSON(http.StatusOK, transport.NewCheckoutResponse(order))
		}
	}

	order, replayed, err := h.Checkout.SubmitIdempotent(ctx, userID, key, req)
	if err != nil {
		return fail(c, l, "submit_order_error", err)
	}

	if key != "" && h.Idempotency != nil {
		if err := h.Idempotency.Remember(ctx, userID, key, order.ID); err != nil {
			l.Warn("idempotency_store_error", "order_id", order.ID, "error", err)
		}
	}

	if replayed {
		l.Info("submit_order_replayed", "order_id", order.ID)
		return c.JSON(http.StatusOK, transport.NewCheckoutResponse(order))
	}

	l.Info("submit_order_success", "order_id", order.ID, "order_number", order.OrderNumber)
	return c.JSON(http.StatusCreated, transport.NewCheckoutResponse(order))
}

func (h *OrderHTTP) PreviewEligibility(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.preview_eligibility")

	var req transport.EligibilityRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("preview_eligibility_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	userID, err := h.GetID(c)
	authenticated := err == nil
	var subject string
	if authenticated {
		subject = userID.String()
	}

	result, err := h.Checkout.Preview(ctx, req, subject, role(c), authenticated)
	if err != nil {
		return fail(c, l, "preview_eligibility_error", err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *OrderHTTP) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.list_orders")

	userID, err := h.GetID(c)
	if err != nil {
		l.Warn("list_orders_error", "status", 401, "reason", "unauthorized", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	page := util.ParseIntDefault(c.QueryParam("page"), 1)
	size := util.ParseIntDefault(c.QueryParam("size"), util.DefaultPageSize)

	orders, err := h.Orders.ListOrders(ctx, userID, page, size)
	if err != nil {
		return fail(c, l, "list_orders_error", err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHTTP) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.get_order")

	userID, err := h.GetID(c)
	if err != nil {
		l.Warn("get_order_error", "status", 401, "reason", "unauthorized", "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("get_order_error", "status", 400, "reason", "invalid id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	order, err := h.Orders.GetOrder(ctx, id, userID, role(c) == middleware.RoleAdmin)
	if err != nil {
		return fail(c, l, "get_order_error", err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *OrderHTTP) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "order.update_status")

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		l.Warn("update_status_error", "status", 400, "reason", "invalid id", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var req transport.UpdateStatusRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("update_status_error", "status", 400, "reason", "invalid body", "error", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	order, err := h.Orders.UpdateStatus(ctx, id, req.Status)
	if err != nil {
		return fail(c, l, "update_status_error", err)
	}

	l.Info("update_status_success", "order_id", id, "status", order.Status)
	return c.JSON(http.StatusOK, order)
}
