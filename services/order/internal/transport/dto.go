package transport

import (
	"github.com/Skotchmaster/marketplace/services/order/internal/eligibility"
	"github.com/Skotchmaster/marketplace/services/order/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CheckoutItem struct {
	ProductID uuid.UUID       `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

// CheckoutRequest is submitted by an authenticated user; the user id comes
// from the access token, never from the body.
type CheckoutRequest struct {
	Total                     decimal.Decimal                 `json:"total"`
	ShippingAddress           string                          `json:"shipping_address"`
	Items                     []CheckoutItem                  `json:"items"`
	PaymentMethod             *string                         `json:"payment_method,omitempty"`
	AdvancePaymentRequirement *eligibility.AdvanceRequirement `json:"advance_payment_requirement,omitempty"`
}

type CheckoutResponse struct {
	OrderID             uuid.UUID            `json:"order_id"`
	OrderNumber         string               `json:"order_number"`
	Total               decimal.Decimal      `json:"total"`
	Status              models.OrderStatus   `json:"status"`
	PaymentMethod       *string              `json:"payment_method"`
	ItemCount           int                  `json:"item_count"`
	AppliedPaymentRules []models.AppliedRule `json:"applied_payment_rules"`
}

func NewCheckoutResponse(o *models.Order) CheckoutResponse {
	rules := o.AppliedRules
	if rules == nil {
		rules = []models.AppliedRule{}
	}
	return CheckoutResponse{
		OrderID:             o.ID,
		OrderNumber:         o.OrderNumber,
		Total:               o.Total,
		Status:              o.Status,
		PaymentMethod:       o.PaymentMethod,
		ItemCount:           len(o.Items),
		AppliedPaymentRules: rules,
	}
}

type EligibilityRequest struct {
	OrderTotal decimal.Decimal `json:"order_total"`
	Categories []string        `json:"categories"`
}

type UpdateStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

type OrdersPage struct {
	Items []models.Order `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

type ErrorResponse struct {
	Error        string                    `json:"error"`
	AppliedRules []eligibility.AppliedRule `json:"applied_rules,omitempty"`
	ProductID    *uuid.UUID                `json:"product_id,omitempty"`
}
