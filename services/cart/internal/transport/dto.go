package transport

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AddToCartRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  uint      `json:"quantity"`
}

type DeleteOneFromCartRequest struct {
	ProductID uuid.UUID `json:"product_id"`
}

type DeleteOneFromCartResponse struct {
	ProductID uuid.UUID `json:"product_id"`
	Deleted   bool      `json:"deleted"`
	Quantity  uint      `json:"quantity"`
}

// CartLine mirrors a checkout item so a client can submit the cart as is.
type CartLine struct {
	ProductID uuid.UUID       `json:"product_id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	Price     decimal.Decimal `json:"price"`
	Quantity  uint            `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type CartResponse struct {
	Items      []CartLine      `json:"items"`
	Total      decimal.Decimal `json:"total"`
	Categories []string        `json:"categories"`
}
