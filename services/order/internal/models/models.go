package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "PENDING"
	StatusProcessing OrderStatus = "PROCESSING"
	StatusShipped    OrderStatus = "SHIPPED"
	StatusDelivered  OrderStatus = "DELIVERED"
	StatusCancelled  OrderStatus = "CANCELLED"
	StatusRefunded   OrderStatus = "REFUNDED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true, StatusRefunded: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true, StatusRefunded: true},
	StatusShipped:    {StatusDelivered: true, StatusRefunded: true},
	StatusDelivered:  {StatusRefunded: true},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

const PaymentPending = "PENDING"

// Order.IdempotencyKey is the client key the order was submitted under; it is
// unique per user and null for submissions without one.
type Order struct {
	ID              uuid.UUID       `gorm:"primaryKey"                         json:"id"`
	UserID          uuid.UUID       `gorm:"index;uniqueIndex:idx_orders_user_idem;not null" json:"user_id"`
	OrderNumber     string          `gorm:"uniqueIndex;size:32;not null"       json:"order_number"`
	Total           decimal.Decimal `gorm:"type:numeric(12,2);not null"        json:"total"`
	ShippingAddress string          `gorm:"not null"                           json:"shipping_address"`
	Status          OrderStatus     `gorm:"index;not null;default:PENDING"     json:"status"`
	PaymentMethod   *string         `                                          json:"payment_method"`
	IdempotencyKey  *string         `gorm:"uniqueIndex:idx_orders_user_idem;size:128" json:"-"`
	CreatedAt       time.Time       `                                          json:"created_at"`
	UpdatedAt       time.Time       `                                          json:"updated_at"`

	Items        []OrderItem   `json:"items,omitempty"`
	Payment      *Payment      `json:"payment,omitempty"`
	AppliedRules []AppliedRule `json:"applied_rules,omitempty"`
}

// OrderItem.Price is copied from the catalog when the order is created.
type OrderItem struct {
	ID        uuid.UUID       `gorm:"primaryKey"                    json:"id"`
	OrderID   uuid.UUID       `gorm:"index;not null"                json:"order_id"`
	ProductID uuid.UUID       `gorm:"index;not null"                json:"product_id"`
	Quantity  int             `gorm:"not null;check:quantity > 0"   json:"quantity"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"   json:"price"`
}

type Payment struct {
	ID            uuid.UUID       `gorm:"primaryKey"                    json:"id"`
	OrderID       uuid.UUID       `gorm:"uniqueIndex;not null"          json:"order_id"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null"   json:"amount"`
	Status        string          `gorm:"not null"                      json:"status"`
	Method        string          `gorm:"not null"                      json:"method"`
	AdvanceParams *string         `gorm:"type:text"                     json:"advance_params,omitempty"`
	CreatedAt     time.Time       `                                     json:"created_at"`
}

type AppliedRule struct {
	ID       uuid.UUID `gorm:"primaryKey"     json:"-"`
	OrderID  uuid.UUID `gorm:"index;not null" json:"-"`
	Position int       `gorm:"not null"       json:"-"`
	RuleID   string    `gorm:"not null"       json:"rule_id"`
	Kind     string    `gorm:"not null"       json:"kind"`
	Method   string    `gorm:"not null"       json:"method"`
	Effect   string    `gorm:"not null"       json:"effect"`
}

func (AppliedRule) TableName() string {
	return "order_applied_rules"
}

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (r *AppliedRule) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
