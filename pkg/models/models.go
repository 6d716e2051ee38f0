package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	RoleUser   = "user"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)

type User struct {
	ID        uuid.UUID `gorm:"primaryKey"               json:"id"`
	Name      string    `gorm:"not null"                 json:"name"`
	Email     string    `gorm:"uniqueIndex;not null"     json:"email"`
	Role      string    `gorm:"not null;default:user"    json:"role"`
	CreatedAt time.Time `                                json:"created_at"`
}

type Vendor struct {
	ID        uuid.UUID `gorm:"primaryKey"                json:"id"`
	UserID    uuid.UUID `gorm:"uniqueIndex;not null"      json:"user_id"`
	StoreName string    `gorm:"not null"                  json:"store_name"`
	Approved  bool      `gorm:"not null;default:false"    json:"approved"`
	CreatedAt time.Time `                                 json:"created_at"`
}

// Product.Stock is the only catalog column the checkout core writes.
type Product struct {
	ID          uuid.UUID       `gorm:"primaryKey"                          json:"id"`
	VendorID    uuid.UUID       `gorm:"index;not null"                      json:"vendor_id"`
	Name        string          `gorm:"not null"                            json:"name"`
	Description string          `                                           json:"description"`
	Category    string          `gorm:"index;not null"                      json:"category"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null"         json:"price"`
	Stock       int             `gorm:"not null;default:0;check:stock >= 0" json:"stock"`
	Approved    bool            `gorm:"not null;default:false"              json:"approved"`
	CreatedAt   time.Time       `                                           json:"created_at"`
	UpdatedAt   time.Time       `                                           json:"updated_at"`
}

type CartItem struct {
	ID        uuid.UUID `gorm:"primaryKey"                             json:"id"`
	UserID    uuid.UUID `gorm:"uniqueIndex:idx_user_product;not null" json:"user_id"`
	ProductID uuid.UUID `gorm:"uniqueIndex:idx_user_product;not null" json:"product_id"`
	Quantity  uint      `gorm:"default:1;check:quantity > 0"          json:"quantity"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (v *Vendor) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (c *CartItem) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (CartItem) TableName() string {
	return "cart_items"
}
