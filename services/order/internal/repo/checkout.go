package repo

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	pkgmodels "github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockShortageError is returned from CreateOrder when the guarded decrement
// matched no row, meaning another checkout took the stock first.
type StockShortageError struct {
	ProductID uuid.UUID
	Requested int
}

func (e *StockShortageError) Error() string {
	return fmt.Sprintf("stock shortage for product %s (requested %d)", e.ProductID, e.Requested)
}

type StockDecrement struct {
	ProductID uuid.UUID
	Quantity  int
}

// NewOrder is everything written by one checkout. Order.Items are created
// with the order; Payment is optional.
type NewOrder struct {
	Order      *models.Order
	Payment    *models.Payment
	Rules      []models.AppliedRule
	Decrements []StockDecrement
}

func (r *GormRepo) GetUser(ctx context.Context, id uuid.UUID) (*pkgmodels.User, error) {
	var user pkgmodels.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetApprovedProducts returns only approved products; missing or unapproved
// ids are silently absent from the result.
func (r *GormRepo) GetApprovedProducts(ctx context.Context, ids []uuid.UUID) ([]pkgmodels.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []pkgmodels.Product
	if err := r.DB.WithContext(ctx).
		Where("id IN ? AND approved = ?", ids, true).
		Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *GormRepo) GetProductStock(ctx context.Context, id uuid.UUID) (int, error) {
	var stock int
	err := r.DB.WithContext(ctx).
		Model(&pkgmodels.Product{}).
		Where("id = ?", id).
		Select("stock").
		Scan(&stock).Error
	return stock, err
}

// CreateOrder writes the order graph, decrements stock and clears the
// purchased cart rows in one transaction.
func (r *GormRepo) CreateOrder(ctx context.Context, in *NewOrder) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order := in.Order
		if err := tx.Omit("Payment", "AppliedRules").Create(order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		if in.Payment != nil {
			in.Payment.OrderID = order.ID
			if err := tx.Create(in.Payment).Error; err != nil {
				return fmt.Errorf("create payment: %w", err)
			}
		}

		if len(in.Rules) > 0 {
			for i := range in.Rules {
				in.Rules[i].OrderID = order.ID
				in.Rules[i].Position = i
			}
			if err := tx.Create(&in.Rules).Error; err != nil {
				return fmt.Errorf("create applied rules: %w", err)
			}
		}

		// fixed row order keeps concurrent checkouts from deadlocking on postgres
		decs := append([]StockDecrement(nil), in.Decrements...)
		sort.Slice(decs, func(i, j int) bool {
			return bytes.Compare(decs[i].ProductID[:], decs[j].ProductID[:]) < 0
		})

		productIDs := make([]uuid.UUID, 0, len(decs))
		for _, d := range decs {
			res := tx.Model(&pkgmodels.Product{}).
				Where("id = ? AND stock >= ?", d.ProductID, d.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", d.Quantity))
			if res.Error != nil {
				return fmt.Errorf("decrement stock: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return &StockShortageError{ProductID: d.ProductID, Requested: d.Quantity}
			}
			productIDs = append(productIDs, d.ProductID)
		}

		if err := tx.
			Where("user_id = ? AND product_id IN ?", order.UserID, productIDs).
			Delete(&pkgmodels.CartItem{}).Error; err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		order.Payment = in.Payment
		order.AppliedRules = in.Rules
		return nil
	})
}
