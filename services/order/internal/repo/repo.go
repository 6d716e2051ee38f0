package repo

import (
	"context"
	"fmt"

	pkgmodels "github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/models"
	"gorm.io/gorm"
)

type GormRepo struct {
	DB *gorm.DB
}

// AutoMigrate creates the checkout tables along with the shared catalog
// tables the transaction writes to.
func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&pkgmodels.User{},
		&pkgmodels.Vendor{},
		&pkgmodels.Product{},
		&pkgmodels.CartItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.AppliedRule{},
	); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
