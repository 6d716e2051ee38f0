package repo

import (
	"context"

	"github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormRepo struct {
	DB *gorm.DB
}

func AutoMigrate(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).AutoMigrate(&models.User{}, &models.Vendor{}, &models.Product{})
}

func (r *GormRepo) GetApprovedProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).Where("id = ? AND approved = ?", id, true).First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *GormRepo) GetProducts(ctx context.Context, category string, offset, limit int) (int64, []models.Product, error) {
	scope := func(db *gorm.DB) *gorm.DB {
		db = db.Where("approved = ?", true)
		if category != "" {
			db = db.Where("LOWER(category) = LOWER(?)", category)
		}
		return db
	}

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Product{}).Scopes(scope).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	var items []models.Product
	if err := r.DB.WithContext(ctx).Scopes(scope).Order("name ASC").Order("id ASC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}

func (r *GormRepo) GetVendorByUser(ctx context.Context, userID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.DB.WithContext(ctx).Where("user_id = ?", userID).First(&vendor).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *GormRepo) CreateVendor(ctx context.Context, vendor *models.Vendor) error {
	return r.DB.WithContext(ctx).Create(vendor).Error
}

func (r *GormRepo) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.DB.WithContext(ctx).Create(product).Error
}

// PatchProduct only touches products owned by vendorID.
func (r *GormRepo) PatchProduct(ctx context.Context, id, vendorID uuid.UUID, updates map[string]any) (*models.Product, error) {
	var product models.Product
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND vendor_id = ?", id, vendorID).First(&product).Error; err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&product).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).First(&product).Error
	})
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// SetApproved reports gorm.ErrRecordNotFound when no row matched.
func (r *GormRepo) SetApproved(ctx context.Context, model any, id uuid.UUID, approved bool) error {
	res := r.DB.WithContext(ctx).Model(model).Where("id = ?", id).Update("approved", approved)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
