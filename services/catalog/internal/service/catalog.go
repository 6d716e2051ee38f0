package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pkgdb "github.com/Skotchmaster/marketplace/pkg/db"
	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/Skotchmaster/marketplace/pkg/util"
	"github.com/Skotchmaster/marketplace/services/catalog/internal/repo"
	"github.com/Skotchmaster/marketplace/services/catalog/internal/transport"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CatalogService struct {
	Repo *repo.GormRepo
}

type ProductsPage struct {
	Items []models.Product
	Total int64
	Page  int
	Size  int
}

func (s *CatalogService) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.Repo.GetApprovedProduct(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "product")
	}
	return p, nil
}

func (s *CatalogService) GetProducts(ctx context.Context, category string, page, size int) (*ProductsPage, error) {
	offset, limit := util.Calculate(page, size)
	total, items, err := s.Repo.GetProducts(ctx, strings.TrimSpace(category), offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list products: %v", errs.ErrInternal, err)
	}
	if items == nil {
		items = []models.Product{}
	}
	return &ProductsPage{Items: items, Total: total, Page: offset/limit + 1, Size: limit}, nil
}

func (s *CatalogService) RegisterVendor(ctx context.Context, userID uuid.UUID, req transport.RegisterVendorRequest) (*models.Vendor, error) {
	name := strings.TrimSpace(req.StoreName)
	if name == "" {
		return nil, fmt.Errorf("%w: store_name required", errs.ErrValidation)
	}
	vendor := &models.Vendor{UserID: userID, StoreName: name}
	if err := s.Repo.CreateVendor(ctx, vendor); err != nil {
		if pkgdb.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: user already has a store", errs.ErrConflict)
		}
		return nil, fmt.Errorf("%w: create vendor: %v", errs.ErrInternal, err)
	}
	return vendor, nil
}

// approvedVendor fails with ErrVendorNotApproved when the user has no store
// or the store is still awaiting approval.
func (s *CatalogService) approvedVendor(ctx context.Context, userID uuid.UUID) (*models.Vendor, error) {
	vendor, err := s.Repo.GetVendorByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no vendor account", errs.ErrVendorNotApproved)
		}
		return nil, fmt.Errorf("%w: load vendor: %v", errs.ErrInternal, err)
	}
	if !vendor.Approved {
		return nil, fmt.Errorf("%w: vendor %s awaiting approval", errs.ErrVendorNotApproved, vendor.ID)
	}
	return vendor, nil
}

// CreateProduct lists a new product for the caller's store. Products start
// unapproved and stay invisible to checkout until an admin approves them.
func (s *CatalogService) CreateProduct(ctx context.Context, userID uuid.UUID, req transport.CreateProductRequest) (*models.Product, error) {
	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name required", errs.ErrValidation)
	case category == "":
		return nil, fmt.Errorf("%w: category required", errs.ErrValidation)
	case !req.Price.IsPositive():
		return nil, fmt.Errorf("%w: price must be > 0", errs.ErrValidation)
	case req.Stock < 0:
		return nil, fmt.Errorf("%w: stock must be >= 0", errs.ErrValidation)
	}

	vendor, err := s.approvedVendor(ctx, userID)
	if err != nil {
		return nil, err
	}

	product := &models.Product{
		VendorID:    vendor.ID,
		Name:        name,
		Description: req.Description,
		Category:    category,
		Price:       req.Price.Round(2),
		Stock:       req.Stock,
	}
	if err := s.Repo.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("%w: create product: %v", errs.ErrInternal, err)
	}
	return product, nil
}

func (s *CatalogService) PatchProduct(ctx context.Context, userID, id uuid.UUID, req transport.PatchProductRequest) (*models.Product, error) {
	updates := map[string]any{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, fmt.Errorf("%w: name must not be empty", errs.ErrValidation)
		}
		updates["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Price != nil {
		if !req.Price.IsPositive() {
			return nil, fmt.Errorf("%w: price must be > 0", errs.ErrValidation)
		}
		updates["price"] = req.Price.Round(2)
	}
	if req.Stock != nil {
		if *req.Stock < 0 {
			return nil, fmt.Errorf("%w: stock must be >= 0", errs.ErrValidation)
		}
		updates["stock"] = *req.Stock
	}

	vendor, err := s.approvedVendor(ctx, userID)
	if err != nil {
		return nil, err
	}

	p, err := s.Repo.PatchProduct(ctx, id, vendor.ID, updates)
	if err != nil {
		return nil, notFoundOr(err, "product")
	}
	return p, nil
}

func (s *CatalogService) ApproveProduct(ctx context.Context, id uuid.UUID, approved bool) error {
	if err := s.Repo.SetApproved(ctx, &models.Product{}, id, approved); err != nil {
		return notFoundOr(err, "product")
	}
	return nil
}

func (s *CatalogService) ApproveVendor(ctx context.Context, id uuid.UUID, approved bool) error {
	if err := s.Repo.SetApproved(ctx, &models.Vendor{}, id, approved); err != nil {
		return notFoundOr(err, "vendor")
	}
	return nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", errs.ErrNotFound, what)
	}
	return fmt.Errorf("%w: %s: %v", errs.ErrInternal, what, err)
}
