package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/Skotchmaster/marketplace/services/cart/internal/repo"
	"github.com/Skotchmaster/marketplace/services/cart/internal/transport"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CartService struct {
	Repo *repo.GormRepo
}

// GetCart prices the cart against the live catalog. Lines whose product was
// withdrawn or unapproved are left out so the result can be submitted to
// checkout unchanged.
func (s *CartService) GetCart(ctx context.Context, userID uuid.UUID) (*transport.CartResponse, error) {
	items, err := s.Repo.GetCart(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: load cart: %v", errs.ErrInternal, err)
	}

	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Repo.GetProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load products: %v", errs.ErrInternal, err)
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	res := &transport.CartResponse{Items: []transport.CartLine{}, Total: decimal.Zero, Categories: []string{}}
	seen := map[string]struct{}{}
	for _, it := range items {
		p, ok := byID[it.ProductID]
		if !ok || !p.Approved {
			continue
		}
		line := p.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		res.Items = append(res.Items, transport.CartLine{
			ProductID: p.ID,
			Name:      p.Name,
			Category:  p.Category,
			Price:     p.Price,
			Quantity:  it.Quantity,
			LineTotal: line,
		})
		res.Total = res.Total.Add(line)

		key := strings.ToLower(p.Category)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			res.Categories = append(res.Categories, p.Category)
		}
	}
	sort.Strings(res.Categories)
	return res, nil
}

func (s *CartService) AddToCart(ctx context.Context, userID uuid.UUID, req transport.AddToCartRequest) (*models.CartItem, error) {
	if req.ProductID == uuid.Nil {
		return nil, fmt.Errorf("%w: product_id required", errs.ErrValidation)
	}
	if req.Quantity == 0 {
		return nil, fmt.Errorf("%w: quantity must be > 0", errs.ErrValidation)
	}

	if _, err := s.Repo.GetApprovedProduct(ctx, req.ProductID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s", errs.ErrNotFound, req.ProductID)
		}
		return nil, fmt.Errorf("%w: load product: %v", errs.ErrInternal, err)
	}

	item := &models.CartItem{UserID: userID, ProductID: req.ProductID, Quantity: req.Quantity}
	if err := s.Repo.AddToCart(ctx, item); err != nil {
		return nil, fmt.Errorf("%w: add to cart: %v", errs.ErrInternal, err)
	}
	return item, nil
}

func (s *CartService) DeleteOneFromCart(ctx context.Context, userID, productID uuid.UUID) (*transport.DeleteOneFromCartResponse, error) {
	if productID == uuid.Nil {
		return nil, fmt.Errorf("%w: product_id required", errs.ErrValidation)
	}

	deleted, item, err := s.Repo.DeleteOneFromCart(ctx, productID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product not in cart", errs.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: delete from cart: %v", errs.ErrInternal, err)
	}
	return &transport.DeleteOneFromCartResponse{ProductID: productID, Deleted: deleted, Quantity: item.Quantity}, nil
}

func (s *CartService) DeleteAllFromCart(ctx context.Context, userID uuid.UUID) error {
	if err := s.Repo.DeleteAllFromCart(ctx, userID); err != nil {
		return fmt.Errorf("%w: clear cart: %v", errs.ErrInternal, err)
	}
	return nil
}
