package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/pkg/util"
	"github.com/Skotchmaster/marketplace/services/order/internal/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/repo"
	"github.com/Skotchmaster/marketplace/services/order/internal/transport"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type OrderService struct {
	Repo *repo.GormRepo
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, page, size int) (*transport.OrdersPage, error) {
	offset, limit := util.Calculate(page, size)
	total, orders, err := s.Repo.ListOrders(ctx, userID, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list orders: %v", errs.ErrInternal, err)
	}
	if orders == nil {
		orders = []models.Order{}
	}
	return &transport.OrdersPage{
		Items: orders,
		Total: total,
		Page:  offset/limit + 1,
		Size:  limit,
	}, nil
}

// GetOrder hides other users' orders behind NotFound unless the caller is an
// admin.
func (s *OrderService) GetOrder(ctx context.Context, id, callerID uuid.UUID, admin bool) (*models.Order, error) {
	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get order: %v", errs.ErrInternal, err)
	}
	if !admin && order.UserID != callerID {
		return nil, fmt.Errorf("%w: order %s", errs.ErrNotFound, id)
	}
	return order, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, to models.OrderStatus) (*models.Order, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", errs.ErrValidation, to)
	}

	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %s", errs.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get order: %v", errs.ErrInternal, err)
	}

	from := order.Status
	if !models.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s not allowed", errs.ErrConflict, from, to)
	}

	changed, err := s.Repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: update status: %v", errs.ErrInternal, err)
	}
	if !changed {
		return nil, fmt.Errorf("%w: order %s changed concurrently", errs.ErrConflict, id)
	}

	updated, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: reload order: %v", errs.ErrInternal, err)
	}
	return updated, nil
}
