package service

import (
	"fmt"

	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/services/order/internal/eligibility"
	"github.com/google/uuid"
)

type InsufficientStockError struct {
	ProductID uuid.UUID
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested %d, available %d", e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == errs.ErrInsufficientStock
}

// EligibilityRejectedError carries the rules that refused the method so the
// client can explain the refusal.
type EligibilityRejectedError struct {
	Method eligibility.Method
	Reason string
	Rules  []eligibility.AppliedRule
}

func (e *EligibilityRejectedError) Error() string {
	return fmt.Sprintf("payment method %s rejected: %s", e.Method, e.Reason)
}

func (e *EligibilityRejectedError) Is(target error) bool {
	return target == errs.ErrEligibilityRejected
}
