package errs

import (
	"errors"
	"net/http"
)

var (
	ErrValidation          = errors.New("validation")           // 400
	ErrNotFound            = errors.New("not found")            // 404
	ErrInsufficientStock   = errors.New("insufficient stock")   // 400
	ErrEligibilityRejected = errors.New("eligibility rejected") // 400
	ErrVendorNotApproved   = errors.New("vendor not approved")  // 403
	ErrConflict            = errors.New("conflict")             // 409
	ErrInternal            = errors.New("internal error")       // 500
)

func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrEligibilityRejected):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrVendorNotApproved):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Class is a short label for metrics and logs.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrEligibilityRejected):
		return "eligibility_rejected"
	case errors.Is(err, ErrVendorNotApproved):
		return "vendor_not_approved"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
