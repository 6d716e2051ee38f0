package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	pkgdb "github.com/Skotchmaster/marketplace/pkg/db"
	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/Skotchmaster/marketplace/pkg/metrics"
	pkgmodels "github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/eligibility"
	"github.com/Skotchmaster/marketplace/services/order/internal/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/notify"
	"github.com/Skotchmaster/marketplace/services/order/internal/repo"
	"github.com/Skotchmaster/marketplace/services/order/internal/transport"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	MinAddressLength  = 10
	MaxIdempotencyKey = 128
	orderNumberTries  = 3
)

type CheckoutService struct {
	Repo     *repo.GormRepo
	Engine   *eligibility.Engine
	Notifier *notify.Dispatcher
	Metrics  *metrics.CheckoutMetrics

	// OrderNumbers defaults to NewOrderNumber.
	OrderNumbers func() (string, error)
}

// Preview runs the engine without touching the store.
func (s *CheckoutService) Preview(ctx context.Context, req transport.EligibilityRequest, userID, role string, authenticated bool) (eligibility.Result, error) {
	if req.OrderTotal.IsNegative() {
		return eligibility.Result{}, fmt.Errorf("%w: order_total must be >= 0", errs.ErrValidation)
	}
	c := eligibility.NewContext(req.OrderTotal, req.Categories, userID, role, authenticated)
	s.Metrics.ObserveEvaluation("preview")
	return s.Engine.Evaluate(c), nil
}

// SubmitOrder turns a checkout request into a committed PENDING order.
// Nothing is persisted unless every write succeeds.
func (s *CheckoutService) SubmitOrder(ctx context.Context, userID uuid.UUID, req transport.CheckoutRequest) (*models.Order, error) {
	order, _, err := s.SubmitIdempotent(ctx, userID, "", req)
	return order, err
}

// SubmitIdempotent is SubmitOrder keyed by a client idempotency key. The key
// is stored on the order inside the checkout transaction, so concurrent
// submissions under one key commit at most one order; the others get that
// order back with replayed set. An empty key disables the check.
func (s *CheckoutService) SubmitIdempotent(ctx context.Context, userID uuid.UUID, key string, req transport.CheckoutRequest) (order *models.Order, replayed bool, err error) {
	start := time.Now()
	defer func() {
		s.Metrics.ObserveSubmission(errs.Class(err), float64(time.Since(start).Milliseconds()))
	}()

	if len(key) > MaxIdempotencyKey {
		return nil, false, fmt.Errorf("%w: idempotency key longer than %d", errs.ErrValidation, MaxIdempotencyKey)
	}
	if key != "" {
		prior, err := s.priorOrder(ctx, userID, key)
		if err != nil || prior != nil {
			return prior, prior != nil, err
		}
	}

	method, err := validateCheckout(userID, req)
	if err != nil {
		return nil, false, err
	}

	user, err := s.Repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("%w: user %s", errs.ErrNotFound, userID)
		}
		return nil, false, fmt.Errorf("%w: load user: %v", errs.ErrInternal, err)
	}

	products, err := s.resolveProducts(ctx, req.Items)
	if err != nil {
		return nil, false, err
	}

	for _, it := range req.Items {
		p := products[it.ProductID]
		if p.Stock < it.Quantity {
			return nil, false, &InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: it.Quantity, Available: p.Stock}
		}
	}

	categories := make([]string, 0, len(products))
	for _, p := range products {
		categories = append(categories, p.Category)
	}
	result := s.Engine.Evaluate(eligibility.NewContext(req.Total, categories, user.ID.String(), user.Role, true))
	s.Metrics.ObserveEvaluation("checkout")

	plan, err := planPayment(result, method, req)
	if err != nil {
		return nil, false, err
	}

	order, replayed, err = s.commit(ctx, user, key, req, products, plan, result.AppliedRules())
	if err != nil {
		return nil, false, err
	}

	if !replayed {
		s.Notifier.Dispatch(ctx, orderPlaced(user, order, products))
	}
	return order, replayed, nil
}

// priorOrder returns the order already committed under key, or nil.
func (s *CheckoutService) priorOrder(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	order, err := s.Repo.GetOrderByIdempotencyKey(ctx, userID, key)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency lookup: %v", errs.ErrInternal, err)
	}
	return order, nil
}

func validateCheckout(userID uuid.UUID, req transport.CheckoutRequest) (*eligibility.Method, error) {
	if userID == uuid.Nil {
		return nil, fmt.Errorf("%w: user required", errs.ErrValidation)
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: items required", errs.ErrValidation)
	}
	if utf8.RuneCountInString(strings.TrimSpace(req.ShippingAddress)) < MinAddressLength {
		return nil, fmt.Errorf("%w: shipping_address must be at least %d characters", errs.ErrValidation, MinAddressLength)
	}
	if !req.Total.IsPositive() {
		return nil, fmt.Errorf("%w: total must be > 0", errs.ErrValidation)
	}

	seen := make(map[uuid.UUID]struct{}, len(req.Items))
	sum := decimal.Zero
	for i, it := range req.Items {
		if it.ProductID == uuid.Nil {
			return nil, fmt.Errorf("%w: items[%d].product_id required", errs.ErrValidation, i)
		}
		if _, dup := seen[it.ProductID]; dup {
			return nil, fmt.Errorf("%w: product %s listed twice", errs.ErrValidation, it.ProductID)
		}
		seen[it.ProductID] = struct{}{}
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("%w: items[%d].quantity must be > 0", errs.ErrValidation, i)
		}
		if !it.Price.IsPositive() {
			return nil, fmt.Errorf("%w: items[%d].price must be > 0", errs.ErrValidation, i)
		}
		sum = sum.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !sum.Equal(req.Total) {
		return nil, fmt.Errorf("%w: total %s does not match items sum %s", errs.ErrValidation, req.Total, sum)
	}

	if req.PaymentMethod == nil {
		if req.AdvancePaymentRequirement != nil {
			return nil, fmt.Errorf("%w: advance_payment_requirement needs a payment_method", errs.ErrValidation)
		}
		return nil, nil
	}
	m, ok := eligibility.ParseMethod(*req.PaymentMethod)
	if !ok {
		return nil, fmt.Errorf("%w: unknown payment_method %q", errs.ErrValidation, *req.PaymentMethod)
	}
	return &m, nil
}

// resolveProducts is all-or-nothing: a missing or unapproved product fails
// the whole checkout. Request prices must match the catalog.
func (s *CheckoutService) resolveProducts(ctx context.Context, items []transport.CheckoutItem) (map[uuid.UUID]pkgmodels.Product, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}

	found, err := s.Repo.GetApprovedProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: load products: %v", errs.ErrInternal, err)
	}
	if len(found) != len(items) {
		return nil, fmt.Errorf("%w: %d of %d products not found", errs.ErrNotFound, len(items)-len(found), len(items))
	}

	products := make(map[uuid.UUID]pkgmodels.Product, len(found))
	for _, p := range found {
		products[p.ID] = p
	}
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", errs.ErrNotFound, it.ProductID)
		}
		if !p.Price.Equal(it.Price) {
			return nil, fmt.Errorf("%w: price of product %s changed to %s", errs.ErrValidation, p.ID, p.Price)
		}
	}
	return products, nil
}

type paymentPlan struct {
	method  *eligibility.Method
	payment *models.Payment
}

// planPayment re-checks the chosen method against the verdict and decides
// whether an upfront payment row is written.
func planPayment(result eligibility.Result, method *eligibility.Method, req transport.CheckoutRequest) (paymentPlan, error) {
	if method == nil {
		return paymentPlan{}, nil
	}
	m := *method

	v, ok := result.Verdict(m)
	if !ok {
		return paymentPlan{}, &EligibilityRejectedError{Method: m, Reason: "method not offered", Rules: []eligibility.AppliedRule{}}
	}
	if v.Status != eligibility.StatusAllowed {
		return paymentPlan{}, &EligibilityRejectedError{Method: m, Reason: "method restricted", Rules: v.AppliedRules}
	}

	var required *eligibility.AdvanceRequirement
	switch {
	case v.Advance != nil:
		required = v.Advance
	case m == eligibility.MethodAdvancePayment:
		full := eligibility.FullRequirement(req.Total)
		required = &full
	}

	if claimed := req.AdvancePaymentRequirement; claimed != nil {
		if required == nil || claimed.Type != required.Type || !claimed.Amount.Equal(required.Amount) {
			return paymentPlan{}, &EligibilityRejectedError{Method: m, Reason: "advance requirement does not match", Rules: v.AppliedRules}
		}
	}

	var amount decimal.Decimal
	switch {
	case m == eligibility.MethodOnlineCard:
		amount = req.Total
	case required != nil:
		amount = required.Amount
	default:
		return paymentPlan{method: method}, nil
	}

	p := &models.Payment{
		Amount: amount,
		Status: models.PaymentPending,
		Method: string(m),
	}
	if required != nil {
		raw, err := json.Marshal(required)
		if err != nil {
			return paymentPlan{}, fmt.Errorf("%w: encode advance params: %v", errs.ErrInternal, err)
		}
		params := string(raw)
		p.AdvanceParams = &params
	}
	return paymentPlan{method: method, payment: p}, nil
}

func (s *CheckoutService) commit(
	ctx context.Context,
	user *pkgmodels.User,
	key string,
	req transport.CheckoutRequest,
	products map[uuid.UUID]pkgmodels.Product,
	plan paymentPlan,
	rules []eligibility.AppliedRule,
) (*models.Order, bool, error) {
	l := logging.FromContext(ctx)
	next := s.OrderNumbers
	if next == nil {
		next = NewOrderNumber
	}

	var lastErr error
	for attempt := 1; attempt <= orderNumberTries; attempt++ {
		number, err := next()
		if err != nil {
			l.Error("checkout_tx_error", "user_id", user.ID, "reason", "order number", "error", err)
			return nil, false, fmt.Errorf("%w: checkout failed", errs.ErrInternal)
		}
		in := buildOrder(user.ID, number, key, req, products, plan, rules)

		err = s.Repo.CreateOrder(ctx, in)
		if err == nil {
			return in.Order, false, nil
		}

		var short *repo.StockShortageError
		switch {
		case errors.As(err, &short):
			p := products[short.ProductID]
			available, serr := s.Repo.GetProductStock(ctx, short.ProductID)
			if serr != nil {
				l.Warn("stock_lookup_error", "product_id", short.ProductID, "error", serr)
				available = 0
			}
			return nil, false, &InsufficientStockError{ProductID: p.ID, Name: p.Name, Requested: short.Requested, Available: available}
		case pkgdb.IsUniqueViolation(err):
			if key != "" {
				// a concurrent submission under the same key won the insert
				prior, perr := s.priorOrder(ctx, user.ID, key)
				if perr != nil {
					return nil, false, perr
				}
				if prior != nil {
					l.Info("idempotent_replay", "order_id", prior.ID)
					return prior, true, nil
				}
			}
			l.Warn("order_number_collision", "attempt", attempt, "order_number", in.Order.OrderNumber)
			lastErr = err
			continue
		default:
			l.Error("checkout_tx_error", "user_id", user.ID, "items", req.Items, "error", err)
			return nil, false, fmt.Errorf("%w: checkout failed", errs.ErrInternal)
		}
	}

	l.Error("checkout_tx_error", "user_id", user.ID, "items", req.Items, "reason", "order number retries exhausted", "error", lastErr)
	return nil, false, fmt.Errorf("%w: checkout failed", errs.ErrInternal)
}

func buildOrder(
	userID uuid.UUID,
	number string,
	key string,
	req transport.CheckoutRequest,
	products map[uuid.UUID]pkgmodels.Product,
	plan paymentPlan,
	rules []eligibility.AppliedRule,
) *repo.NewOrder {
	order := &models.Order{
		UserID:          userID,
		OrderNumber:     number,
		Total:           req.Total,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		Status:          models.StatusPending,
		Items:           make([]models.OrderItem, 0, len(req.Items)),
	}
	if plan.method != nil {
		m := string(*plan.method)
		order.PaymentMethod = &m
	}
	if key != "" {
		k := key
		order.IdempotencyKey = &k
	}

	decs := make([]repo.StockDecrement, 0, len(req.Items))
	for _, it := range req.Items {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     products[it.ProductID].Price,
		})
		decs = append(decs, repo.StockDecrement{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	audit := make([]models.AppliedRule, 0, len(rules))
	for _, r := range rules {
		audit = append(audit, models.AppliedRule{
			RuleID: r.RuleID,
			Kind:   string(r.Kind),
			Method: string(r.Method),
			Effect: string(r.Effect),
		})
	}

	var payment *models.Payment
	if plan.payment != nil {
		p := *plan.payment
		payment = &p
	}

	return &repo.NewOrder{Order: order, Payment: payment, Rules: audit, Decrements: decs}
}

func orderPlaced(user *pkgmodels.User, o *models.Order, products map[uuid.UUID]pkgmodels.Product) notify.OrderPlaced {
	items := make([]notify.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		p := products[it.ProductID]
		items = append(items, notify.LineItem{
			ProductID: it.ProductID,
			VendorID:  p.VendorID,
			Name:      p.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}
	return notify.OrderPlaced{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerName:  user.Name,
		Total:         o.Total,
		PaymentMethod: o.PaymentMethod,
		Items:         items,
		CreatedAt:     o.CreatedAt,
	}
}
