package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	pkgdb "github.com/Skotchmaster/marketplace/pkg/db"
	"github.com/Skotchmaster/marketplace/pkg/errs"
	"github.com/Skotchmaster/marketplace/pkg/metrics"
	pkgmodels "github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/eligibility"
	"github.com/Skotchmaster/marketplace/services/order/internal/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/notify"
	"github.com/Skotchmaster/marketplace/services/order/internal/repo"
	"github.com/Skotchmaster/marketplace/services/order/internal/transport"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testAddress = "221B Baker Street, London"

type fakeNotifier struct {
	mu  sync.Mutex
	got []notify.OrderPlaced
	err error
}

func (f *fakeNotifier) Notify(ctx context.Context, msg notify.OrderPlaced) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return f.err
}

type checkoutEnv struct {
	db       *gorm.DB
	svc      *CheckoutService
	notifier *fakeNotifier
	metrics  *metrics.CheckoutMetrics
	user     pkgmodels.User
}

func newCheckoutEnv(t *testing.T, rules []eligibility.Rule) *checkoutEnv {
	t.Helper()

	ctx := context.Background()
	db, err := pkgdb.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkgdb.Close(db) })
	require.NoError(t, repo.AutoMigrate(ctx, db))

	user := pkgmodels.User{Name: "Grace Hopper", Email: "grace@example.com", Role: pkgmodels.RoleUser}
	require.NoError(t, db.Create(&user).Error)

	n := &fakeNotifier{}
	m := metrics.NewCheckoutMetrics(prometheus.NewRegistry(), "order")
	d := notify.NewDispatcher(n, time.Second, m)
	t.Cleanup(d.Wait)

	return &checkoutEnv{
		db: db,
		svc: &CheckoutService{
			Repo:     &repo.GormRepo{DB: db},
			Engine:   eligibility.NewEngine(rules),
			Notifier: d,
			Metrics:  m,
		},
		notifier: n,
		metrics:  m,
		user:     user,
	}
}

func (e *checkoutEnv) product(t *testing.T, name, category, price string, stock int) pkgmodels.Product {
	t.Helper()
	p := pkgmodels.Product{
		VendorID: uuid.New(),
		Name:     name,
		Category: category,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		Approved: true,
	}
	require.NoError(t, e.db.Create(&p).Error)
	return p
}

func (e *checkoutEnv) addToCart(t *testing.T, p pkgmodels.Product, qty uint) {
	t.Helper()
	require.NoError(t, e.db.Create(&pkgmodels.CartItem{UserID: e.user.ID, ProductID: p.ID, Quantity: qty}).Error)
}

func (e *checkoutEnv) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var p pkgmodels.Product
	require.NoError(t, e.db.Where("id = ?", id).First(&p).Error)
	return p.Stock
}

func (e *checkoutEnv) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func (e *checkoutEnv) assertNothingPersisted(t *testing.T) {
	t.Helper()
	assert.Zero(t, e.count(t, &models.Order{}))
	assert.Zero(t, e.count(t, &models.OrderItem{}))
	assert.Zero(t, e.count(t, &models.Payment{}))
	assert.Zero(t, e.count(t, &models.AppliedRule{}))
}

func request(method string, lines ...transport.CheckoutItem) transport.CheckoutRequest {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	req := transport.CheckoutRequest{Total: total, ShippingAddress: testAddress, Items: lines}
	if method != "" {
		req.PaymentMethod = &method
	}
	return req
}

func line(p pkgmodels.Product, qty int) transport.CheckoutItem {
	return transport.CheckoutItem{ProductID: p.ID, Quantity: qty, Price: p.Price}
}

func TestSubmitOrder_CashOnDeliveryAllowed(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()
	p := env.product(t, "Keyboard", "Electronics", "100", 5)
	env.addToCart(t, p, 1)

	order, err := env.svc.SubmitOrder(ctx, env.user.ID, request("cash_on_delivery", line(p, 1)))
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, order.Status)
	require.NotNil(t, order.PaymentMethod)
	assert.Equal(t, "cash_on_delivery", *order.PaymentMethod)
	assert.Nil(t, order.Payment)
	assert.Regexp(t, `^ORD-\d{14}-[A-Z2-7]{6}$`, order.OrderNumber)

	assert.Zero(t, env.count(t, &models.Payment{}))
	assert.Zero(t, env.count(t, &pkgmodels.CartItem{}))
	assert.Equal(t, 4, env.stock(t, p.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Submissions.WithLabelValues("ok")))
}

func TestSubmitOrder_InsufficientStockNamesProduct(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()
	p := env.product(t, "Lamp", "Home", "20", 3)

	_, err := env.svc.SubmitOrder(ctx, env.user.ID, request("cash_on_delivery", line(p, 4)))
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrInsufficientStock)

	var stockErr *InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, p.ID, stockErr.ProductID)
	assert.Equal(t, "Lamp", stockErr.Name)
	assert.Equal(t, 4, stockErr.Requested)
	assert.Equal(t, 3, stockErr.Available)

	env.assertNothingPersisted(t)
	assert.Equal(t, 3, env.stock(t, p.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Submissions.WithLabelValues("insufficient_stock")))
}

func TestSubmitOrder_AdvancePaymentCreatesPendingPayment(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()
	p := env.product(t, "Novel", "Books", "50", 10)

	req := request("advance_payment", line(p, 2))
	req.AdvancePaymentRequirement = &eligibility.AdvanceRequirement{
		Type:       eligibility.AdvancePartial,
		Amount:     decimal.NewFromInt(30),
		Percentage: decimal.NewFromInt(30),
	}

	order, err := env.svc.SubmitOrder(ctx, env.user.ID, req)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, order.Status)

	var payment models.Payment
	require.NoError(t, env.db.Where("order_id = ?", order.ID).First(&payment).Error)
	assert.True(t, payment.Amount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, models.PaymentPending, payment.Status)
	assert.Equal(t, "advance_payment", payment.Method)

	require.NotNil(t, payment.AdvanceParams)
	var params eligibility.AdvanceRequirement
	require.NoError(t, json.Unmarshal([]byte(*payment.AdvanceParams), &params))
	assert.Equal(t, eligibility.AdvancePartial, params.Type)
	assert.True(t, params.Amount.Equal(decimal.NewFromInt(30)))

	var audit []models.AppliedRule
	require.NoError(t, env.db.Where("order_id = ?", order.ID).Order("position").Find(&audit).Error)
	require.Len(t, audit, 1)
	assert.Equal(t, "advance.default.deposit", audit[0].RuleID)
}

func TestSubmitOrder_ConcurrentCheckoutsNeverOversell(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()
	p := env.product(t, "Limited Sneaker", "Shoes", "10", 10)

	const workers = 50
	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, shortage int
		other        []error
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.SubmitOrder(ctx, env.user.ID, request("cash_on_delivery", line(p, 1)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrInsufficientStock):
				shortage++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 10, ok)
	assert.Equal(t, 40, shortage)
	assert.Equal(t, 0, env.stock(t, p.ID))
	assert.EqualValues(t, 10, env.count(t, &models.Order{}))
}

func TestSubmitOrder_AllOrNothing(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()
	plenty := env.product(t, "Pen", "Office", "2", 100)
	scarce := env.product(t, "Desk", "Office", "150", 1)
	env.addToCart(t, plenty, 5)
	env.addToCart(t, scarce, 2)

	_, err := env.svc.SubmitOrder(ctx, env.user.ID, request("advance_payment", line(plenty, 5), line(scarce, 2)))
	require.ErrorIs(t, err, errs.ErrInsufficientStock)

	env.assertNothingPersisted(t)
	assert.Equal(t, 100, env.stock(t, plenty.ID))
	assert.Equal(t, 1, env.stock(t, scarce.ID))
	assert.EqualValues(t, 2, env.count(t, &pkgmodels.CartItem{}))
}

func TestSubmitOrder_PriceSnapshot(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()
	p := env.product(t, "Mug", "Kitchen", "12.50", 4)

	order, err := env.svc.SubmitOrder(ctx, env.user.ID, request("online_card", line(p, 2)))
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&pkgmodels.Product{}).Where("id = ?", p.ID).
		Update("price", decimal.RequireFromString("99.99")).Error)

	got, err := env.svc.Repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("12.50")))
	assert.True(t, got.Total.Equal(decimal.NewFromInt(25)))
}

func TestSubmitOrder_RestrictedMethodRejected(t *testing.T) {
	rules := []eligibility.Rule{
		eligibility.CategoryRestriction{
			ID:         "category.digital.prepaid",
			Categories: []string{"Digital Goods"},
			Methods:    []eligibility.Method{eligibility.MethodCashOnDelivery},
		},
	}
	env := newCheckoutEnv(t, rules)
	ctx := context.Background()
	p := env.product(t, "E-book", "Digital Goods", "9", 50)
	env.addToCart(t, p, 1)

	_, err := env.svc.SubmitOrder(ctx, env.user.ID, request("cash_on_delivery", line(p, 1)))
	require.ErrorIs(t, err, errs.ErrEligibilityRejected)

	var rejected *EligibilityRejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, eligibility.MethodCashOnDelivery, rejected.Method)
	require.Len(t, rejected.Rules, 1)
	assert.Equal(t, "category.digital.prepaid", rejected.Rules[0].RuleID)

	env.assertNothingPersisted(t)
	assert.Equal(t, 50, env.stock(t, p.ID))
	assert.EqualValues(t, 1, env.count(t, &pkgmodels.CartItem{}))

	order, err := env.svc.SubmitOrder(ctx, env.user.ID, request("online_card", line(p, 1)))
	require.NoError(t, err)
	require.Len(t, order.AppliedRules, 1)
	assert.Equal(t, "category.digital.prepaid", order.AppliedRules[0].RuleID)
}

func TestSubmitOrder_AdvanceRequirementMustMatch(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()
	p := env.product(t, "Chair", "Furniture", "100", 3)

	req := request("advance_payment", line(p, 1))
	req.AdvancePaymentRequirement = &eligibility.AdvanceRequirement{Type: eligibility.AdvancePartial, Amount: decimal.NewFromInt(10)}

	_, err := env.svc.SubmitOrder(ctx, env.user.ID, req)
	require.ErrorIs(t, err, errs.ErrEligibilityRejected)
	env.assertNothingPersisted(t)
}

func TestSubmitOrder_PaymentRows(t *testing.T) {
	tests := []struct {
		name        string
		rules       []eligibility.Rule
		method      string
		wantPayment string
	}{
		{name: "no method", method: "", wantPayment: ""},
		{name: "cash on delivery", method: "cash_on_delivery", wantPayment: ""},
		{name: "online card captures total", method: "online_card", wantPayment: "40"},
		{name: "advance without rule is full", method: "advance_payment", wantPayment: "40"},
		{
			name: "cash on delivery with advance rule",
			rules: []eligibility.Rule{eligibility.MandatoryAdvance{
				ID:         "advance.cod",
				Methods:    []eligibility.Method{eligibility.MethodCashOnDelivery},
				Type:       eligibility.AdvancePartial,
				Percentage: decimal.NewFromInt(25),
			}},
			method:      "cash_on_delivery",
			wantPayment: "10",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			env := newCheckoutEnv(t, tt.rules)
			p := env.product(t, "Plant", "Garden", "20", 5)

			order, err := env.svc.SubmitOrder(context.Background(), env.user.ID, request(tt.method, line(p, 2)))
			require.NoError(t, err)

			if tt.method == "" {
				assert.Nil(t, order.PaymentMethod)
			} else {
				require.NotNil(t, order.PaymentMethod)
				assert.Equal(t, tt.method, *order.PaymentMethod)
			}

			if tt.wantPayment == "" {
				assert.Zero(t, env.count(t, &models.Payment{}))
				return
			}
			var payment models.Payment
			require.NoError(t, env.db.Where("order_id = ?", order.ID).First(&payment).Error)
			assert.True(t, payment.Amount.Equal(decimal.RequireFromString(tt.wantPayment)), "amount %s", payment.Amount)
			assert.Equal(t, tt.method, payment.Method)
		})
	}
}

func TestSubmitOrder_Validation(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	ctx := context.Background()
	p := env.product(t, "Cable", "Electronics", "5", 10)

	unknown := "barter"
	tests := []struct {
		name   string
		userID uuid.UUID
		mutate func(*transport.CheckoutRequest)
	}{
		{name: "no items", mutate: func(r *transport.CheckoutRequest) { r.Items = nil }},
		{name: "short address", mutate: func(r *transport.CheckoutRequest) { r.ShippingAddress = "  Main St " }},
		{name: "zero quantity", mutate: func(r *transport.CheckoutRequest) { r.Items[0].Quantity = 0 }},
		{name: "negative price", mutate: func(r *transport.CheckoutRequest) { r.Items[0].Price = decimal.NewFromInt(-5) }},
		{name: "total mismatch", mutate: func(r *transport.CheckoutRequest) { r.Total = decimal.NewFromInt(11) }},
		{name: "duplicate product", mutate: func(r *transport.CheckoutRequest) {
			r.Items = append(r.Items, r.Items[0])
			r.Total = decimal.NewFromInt(20)
		}},
		{name: "unknown method", mutate: func(r *transport.CheckoutRequest) { r.PaymentMethod = &unknown }},
		{name: "advance without method", mutate: func(r *transport.CheckoutRequest) {
			r.PaymentMethod = nil
			r.AdvancePaymentRequirement = &eligibility.AdvanceRequirement{Type: eligibility.AdvanceFull}
		}},
		{name: "stale catalog price", mutate: func(r *transport.CheckoutRequest) {
			r.Items[0].Price = decimal.NewFromInt(4)
			r.Total = decimal.NewFromInt(8)
		}},
		{name: "missing user", userID: uuid.Nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request("cash_on_delivery", line(p, 2))
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			userID := env.user.ID
			if tt.mutate == nil {
				userID = tt.userID
			}

			_, err := env.svc.SubmitOrder(ctx, userID, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrValidation)
		})
	}

	env.assertNothingPersisted(t)
	assert.Equal(t, 10, env.stock(t, p.ID))
}

func TestSubmitOrder_NotFound(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	ctx := context.Background()
	p := env.product(t, "Cable", "Electronics", "5", 10)

	draft := pkgmodels.Product{VendorID: uuid.New(), Name: "Draft", Category: "Toys", Price: decimal.NewFromInt(5), Stock: 3}
	require.NoError(t, env.db.Create(&draft).Error)

	_, err := env.svc.SubmitOrder(ctx, uuid.New(), request("", line(p, 1)))
	assert.ErrorIs(t, err, errs.ErrNotFound)

	ghost := pkgmodels.Product{ID: uuid.New(), Price: decimal.NewFromInt(5)}
	_, err = env.svc.SubmitOrder(ctx, env.user.ID, request("", line(p, 1), line(ghost, 1)))
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = env.svc.SubmitOrder(ctx, env.user.ID, request("", line(draft, 1)))
	assert.ErrorIs(t, err, errs.ErrNotFound)

	env.assertNothingPersisted(t)
	assert.Equal(t, 10, env.stock(t, p.ID))
}

func TestSubmitOrder_ClearsOnlyPurchasedCartRows(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	ctx := context.Background()
	bought := env.product(t, "Tea", "Grocery", "3", 10)
	kept := env.product(t, "Coffee", "Grocery", "7", 10)
	env.addToCart(t, bought, 2)
	env.addToCart(t, kept, 1)

	other := pkgmodels.User{Name: "Other", Email: "other@example.com", Role: pkgmodels.RoleUser}
	require.NoError(t, env.db.Create(&other).Error)
	require.NoError(t, env.db.Create(&pkgmodels.CartItem{UserID: other.ID, ProductID: bought.ID, Quantity: 1}).Error)

	_, err := env.svc.SubmitOrder(ctx, env.user.ID, request("", line(bought, 2)))
	require.NoError(t, err)

	var left []pkgmodels.CartItem
	require.NoError(t, env.db.Order("quantity").Find(&left).Error)
	require.Len(t, left, 2)
	for _, c := range left {
		assert.False(t, c.UserID == env.user.ID && c.ProductID == bought.ID)
	}
}

func TestSubmitOrder_NotificationFailureDoesNotAffectOrder(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	env.notifier.err = errors.New("broker unreachable")
	ctx := context.Background()
	p := env.product(t, "Scarf", "Apparel", "15", 2)

	order, err := env.svc.SubmitOrder(ctx, env.user.ID, request("online_card", line(p, 1)))
	require.NoError(t, err)
	env.svc.Notifier.Wait()

	assert.EqualValues(t, 1, env.count(t, &models.Order{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.Notifications.WithLabelValues("error")))

	require.Len(t, env.notifier.got, 1)
	msg := env.notifier.got[0]
	assert.Equal(t, order.OrderNumber, msg.OrderNumber)
	assert.Equal(t, "Grace Hopper", msg.CustomerName)
	assert.True(t, msg.Total.Equal(decimal.NewFromInt(15)))
	require.Len(t, msg.Items, 1)
	assert.Equal(t, "Scarf", msg.Items[0].Name)
	require.NotNil(t, msg.PaymentMethod)
	assert.Equal(t, "online_card", *msg.PaymentMethod)
}

func TestSubmitOrder_RegeneratesCollidingOrderNumber(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	ctx := context.Background()
	p := env.product(t, "Soap", "Beauty", "4", 10)

	var (
		mu      sync.Mutex
		numbers = []string{"ORD-A", "ORD-A", "ORD-B"}
	)
	env.svc.OrderNumbers = func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[0]
		if len(numbers) > 1 {
			numbers = numbers[1:]
		}
		return n, nil
	}

	first, err := env.svc.SubmitOrder(ctx, env.user.ID, request("", line(p, 1)))
	require.NoError(t, err)
	assert.Equal(t, "ORD-A", first.OrderNumber)

	second, err := env.svc.SubmitOrder(ctx, env.user.ID, request("", line(p, 1)))
	require.NoError(t, err)
	assert.Equal(t, "ORD-B", second.OrderNumber)

	// generator stuck on an existing number exhausts the retries
	_, err = env.svc.SubmitOrder(ctx, env.user.ID, request("", line(p, 1)))
	require.ErrorIs(t, err, errs.ErrInternal)

	assert.EqualValues(t, 2, env.count(t, &models.Order{}))
	assert.Equal(t, 8, env.stock(t, p.ID))
}

func TestPreview(t *testing.T) {
	env := newCheckoutEnv(t, eligibility.DefaultPolicy())
	ctx := context.Background()

	req := transport.EligibilityRequest{OrderTotal: decimal.NewFromInt(100), Categories: []string{"Gift Cards"}}
	first, err := env.svc.Preview(ctx, req, "", "", false)
	require.NoError(t, err)
	second, err := env.svc.Preview(ctx, req, "", "", false)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []eligibility.Method{eligibility.MethodOnlineCard}, first.Allowed())
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.Evaluations.WithLabelValues("preview")))
	env.assertNothingPersisted(t)

	_, err = env.svc.Preview(ctx, transport.EligibilityRequest{OrderTotal: decimal.NewFromInt(-1)}, "", "", false)
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestNewOrderNumber(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	n, err := newOrderNumberAt(at, rand.Reader)
	require.NoError(t, err)
	assert.Regexp(t, `^ORD-20260304050607-[A-Z2-7]{6}$`, n)

	again, err := newOrderNumberAt(at, rand.Reader)
	require.NoError(t, err)
	assert.NotEqual(t, n, again)

	_, err = newOrderNumberAt(at, iotest.ErrReader(errors.New("entropy exhausted")))
	assert.Error(t, err)

	_, err = NewOrderNumber()
	assert.NoError(t, err)
}

func TestSubmitOrder_OrderNumberFailure(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	ctx := context.Background()
	p := env.product(t, "Soap", "Beauty", "4", 10)
	env.addToCart(t, p, 1)

	env.svc.OrderNumbers = func() (string, error) {
		return "", errors.New("entropy exhausted")
	}

	_, err := env.svc.SubmitOrder(ctx, env.user.ID, request("", line(p, 1)))
	require.ErrorIs(t, err, errs.ErrInternal)
	assert.NotContains(t, err.Error(), "entropy")

	env.assertNothingPersisted(t)
	assert.Equal(t, 10, env.stock(t, p.ID))
	assert.EqualValues(t, 1, env.count(t, &pkgmodels.CartItem{}))
}

func TestSubmitIdempotent_ConcurrentSameKey(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	ctx := context.Background()
	p := env.product(t, "Kettle", "Kitchen", "25", 50)

	const workers = 8
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		orders  = make([]*models.Order, workers)
		replays = make([]bool, workers)
		errsOut = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			orders[i], replays[i], errsOut[i] = env.svc.SubmitIdempotent(ctx, env.user.ID, "double-click", request("", line(p, 1)))
		}(i)
	}
	close(start)
	wg.Wait()

	fresh := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errsOut[i])
		require.NotNil(t, orders[i])
		assert.Equal(t, orders[0].ID, orders[i].ID)
		if !replays[i] {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.EqualValues(t, 1, env.count(t, &models.Order{}))
	assert.Equal(t, 49, env.stock(t, p.ID))

	env.svc.Notifier.Wait()
	env.notifier.mu.Lock()
	assert.Len(t, env.notifier.got, 1)
	env.notifier.mu.Unlock()
}

func TestSubmitIdempotent_KeyScope(t *testing.T) {
	env := newCheckoutEnv(t, nil)
	ctx := context.Background()
	p := env.product(t, "Kettle", "Kitchen", "25", 50)

	other := pkgmodels.User{Name: "Ada", Email: "ada@example.com", Role: pkgmodels.RoleUser}
	require.NoError(t, env.db.Create(&other).Error)

	first, replayed, err := env.svc.SubmitIdempotent(ctx, env.user.ID, "k", request("", line(p, 1)))
	require.NoError(t, err)
	assert.False(t, replayed)

	// a replay returns the original order even if the body changed
	again, replayed, err := env.svc.SubmitIdempotent(ctx, env.user.ID, "k", request("", line(p, 3)))
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, again.ID)
	require.Len(t, again.Items, 1)
	assert.Equal(t, 1, again.Items[0].Quantity)

	theirs, replayed, err := env.svc.SubmitIdempotent(ctx, other.ID, "k", request("", line(p, 1)))
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.NotEqual(t, first.ID, theirs.ID)

	_, _, err = env.svc.SubmitIdempotent(ctx, env.user.ID, strings.Repeat("x", MaxIdempotencyKey+1), request("", line(p, 1)))
	assert.ErrorIs(t, err, errs.ErrValidation)

	// keyless submissions never collide with each other
	for i := 0; i < 2; i++ {
		_, err := env.svc.SubmitOrder(ctx, env.user.ID, request("", line(p, 1)))
		require.NoError(t, err)
	}
	assert.EqualValues(t, 4, env.count(t, &models.Order{}))
	assert.Equal(t, 46, env.stock(t, p.ID))
}
