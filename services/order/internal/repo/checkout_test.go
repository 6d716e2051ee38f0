package repo

import (
	"context"
	"errors"
	"testing"

	pkgdb "github.com/Skotchmaster/marketplace/pkg/db"
	pkgmodels "github.com/Skotchmaster/marketplace/pkg/models"
	"github.com/Skotchmaster/marketplace/services/order/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	repo    *GormRepo
	user    pkgmodels.User
	product pkgmodels.Product
}

func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := pkgdb.OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = pkgdb.Close(db) })
	require.NoError(t, AutoMigrate(ctx, db))

	user := pkgmodels.User{Name: "Ann", Email: uuid.NewString() + "@example.com", Role: pkgmodels.RoleUser}
	require.NoError(t, db.Create(&user).Error)

	product := pkgmodels.Product{
		VendorID: uuid.New(),
		Name:     "Headphones",
		Category: "Electronics",
		Price:    decimal.RequireFromString("25.50"),
		Stock:    stock,
		Approved: true,
	}
	require.NoError(t, db.Create(&product).Error)

	require.NoError(t, db.Create(&pkgmodels.CartItem{UserID: user.ID, ProductID: product.ID, Quantity: 2}).Error)

	return &fixture{repo: &GormRepo{DB: db}, user: user, product: product}
}

func (f *fixture) newOrder(number string, qty int, withPayment bool) *NewOrder {
	in := &NewOrder{
		Order: &models.Order{
			UserID:          f.user.ID,
			OrderNumber:     number,
			Total:           f.product.Price.Mul(decimal.NewFromInt(int64(qty))),
			ShippingAddress: "1 Long Street, Springfield",
			Status:          models.StatusPending,
			Items: []models.OrderItem{
				{ProductID: f.product.ID, Quantity: qty, Price: f.product.Price},
			},
		},
		Rules: []models.AppliedRule{
			{RuleID: "r.one", Kind: "total_threshold", Method: "cash_on_delivery", Effect: "restrict"},
			{RuleID: "r.two", Kind: "mandatory_advance", Method: "advance_payment", Effect: "advance"},
		},
		Decrements: []StockDecrement{{ProductID: f.product.ID, Quantity: qty}},
	}
	if withPayment {
		in.Payment = &models.Payment{Amount: decimal.NewFromInt(10), Status: models.PaymentPending, Method: "advance_payment"}
	}
	return in
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.repo.DB.Model(model).Count(&n).Error)
	return n
}

func TestCreateOrder_CommitsWholeGraph(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	in := f.newOrder("ORD-1", 2, true)
	require.NoError(t, f.repo.CreateOrder(ctx, in))
	require.NotEqual(t, uuid.Nil, in.Order.ID)

	stock, err := f.repo.GetProductStock(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stock)
	assert.Zero(t, f.count(t, &pkgmodels.CartItem{}))

	got, err := f.repo.GetOrder(ctx, in.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.OrderNumber)
	assert.Equal(t, models.StatusPending, got.Status)
	require.Len(t, got.Items, 1)
	assert.True(t, got.Items[0].Price.Equal(f.product.Price))
	require.NotNil(t, got.Payment)
	assert.True(t, got.Payment.Amount.Equal(decimal.NewFromInt(10)))
	require.Len(t, got.AppliedRules, 2)
	assert.Equal(t, "r.one", got.AppliedRules[0].RuleID)
	assert.Equal(t, "r.two", got.AppliedRules[1].RuleID)
}

func TestCreateOrder_ShortageRollsBack(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	err := f.repo.CreateOrder(ctx, f.newOrder("ORD-1", 2, true))
	require.Error(t, err)

	var short *StockShortageError
	require.True(t, errors.As(err, &short))
	assert.Equal(t, f.product.ID, short.ProductID)
	assert.Equal(t, 2, short.Requested)

	assert.Zero(t, f.count(t, &models.Order{}))
	assert.Zero(t, f.count(t, &models.OrderItem{}))
	assert.Zero(t, f.count(t, &models.Payment{}))
	assert.Zero(t, f.count(t, &models.AppliedRule{}))
	assert.EqualValues(t, 1, f.count(t, &pkgmodels.CartItem{}))

	stock, err := f.repo.GetProductStock(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stock)
}

func TestCreateOrder_DuplicateNumber(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	require.NoError(t, f.repo.CreateOrder(ctx, f.newOrder("ORD-DUP", 1, false)))

	err := f.repo.CreateOrder(ctx, f.newOrder("ORD-DUP", 1, false))
	require.Error(t, err)
	assert.True(t, pkgdb.IsUniqueViolation(err))

	stock, err := f.repo.GetProductStock(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stock)
}

func TestGetApprovedProducts_SkipsUnapproved(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	hidden := pkgmodels.Product{VendorID: uuid.New(), Name: "Draft", Category: "Books", Price: decimal.NewFromInt(1), Stock: 1}
	require.NoError(t, f.repo.DB.Create(&hidden).Error)

	got, err := f.repo.GetApprovedProducts(ctx, []uuid.UUID{f.product.ID, hidden.ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.product.ID, got[0].ID)
}

func TestGetUser_NotFound(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.repo.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUpdateStatus_Guarded(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	in := f.newOrder("ORD-1", 1, false)
	require.NoError(t, f.repo.CreateOrder(ctx, in))

	ok, err := f.repo.UpdateStatus(ctx, in.Order.ID, models.StatusPending, models.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.repo.UpdateStatus(ctx, in.Order.ID, models.StatusPending, models.StatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := f.repo.GetOrder(ctx, in.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusProcessing, got.Status)
}

func TestListOrders_Paginates(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	for _, n := range []string{"ORD-1", "ORD-2", "ORD-3"} {
		require.NoError(t, f.repo.CreateOrder(ctx, f.newOrder(n, 1, false)))
	}

	total, orders, err := f.repo.ListOrders(ctx, f.user.ID, 0, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, orders, 2)

	total, orders, err = f.repo.ListOrders(ctx, uuid.New(), 0, 2)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}
