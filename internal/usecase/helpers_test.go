package usecase_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/lock"
	infrarepo "storefront/internal/infra/repository"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =====================
// fixture（SQLite + 本物のgormリポジトリ）
// =====================

var fixtureStart = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

type fixture struct {
	db      *gorm.DB
	clock   *testutil.FixedClock
	pub     *testutil.RecordingPublisher
	locker  *lock.MemoryLocker
	tx      repo.TransactionManager
	cart    *usecase.CartUsecase
	buyNow  *usecase.BuyNowUsecase
	orders  *usecase.OrderUsecase
	merge   *usecase.SessionMergeUsecase
	admin   *usecase.AdminOrderUsecase
	catalog *usecase.CatalogUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithTx(t, nil)
}

// wrap で TransactionManager を差し替えられる（障害注入用）
func newFixtureWithTx(t *testing.T, wrap func(repo.TransactionManager) repo.TransactionManager) *fixture {
	t.Helper()

	gdb := testutil.NewDB(t)
	log := zap.NewNop()

	f := &fixture{
		db:     gdb,
		clock:  testutil.NewFixedClock(fixtureStart),
		pub:    &testutil.RecordingPublisher{},
		locker: lock.NewMemoryLocker(),
	}

	var tx repo.TransactionManager = infrarepo.NewTxManagerGorm(gdb)
	if wrap != nil {
		tx = wrap(tx)
	}
	f.tx = tx

	products := infrarepo.NewProductGormRepository(gdb)

	f.cart = usecase.NewCartUsecase(infrarepo.NewCartItemGormRepository(gdb), products, true)
	f.buyNow = usecase.NewBuyNowUsecase(
		infrarepo.NewBuyNowGormRepository(gdb),
		products,
		testutil.NewSeqIDs("bn"),
		f.clock,
		30*time.Minute,
		log,
	)
	f.orders = usecase.NewOrderUsecase(
		tx,
		f.locker,
		f.pub,
		&testutil.SeqOrderNumbers{},
		f.clock,
		usecase.CheckoutOptions{Timeout: 10 * time.Second, MaxRetries: 3, LockTTL: 30 * time.Second},
		log,
	)
	f.merge = usecase.NewSessionMergeUsecase(tx, 3, log)
	f.admin = usecase.NewAdminOrderUsecase(tx, f.pub, f.clock, log)
	f.catalog = usecase.NewCatalogUsecase(products)

	return f
}

func (f *fixture) addToCart(t *testing.T, owner model.Owner, productID int64, qty int64) usecase.AddCartOutput {
	t.Helper()
	out, err := f.cart.AddItem(context.Background(), owner, usecase.AddCartInput{ProductID: productID, Quantity: qty})
	require.NoError(t, err)
	return out
}

func (f *fixture) getCart(t *testing.T, owner model.Owner) usecase.CartResponse {
	t.Helper()
	out, err := f.cart.GetCart(context.Background(), owner)
	require.NoError(t, err)
	return out
}

func validCustomer() usecase.CustomerInput {
	return usecase.CustomerInput{
		Name:            "Taro Yamada",
		Email:           "taro@example.com",
		Phone:           "090-0000-0000",
		ShippingAddress: "1-1 Chiyoda, Tokyo",
	}
}

// =====================
// Helper: error
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

// HTTPError であることとコードを確認して返す
func assertCode(t *testing.T, err error, want usecase.ErrorCode) *usecase.HTTPError {
	t.Helper()
	require.Error(t, err)
	he, ok := usecase.AsHTTPError(err)
	require.True(t, ok, "not HTTPError: %v", err)
	assert.Equal(t, want, he.Code, he.Message)
	return he
}

// =====================
// TxManager / TxRepos mocks
// =====================

// TxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type TxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *TxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	// 呼ばれた事実だけ記録（ctxの具体値は問わない）
	m.Called(ctx)
	return fn(m.Repos)
}

type TxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	auditLogs  repo.AuditLogRepository

	// 使わないが TxRepos interface を満たすために保持
	cartItems repo.CartItemRepository
	buyNow    repo.BuyNowRepository
	inventory repo.InventoryRepository
	products  repo.ProductRepository
}

func (r *TxReposMock) Orders() repo.OrderRepository         { return r.orders }
func (r *TxReposMock) OrderItems() repo.OrderItemRepository { return r.orderItems }
func (r *TxReposMock) AuditLogs() repo.AuditLogRepository   { return r.auditLogs }
func (r *TxReposMock) CartItems() repo.CartItemRepository   { return r.cartItems }
func (r *TxReposMock) BuyNow() repo.BuyNowRepository        { return r.buyNow }
func (r *TxReposMock) Inventory() repo.InventoryRepository  { return r.inventory }
func (r *TxReposMock) Products() repo.ProductRepository     { return r.products }

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *OrderRepoMock) ListByOwner(ctx context.Context, ownerKey string, page int, limit int) ([]model.Order, int64, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *OrderRepoMock) Create(ctx context.Context, order *model.Order) error {
	panic("not used in AdminOrderUsecase tests")
}

func (m *OrderRepoMock) UpdateStatus(ctx context.Context, orderID int64, from model.OrderStatus, to model.OrderStatus) (bool, error) {
	args := m.Called(ctx, orderID, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *OrderRepoMock) FindByIdempotencyKey(ctx context.Context, ownerKey string, key string) (model.Order, bool, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type OrderItemRepoMock struct{ mock.Mock }

func (m *OrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	panic("not used in AdminOrderUsecase tests")
}

func (m *OrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	total, _ := args.Get(1).(int64)
	return logs, total, args.Error(2)
}

// 入力チェックで弾かれるなら呼ばれないことを確かめる用
type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) FindByID(ctx context.Context, id int64) (model.Product, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error) {
	args := m.Called(ctx, ids)
	ps, _ := args.Get(0).(map[int64]model.Product)
	return ps, args.Error(1)
}

type CartItemRepoMock struct{ mock.Mock }

func (m *CartItemRepoMock) ListLines(ctx context.Context, ownerKey string) ([]repo.CartLine, error) {
	args := m.Called(ctx, ownerKey)
	lines, _ := args.Get(0).([]repo.CartLine)
	return lines, args.Error(1)
}

func (m *CartItemRepoMock) ListByOwnerForUpdate(ctx context.Context, ownerKey string) ([]model.CartItem, error) {
	panic("not used in CartUsecase tests")
}

func (m *CartItemRepoMock) AddQuantity(ctx context.Context, ownerKey string, productID int64, addQty int64, maxQty int64) (repo.CartAddResult, error) {
	args := m.Called(ctx, ownerKey, productID, addQty, maxQty)
	res, _ := args.Get(0).(repo.CartAddResult)
	return res, args.Error(1)
}

func (m *CartItemRepoMock) UpdateQuantity(ctx context.Context, ownerKey string, cartItemID int64, qty int64) error {
	args := m.Called(ctx, ownerKey, cartItemID, qty)
	return args.Error(0)
}

func (m *CartItemRepoMock) DeleteByID(ctx context.Context, ownerKey string, cartItemID int64) (bool, error) {
	args := m.Called(ctx, ownerKey, cartItemID)
	return args.Bool(0), args.Error(1)
}

func (m *CartItemRepoMock) DeleteByIDs(ctx context.Context, ownerKey string, cartItemIDs []int64) (int64, error) {
	panic("not used in CartUsecase tests")
}

func (m *CartItemRepoMock) ClearByOwner(ctx context.Context, ownerKey string) (int64, error) {
	args := m.Called(ctx, ownerKey)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CartItemRepoMock) Rekey(ctx context.Context, cartItemID int64, fromOwnerKey string, toOwnerKey string) error {
	panic("not used in CartUsecase tests")
}
