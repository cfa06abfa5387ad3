package usecase_test

import (
	"context"
	"testing"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newAdminUsecase(tx repo.TransactionManager) *usecase.AdminOrderUsecase {
	return usecase.NewAdminOrderUsecase(tx, &testutil.RecordingPublisher{}, testutil.NewFixedClock(fixtureStart), zap.NewNop())
}

// =====================
// List tests
// =====================

func TestAdminOrderUsecase_List_InvalidPage(t *testing.T) {
	uc := newAdminUsecase(new(TxManagerMock))

	out, err := uc.List(context.Background(), repo.AdminOrderListFilter{Page: 0, Limit: 20})
	assert.Equal(t, 0, len(out.Items))
	assertErrContains(t, err, "invalid page")
}

func TestAdminOrderUsecase_List_InvalidLimit(t *testing.T) {
	uc := newAdminUsecase(new(TxManagerMock))

	out, err := uc.List(context.Background(), repo.AdminOrderListFilter{Page: 1, Limit: 0})
	assert.Equal(t, 0, len(out.Items))
	assertErrContains(t, err, "invalid limit")
}

func TestAdminOrderUsecase_List_InvalidFilters(t *testing.T) {
	uc := newAdminUsecase(new(TxManagerMock))
	ctx := context.Background()

	_, err := uc.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20, Status: "lost"})
	assertErrContains(t, err, "invalid status")

	_, err = uc.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20, OwnerKey: "user:1"})
	assertErrContains(t, err, "invalid owner")

	from := fixtureStart.AddDate(0, 0, 1)
	to := fixtureStart
	_, err = uc.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20, From: &from, To: &to})
	assertErrContains(t, err, "invalid period")
}

func TestAdminOrderUsecase_List_Success_CallsItemsPerOrder(t *testing.T) {
	ctx := context.Background()

	tx := new(TxManagerMock)
	ordersRepo := new(OrderRepoMock)
	itemsRepo := new(OrderItemRepoMock)

	tx.Repos = &TxReposMock{
		orders:     ordersRepo,
		orderItems: itemsRepo,
	}
	tx.On("WithinTx", mock.Anything).Return(nil)

	// ステータスは小文字に揃えて渡る
	want := repo.AdminOrderListFilter{Page: 1, Limit: 20, Status: "shipped"}

	orders := []model.Order{
		{ID: 10, Status: model.OrderStatusShipped},
		{ID: 11, Status: model.OrderStatusShipped},
	}

	ordersRepo.On("ListAdmin", mock.Anything, want).Return(orders, int64(2), nil)
	itemsRepo.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	itemsRepo.On("ListByOrderID", mock.Anything, int64(11)).Return([]model.OrderItem{}, nil)

	uc := newAdminUsecase(tx)

	out, err := uc.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 20, Status: " SHIPPED "})
	assert.NoError(t, err)
	assert.Equal(t, 2, len(out.Items))
	assert.Equal(t, int64(2), out.Total)

	tx.AssertExpectations(t)
	ordersRepo.AssertExpectations(t)
	itemsRepo.AssertExpectations(t)
}

// =====================
// UpdateStatus tests（mock）
// =====================

func TestAdminOrderUsecase_UpdateStatus_UnauthorizedActor(t *testing.T) {
	uc := newAdminUsecase(new(TxManagerMock))

	_, err := uc.UpdateStatus(context.Background(), 0, 1, usecase.AdminUpdateOrderStatusInput{Status: "confirmed"})
	assertErrContains(t, err, "unauthorized")
}

func TestAdminOrderUsecase_UpdateStatus_InvalidOrderID(t *testing.T) {
	uc := newAdminUsecase(new(TxManagerMock))

	_, err := uc.UpdateStatus(context.Background(), 1, 0, usecase.AdminUpdateOrderStatusInput{Status: "confirmed"})
	assertErrContains(t, err, "invalid id")
}

func TestAdminOrderUsecase_UpdateStatus_InvalidStatus(t *testing.T) {
	uc := newAdminUsecase(new(TxManagerMock))

	_, err := uc.UpdateStatus(context.Background(), 1, 1, usecase.AdminUpdateOrderStatusInput{Status: "XXX"})
	assertErrContains(t, err, "invalid status")
}

func TestAdminOrderUsecase_UpdateStatus_NotFound(t *testing.T) {
	ctx := context.Background()

	tx := new(TxManagerMock)
	ordersRepo := new(OrderRepoMock)

	tx.Repos = &TxReposMock{orders: ordersRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	orderID := int64(99)
	ordersRepo.On("FindByID", mock.Anything, orderID).Return(model.Order{}, repo.ErrNotFound)

	uc := newAdminUsecase(tx)

	_, err := uc.UpdateStatus(ctx, 1, orderID, usecase.AdminUpdateOrderStatusInput{Status: "confirmed"})
	assertErrContains(t, err, "not found")

	ordersRepo.AssertExpectations(t)
}

func TestAdminOrderUsecase_UpdateStatus_SameStatus_NoOp(t *testing.T) {
	ctx := context.Background()

	tx := new(TxManagerMock)
	audit := new(AuditRepoMock)
	ordersRepo := new(OrderRepoMock)
	itemsRepo := new(OrderItemRepoMock)

	tx.Repos = &TxReposMock{orders: ordersRepo, orderItems: itemsRepo, auditLogs: audit}
	tx.On("WithinTx", mock.Anything).Return(nil)

	orderID := int64(1)
	ordersRepo.On("FindByID", mock.Anything, orderID).Return(model.Order{
		ID:     orderID,
		Status: model.OrderStatusShipped,
	}, nil)
	itemsRepo.On("ListByOrderID", mock.Anything, orderID).Return([]model.OrderItem{}, nil)

	uc := newAdminUsecase(tx)

	out, err := uc.UpdateStatus(ctx, 1, orderID, usecase.AdminUpdateOrderStatusInput{Status: "SHIPPED"})
	assert.NoError(t, err)
	assert.Equal(t, "shipped", out.Status)

	ordersRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateStatus_CannotChangeCancelled(t *testing.T) {
	ctx := context.Background()

	tx := new(TxManagerMock)
	audit := new(AuditRepoMock)
	ordersRepo := new(OrderRepoMock)

	tx.Repos = &TxReposMock{orders: ordersRepo, auditLogs: audit}
	tx.On("WithinTx", mock.Anything).Return(nil)

	ordersRepo.On("FindByID", mock.Anything, int64(1)).Return(model.Order{
		ID:     1,
		Status: model.OrderStatusCancelled,
	}, nil)

	uc := newAdminUsecase(tx)

	_, err := uc.UpdateStatus(ctx, 1, 1, usecase.AdminUpdateOrderStatusInput{Status: "confirmed"})
	he := assertCode(t, err, usecase.CodeInvalidTransition)
	assert.Equal(t, 409, he.Status)

	ordersRepo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateStatus_LostRaceRetriesThenConflict(t *testing.T) {
	ctx := context.Background()

	tx := new(TxManagerMock)
	ordersRepo := new(OrderRepoMock)

	tx.Repos = &TxReposMock{orders: ordersRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)

	ordersRepo.On("FindByID", mock.Anything, int64(1)).Return(model.Order{
		ID:     1,
		Status: model.OrderStatusPending,
	}, nil)
	// 毎回ほかの管理者に先を越される
	ordersRepo.On("UpdateStatus", mock.Anything, int64(1), model.OrderStatusPending, model.OrderStatusConfirmed).Return(false, nil)

	uc := newAdminUsecase(tx)

	_, err := uc.UpdateStatus(ctx, 1, 1, usecase.AdminUpdateOrderStatusInput{Status: "confirmed"})
	assertCode(t, err, usecase.CodeConflict)

	// 初回 + 2回
	tx.AssertNumberOfCalls(t, "WithinTx", 3)
}

// =====================
// UpdateStatus tests（SQLite）
// =====================

func placeSampleOrder(t *testing.T, f *fixture, stock int64) (usecase.OrderOutput, model.Product) {
	t.Helper()

	p := testutil.SeedProduct(t, f.db, "SKU-A", 1000, stock)
	owner := testutil.MustAnonymous(t, "s1")
	f.addToCart(t, owner, p.ID, 2)

	out, err := f.orders.PlaceOrder(context.Background(), owner, usecase.CartSource(), usecase.PlaceOrderInput{Customer: validCustomer()})
	require.NoError(t, err)
	return out, p
}

func TestAdminOrderUsecase_UpdateStatus_WritesAuditLog(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := placeSampleOrder(t, f, 10)

	out, err := f.admin.UpdateStatus(ctx, 7, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, "confirmed", out.Status)
	assert.Len(t, out.Items, 1)

	var logs []model.AuditLog
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(7), logs[0].ActorUserID)
	assert.Equal(t, model.AuditActionUpdateOrderStatus, logs[0].Action)
	assert.Equal(t, model.AuditResourceOrder, logs[0].ResourceType)
	assert.Equal(t, order.ID, logs[0].ResourceID)
	assert.JSONEq(t, `{"status":"pending"}`, logs[0].BeforeJSON)
	assert.JSONEq(t, `{"status":"confirmed"}`, logs[0].AfterJSON)

	// placed + status_changed
	require.Equal(t, 2, f.pub.Count())
	ev, ok := f.pub.Events[1].(model.OrderStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, model.OrderStatusPending, ev.From)
	assert.Equal(t, model.OrderStatusConfirmed, ev.To)
	assert.Equal(t, int64(7), ev.ActorUserID)
}

func TestAdminOrderUsecase_UpdateStatus_FullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := placeSampleOrder(t, f, 10)

	for _, st := range []string{"confirmed", "processing", "shipped", "delivered"} {
		out, err := f.admin.UpdateStatus(ctx, 1, order.ID, usecase.AdminUpdateOrderStatusInput{Status: st})
		require.NoError(t, err, st)
		assert.Equal(t, st, out.Status)
	}
	assert.Equal(t, int64(4), testutil.CountRows(t, f.db, &model.AuditLog{}))

	// 終端からは動かない
	_, err := f.admin.UpdateStatus(ctx, 1, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "cancelled"})
	assertCode(t, err, usecase.CodeInvalidTransition)
}

func TestAdminOrderUsecase_UpdateStatus_SkippingStepsRejected(t *testing.T) {
	f := newFixture(t)
	order, _ := placeSampleOrder(t, f, 10)

	_, err := f.admin.UpdateStatus(context.Background(), 1, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "delivered"})
	assertCode(t, err, usecase.CodeInvalidTransition)
	assert.Zero(t, testutil.CountRows(t, f.db, &model.AuditLog{}))
}

func TestAdminOrderUsecase_UpdateStatus_CancelDoesNotRestock(t *testing.T) {
	f := newFixture(t)
	order, p := placeSampleOrder(t, f, 10)
	require.Equal(t, int64(8), testutil.ReloadProduct(t, f.db, p.ID).Stock)

	out, err := f.admin.UpdateStatus(context.Background(), 1, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "cancelled"})
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out.Status)
	assert.Equal(t, int64(8), testutil.ReloadProduct(t, f.db, p.ID).Stock)
}

func TestAdminOrderUsecase_List_SQLite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := placeSampleOrder(t, f, 10)

	out, err := f.admin.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 50, OwnerKey: "session:s1"})
	require.NoError(t, err)
	require.Len(t, out.Items, 1)
	assert.Equal(t, order.OrderNumber, out.Items[0].OrderNumber)

	out, err = f.admin.List(ctx, repo.AdminOrderListFilter{Page: 1, Limit: 50, Status: "cancelled"})
	require.NoError(t, err)
	assert.Empty(t, out.Items)
}

// =====================
// OrderHistory
// =====================

func TestAdminOrderUsecase_OrderHistory_InvalidInput(t *testing.T) {
	uc := newAdminUsecase(new(TxManagerMock))
	ctx := context.Background()

	_, err := uc.OrderHistory(ctx, 0, usecase.OrderHistoryFilter{Page: 1, Limit: 10})
	assertCode(t, err, usecase.CodeInvalidInput)

	_, err = uc.OrderHistory(ctx, 1, usecase.OrderHistoryFilter{Page: 0, Limit: 10})
	assertCode(t, err, usecase.CodeInvalidInput)

	_, err = uc.OrderHistory(ctx, 1, usecase.OrderHistoryFilter{Page: 1, Limit: 101})
	assertCode(t, err, usecase.CodeInvalidInput)
}

func TestAdminOrderUsecase_OrderHistory_NotFound(t *testing.T) {
	tx := new(TxManagerMock)
	ordersRepo := new(OrderRepoMock)
	auditRepo := new(AuditRepoMock)

	tx.Repos = &TxReposMock{orders: ordersRepo, auditLogs: auditRepo}
	tx.On("WithinTx", mock.Anything).Return(nil)
	ordersRepo.On("FindByID", mock.Anything, int64(99)).Return(model.Order{}, repo.ErrNotFound)

	_, err := newAdminUsecase(tx).OrderHistory(context.Background(), 99, usecase.OrderHistoryFilter{Page: 1, Limit: 10})
	assertCode(t, err, usecase.CodeNotFound)

	auditRepo.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_OrderHistory_SQLite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order, _ := placeSampleOrder(t, f, 10)

	for _, st := range []string{"confirmed", "processing", "cancelled"} {
		_, err := f.admin.UpdateStatus(ctx, 5, order.ID, usecase.AdminUpdateOrderStatusInput{Status: st})
		require.NoError(t, err, st)
	}

	out, err := f.admin.OrderHistory(ctx, order.ID, usecase.OrderHistoryFilter{Page: 1, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, out.OrderNumber)
	assert.Equal(t, int64(3), out.Total)
	require.Len(t, out.Items, 3)

	assert.Equal(t, model.OrderStatusPending, out.Items[0].From)
	assert.Equal(t, model.OrderStatusConfirmed, out.Items[0].To)
	assert.Equal(t, model.OrderStatusProcessing, out.Items[2].From)
	assert.Equal(t, model.OrderStatusCancelled, out.Items[2].To)
	assert.Equal(t, int64(5), out.Items[2].ActorUserID)
	assert.Equal(t, string(model.AuditActionUpdateOrderStatus), out.Items[2].Action)

	// 同じステータスへの更新は履歴に残らない
	_, err = f.admin.UpdateStatus(ctx, 5, order.ID, usecase.AdminUpdateOrderStatusInput{Status: "cancelled"})
	require.NoError(t, err)
	out, err = f.admin.OrderHistory(ctx, order.ID, usecase.OrderHistoryFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), out.Total)
	require.Len(t, out.Items, 1)
	assert.Equal(t, model.OrderStatusCancelled, out.Items[0].To)
}
