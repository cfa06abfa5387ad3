package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/infra/metrics"
	repo "storefront/internal/repository"

	"go.uber.org/zap"
)

// ステータス更新の衝突リトライ回数
const statusUpdateMaxRetries = 2

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	publisher EventPublisher
	clock     Clock
	log       *zap.Logger
}

func NewAdminOrderUsecase(tx repo.TransactionManager, publisher EventPublisher, clock Clock, log *zap.Logger) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, publisher: publisher, clock: clock, log: log}
}

type AdminUpdateOrderStatusInput struct {
	Status string
}

type statusSnapshot struct {
	Status model.OrderStatus `json:"status"`
}

// 注文一覧（管理者用）
func (u *AdminOrderUsecase) List(ctx context.Context, f repo.AdminOrderListFilter) (OrderListOutput, error) {
	// page/limitの最低限チェック
	if f.Page < 1 {
		return OrderListOutput{}, errInvalidInput("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderListOutput{}, errInvalidInput("invalid limit")
	}
	if f.Status != "" {
		st, ok := model.ParseOrderStatus(strings.ToLower(strings.TrimSpace(f.Status)))
		if !ok {
			return OrderListOutput{}, errInvalidInput("invalid status")
		}
		f.Status = string(st)
	}
	if f.OwnerKey != "" {
		if _, err := model.ParseOwnerKey(f.OwnerKey); err != nil {
			return OrderListOutput{}, errInvalidInput("invalid owner")
		}
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return OrderListOutput{}, errInvalidInput("invalid period")
	}

	out := OrderListOutput{Page: f.Page, Limit: f.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, f)
		if err != nil {
			return err
		}
		out.Total = total

		out.Items = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return err
			}
			out.Items = append(out.Items, toOrderOutput(o, items))
		}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, toHTTPError(err)
	}
	return out, nil
}

type OrderHistoryFilter struct {
	Page  int
	Limit int
	From  *time.Time
	To    *time.Time
}

// 監査ログ1件。before/after のJSONからステータスを取り出して返す。
type OrderHistoryEntry struct {
	ID          int64             `json:"id"`
	ActorUserID int64             `json:"actor_user_id"`
	Action      string            `json:"action"`
	From        model.OrderStatus `json:"from"`
	To          model.OrderStatus `json:"to"`
	CreatedAt   time.Time         `json:"created_at"`
}

type OrderHistoryOutput struct {
	OrderID     int64               `json:"order_id"`
	OrderNumber string              `json:"order_number"`
	Items       []OrderHistoryEntry `json:"items"`
	Total       int64               `json:"total"`
	Page        int                 `json:"page"`
	Limit       int                 `json:"limit"`
}

// OrderHistory は注文ごとのステータス変更履歴（古い順）
func (u *AdminOrderUsecase) OrderHistory(ctx context.Context, orderID int64, f OrderHistoryFilter) (OrderHistoryOutput, error) {
	if orderID <= 0 {
		return OrderHistoryOutput{}, errInvalidInput("invalid id")
	}
	if f.Page < 1 {
		return OrderHistoryOutput{}, errInvalidInput("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderHistoryOutput{}, errInvalidInput("invalid limit")
	}
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return OrderHistoryOutput{}, errInvalidInput("invalid period")
	}

	out := OrderHistoryOutput{OrderID: orderID, Page: f.Page, Limit: f.Limit}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return errNotFound("order not found")
		}
		if err != nil {
			return err
		}
		out.OrderNumber = o.OrderNumber

		logs, total, err := r.AuditLogs().List(ctx, repo.AuditLogFilter{
			ResourceType: model.AuditResourceOrder,
			ResourceID:   o.ID,
			Action:       model.AuditActionUpdateOrderStatus,
			From:         f.From,
			To:           f.To,
			Page:         f.Page,
			Limit:        f.Limit,
		})
		if err != nil {
			return err
		}
		out.Total = total

		out.Items = make([]OrderHistoryEntry, 0, len(logs))
		for _, l := range logs {
			var before, after statusSnapshot
			// 壊れたJSONは空ステータスのまま返す
			_ = json.Unmarshal([]byte(l.BeforeJSON), &before)
			_ = json.Unmarshal([]byte(l.AfterJSON), &after)

			out.Items = append(out.Items, OrderHistoryEntry{
				ID:          l.ID,
				ActorUserID: l.ActorUserID,
				Action:      string(l.Action),
				From:        before.Status,
				To:          after.Status,
				CreatedAt:   l.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return OrderHistoryOutput{}, toHTTPError(err)
	}
	return out, nil
}

// UpdateStatus は許可された遷移だけ通す。同じステータスなら何もしない。
// 在庫は戻さない（在庫を書くのは注文確定だけ）。
func (u *AdminOrderUsecase) UpdateStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in AdminUpdateOrderStatusInput) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, errUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, errInvalidInput("invalid id")
	}

	next, ok := model.ParseOrderStatus(strings.ToLower(strings.TrimSpace(in.Status)))
	if !ok {
		return OrderOutput{}, errInvalidInput("invalid status")
	}

	var (
		out     OrderOutput
		from    model.OrderStatus
		changed bool
	)

	err := withConflictRetry(ctx, retryOpStatusUpdate, statusUpdateMaxRetries, func() error {
		changed = false
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			o, err := r.Orders().FindByID(ctx, orderID)
			if errors.Is(err, repo.ErrNotFound) {
				return errNotFound("order not found")
			}
			if err != nil {
				return err
			}
			from = o.Status

			if o.Status != next {
				if !o.Status.CanTransitionTo(next) {
					return errInvalidTransition(string(o.Status), string(next))
				}

				// 読んだときのステータスのままなら更新（他の管理者と競合したらやり直し）
				updated, err := r.Orders().UpdateStatus(ctx, o.ID, o.Status, next)
				if err != nil {
					return err
				}
				if !updated {
					return repo.ErrConflict
				}

				// ★監査ログ（UPDATE_ORDER_STATUS）
				before, _ := json.Marshal(statusSnapshot{Status: o.Status})
				after, _ := json.Marshal(statusSnapshot{Status: next})
				if err := r.AuditLogs().Create(ctx, model.AuditLog{
					ActorUserID:  actorAdminUserID,
					Action:       model.AuditActionUpdateOrderStatus,
					ResourceType: model.AuditResourceOrder,
					ResourceID:   o.ID,
					BeforeJSON:   string(before),
					AfterJSON:    string(after),
					CreatedAt:    u.clock.Now(),
				}); err != nil {
					return err
				}

				o.Status = next
				changed = true
			}

			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return err
			}
			out = toOrderOutput(o, items)
			return nil
		})
	})
	if errors.Is(err, repo.ErrConflict) {
		return OrderOutput{}, errConflict("order was updated by another request, please retry")
	}
	if err != nil {
		if _, ok := AsHTTPError(err); !ok {
			u.log.Error("order status update failed", zap.Int64("order_id", orderID), zap.Error(err))
		}
		return OrderOutput{}, toHTTPError(err)
	}

	if changed {
		metrics.OrderTransitionsTotal.WithLabelValues(string(from), string(next)).Inc()
		u.log.Info("order status changed",
			zap.String("order_number", out.OrderNumber),
			zap.String("from", string(from)),
			zap.String("to", string(next)),
			zap.Int64("actor", actorAdminUserID),
		)
		u.publish(ctx, out.OrderNumber, model.OrderStatusChangedEvent{
			Type:        model.EventOrderStatusChanged,
			OrderNumber: out.OrderNumber,
			From:        from,
			To:          next,
			ActorUserID: actorAdminUserID,
			OccurredAt:  u.clock.Now(),
		})
	}

	return out, nil
}

func (u *AdminOrderUsecase) publish(ctx context.Context, key string, event interface{}) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
	defer cancel()

	if err := u.publisher.Publish(ctx, key, event); err != nil {
		u.log.Warn("order event publish failed", zap.String("order_number", key), zap.Error(err))
	}
}
