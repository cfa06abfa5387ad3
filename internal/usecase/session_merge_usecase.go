package usecase

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
	"storefront/internal/infra/metrics"
	"storefront/internal/infra/tracing"
	repo "storefront/internal/repository"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SessionMergeUsecase はログイン時に未ログインカートをアカウントのカートへ寄せる。
type SessionMergeUsecase struct {
	tx         repo.TransactionManager
	maxRetries int
	log        *zap.Logger
}

func NewSessionMergeUsecase(tx repo.TransactionManager, maxRetries int, log *zap.Logger) *SessionMergeUsecase {
	return &SessionMergeUsecase{tx: tx, maxRetries: maxRetries, log: log}
}

type MergeOutput struct {
	// 同じ商品があって数量を足した行
	Merged int `json:"merged"`
	// そのまま持ち主を付け替えた行
	Moved int `json:"moved"`
}

// Merge はセッションの明細をアカウントへ移す。
// 同じ商品は数量を合算して在庫で頭打ち、無い商品は行ごと付け替え、最後にセッション側を空にする。
// セッション側が空なら何もしない（2回呼んでも同じ結果）。
func (u *SessionMergeUsecase) Merge(ctx context.Context, from model.Owner, to model.Owner) (MergeOutput, error) {
	if !from.IsAnonymous() {
		return MergeOutput{}, errInvalidInput("merge source must be a session")
	}
	if !to.IsAccount() {
		return MergeOutput{}, errUnauthorized()
	}

	ctx, span := tracing.StartSpan(ctx, "usecase.MergeSessionCart")
	defer span.End()

	var out MergeOutput

	err := withConflictRetry(ctx, retryOpMerge, u.maxRetries, func() error {
		out = MergeOutput{}
		return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			return u.mergeTx(ctx, r, from, to, &out)
		})
	})
	if errors.Is(err, repo.ErrConflict) {
		return MergeOutput{}, errConflict("cart is being updated, please retry")
	}
	if err != nil {
		u.log.Error("cart merge failed",
			zap.String("from", from.Key()),
			zap.String("to", to.Key()),
			zap.Error(err),
		)
		return MergeOutput{}, toHTTPError(err)
	}

	span.SetAttributes(
		attribute.Int("cart.merged", out.Merged),
		attribute.Int("cart.moved", out.Moved),
	)
	if out.Merged+out.Moved > 0 {
		metrics.CartMutationsTotal.WithLabelValues("merge").Inc()
		u.log.Info("session cart merged",
			zap.String("to", to.Key()),
			zap.Int("merged", out.Merged),
			zap.Int("moved", out.Moved),
		)
	}
	return out, nil
}

func (u *SessionMergeUsecase) mergeTx(ctx context.Context, r repo.TxRepos, from, to model.Owner, out *MergeOutput) error {
	sessionItems, err := r.CartItems().ListByOwnerForUpdate(ctx, from.Key())
	if err != nil {
		return err
	}
	if len(sessionItems) == 0 {
		return nil
	}

	accountItems, err := r.CartItems().ListByOwnerForUpdate(ctx, to.Key())
	if err != nil {
		return err
	}
	byProduct := make(map[int64]model.CartItem, len(accountItems))
	for _, it := range accountItems {
		byProduct[it.ProductID] = it
	}

	for _, s := range sessionItems {
		existing, ok := byProduct[s.ProductID]
		if !ok {
			if err := r.CartItems().Rekey(ctx, s.ID, from.Key(), to.Key()); err != nil {
				return err
			}
			out.Moved++
			continue
		}

		stock := existing.Quantity
		p, err := r.Products().FindByID(ctx, s.ProductID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err == nil {
			stock = p.Stock
		}

		qty := mergedQuantity(existing.Quantity, s.Quantity, stock)
		if qty != existing.Quantity {
			if err := r.CartItems().UpdateQuantity(ctx, to.Key(), existing.ID, qty); err != nil {
				return err
			}
		}
		out.Merged++
	}

	// 付け替えなかった行（合算済み）を消す
	if _, err := r.CartItems().ClearByOwner(ctx, from.Key()); err != nil {
		return err
	}
	return nil
}

// 合算して在庫で頭打ち（アカウント側の元の数量より減ることもある）。在庫0でも行は残すので最低1。
func mergedQuantity(accountQty, sessionQty, stock int64) int64 {
	sum := accountQty + sessionQty
	if sum > stock {
		sum = stock
	}
	if sum < 1 {
		sum = 1
	}
	return sum
}
