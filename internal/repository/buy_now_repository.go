package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 今すぐ購入セッションの保存先。cart_items には一切触れない。
type BuyNowRepository interface {
	// 同じトークンがあれば明細ごと置き換える
	Save(ctx context.Context, s model.BuyNowSession) error

	// 明細込みで取得
	FindByToken(ctx context.Context, token string) (model.BuyNowSession, error)
	FindByTokenForUpdate(ctx context.Context, token string) (model.BuyNowSession, error)

	// 未使用のときだけ使用済みにする（既に使用済みなら false）
	MarkConsumed(ctx context.Context, token string, at time.Time) (bool, error)

	// 未使用の期限切れと、consumedBefore より前に使用済みになったものを掃除
	DeleteStale(ctx context.Context, now time.Time, consumedBefore time.Time) (int64, error)
}
