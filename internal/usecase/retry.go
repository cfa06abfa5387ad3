package usecase

import (
	"context"
	"errors"

	"storefront/internal/infra/metrics"
	repo "storefront/internal/repository"
)

// リトライ回数メトリクスの op ラベル
const (
	retryOpCheckout     = "checkout"
	retryOpMerge        = "merge"
	retryOpStatusUpdate = "order_status"
)

// 書き込み衝突（repo.ErrConflict）のときだけ、最大 maxRetries 回やり直す
func withConflictRetry(ctx context.Context, op string, maxRetries int, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if !errors.Is(err, repo.ErrConflict) {
			return err
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return err
		}
		metrics.ConflictRetriesTotal.WithLabelValues(op).Inc()
	}
}
