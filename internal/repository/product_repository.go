package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 商品の読み取りだけを約束（価格・在庫の編集は管理側）。
type ProductRepository interface {
	// 論理削除済みは ErrNotFound
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindByIDs(ctx context.Context, ids []int64) (map[int64]model.Product, error)
}
