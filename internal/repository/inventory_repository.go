package repository

import "context"

// 在庫の書き込みはこれだけ。注文確定のトランザクション内からのみ呼ぶ。
type InventoryRepository interface {
	// 在庫が足りるときだけ減算（足りなければ false）
	DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error)
}
