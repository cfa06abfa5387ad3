package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 表示用に商品を結合した明細
type CartLine struct {
	ID        int64     `gorm:"column:id"`
	ProductID int64     `gorm:"column:product_id"`
	Quantity  int64     `gorm:"column:quantity"`
	CreatedAt time.Time `gorm:"column:created_at"`
	Name      string    `gorm:"column:name"`
	SKU       string    `gorm:"column:sku"`
	Price     int64     `gorm:"column:price"`
	SalePrice *int64    `gorm:"column:sale_price"`
	Stock     int64     `gorm:"column:stock_quantity"`
}

func (l CartLine) EffectivePrice() int64 {
	return model.EffectivePrice(l.Price, l.SalePrice)
}

// AddQuantity の結果
type CartAddResult struct {
	Item model.CartItem
	// 上限で丸める前の数量（既存 + 追加）
	Requested int64
}

// すべて ownerKey で絞る。他人の明細には触れない。
type CartItemRepository interface {
	// 公開中の商品だけを新しい順（created_at desc, id desc）で返す
	ListLines(ctx context.Context, ownerKey string) ([]CartLine, error)

	// 行ロック付きで全明細を返す（非公開商品の行も含む）
	ListByOwnerForUpdate(ctx context.Context, ownerKey string) ([]model.CartItem, error)

	// 同一商品は数量加算。maxQty > 0 なら結果をその値で頭打ちにする。
	AddQuantity(ctx context.Context, ownerKey string, productID int64, addQty int64, maxQty int64) (CartAddResult, error)

	// 他人の明細なら ErrNotFound
	UpdateQuantity(ctx context.Context, ownerKey string, cartItemID int64, qty int64) error

	// 無くてもエラーにしない（削除したかどうかを返す）
	DeleteByID(ctx context.Context, ownerKey string, cartItemID int64) (bool, error)
	DeleteByIDs(ctx context.Context, ownerKey string, cartItemIDs []int64) (int64, error)
	ClearByOwner(ctx context.Context, ownerKey string) (int64, error)

	// 明細の持ち主を付け替える（セッション → アカウント）
	Rekey(ctx context.Context, cartItemID int64, fromOwnerKey string, toOwnerKey string) error
}
