package repository

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CartItemGormRepository struct {
	db *gorm.DB
}

// DI
func NewCartItemGormRepository(db *gorm.DB) *CartItemGormRepository {
	return &CartItemGormRepository{db: db}
}

// 公開中の商品を結合して、新しい順に返す
func (r *CartItemGormRepository) ListLines(ctx context.Context, ownerKey string) ([]repo.CartLine, error) {
	var lines []repo.CartLine

	err := r.db.WithContext(ctx).
		Table("cart_items").
		Select("cart_items.id, cart_items.product_id, cart_items.quantity, cart_items.created_at, " +
			"products.name, products.sku, products.price, products.sale_price, products.stock_quantity").
		Joins("JOIN products ON products.id = cart_items.product_id").
		Where("cart_items.owner_key = ?", ownerKey).
		// 非公開・削除済みは見せないだけで、行は消さない
		Where("products.is_active = ? AND products.deleted_at IS NULL", true).
		Order("cart_items.created_at desc").
		Order("cart_items.id desc").
		Scan(&lines).Error
	if err != nil {
		return []repo.CartLine{}, err
	}
	return lines, nil
}

// 行ロック付きで全明細を取得（注文確定・マージ用）
func (r *CartItemGormRepository) ListByOwnerForUpdate(ctx context.Context, ownerKey string) ([]model.CartItem, error) {
	var items []model.CartItem

	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_key = ?", ownerKey).
		Order("product_id asc").
		Find(&items).Error
	if err != nil {
		return []model.CartItem{}, classify(err)
	}
	return items, nil
}

// 同一商品は数量加算（INSERT ... ON CONFLICT DO UPDATE で1文にまとめる）
func (r *CartItemGormRepository) AddQuantity(ctx context.Context, ownerKey string, productID int64, addQty int64, maxQty int64) (repo.CartAddResult, error) {
	if addQty <= 0 {
		return repo.CartAddResult{}, errors.New("invalid quantity")
	}

	initial := addQty
	if maxQty > 0 && initial > maxQty {
		initial = maxQty
	}

	sum := gorm.Expr("cart_items.quantity + excluded.quantity")
	if maxQty > 0 {
		sum = gorm.Expr(
			"CASE WHEN cart_items.quantity + excluded.quantity > ? THEN ? ELSE cart_items.quantity + excluded.quantity END",
			maxQty, maxQty,
		)
	}

	var out repo.CartAddResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//既存の数量（丸めたかどうかの判定用）
		var prev model.CartItem
		findErr := tx.
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_key = ? AND product_id = ?", ownerKey, productID).
			First(&prev).Error
		if findErr != nil && !isNotFound(findErr) {
			return findErr
		}

		now := time.Now()
		item := model.CartItem{
			OwnerKey:  ownerKey,
			ProductID: productID,
			Quantity:  initial,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "owner_key"}, {Name: "product_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"quantity":   sum,
				"updated_at": now,
			}),
		}).Create(&item).Error; err != nil {
			return err
		}

		//更新後の行を読み直す
		var saved model.CartItem
		if err := tx.
			Where("owner_key = ? AND product_id = ?", ownerKey, productID).
			First(&saved).Error; err != nil {
			return err
		}

		out = repo.CartAddResult{
			Item:      saved,
			Requested: prev.Quantity + addQty,
		}
		return nil
	})
	if err != nil {
		return repo.CartAddResult{}, classify(err)
	}
	return out, nil
}

// 明細の数量を更新（持ち主が違えば ErrNotFound）
func (r *CartItemGormRepository) UpdateQuantity(ctx context.Context, ownerKey string, cartItemID int64, qty int64) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ? AND owner_key = ?", cartItemID, ownerKey).
		Updates(map[string]interface{}{
			"quantity":   qty,
			"updated_at": time.Now(),
		})

	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 明細を削除（無ければ false）
func (r *CartItemGormRepository) DeleteByID(ctx context.Context, ownerKey string, cartItemID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("id = ? AND owner_key = ?", cartItemID, ownerKey).
		Delete(&model.CartItem{})

	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// 注文に使った明細だけを削除
func (r *CartItemGormRepository) DeleteByIDs(ctx context.Context, ownerKey string, cartItemIDs []int64) (int64, error) {
	if len(cartItemIDs) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).
		Where("owner_key = ? AND id IN ?", ownerKey, cartItemIDs).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return res.RowsAffected, nil
}

// 持ち主の明細を全削除
func (r *CartItemGormRepository) ClearByOwner(ctx context.Context, ownerKey string) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("owner_key = ?", ownerKey).
		Delete(&model.CartItem{})
	if res.Error != nil {
		return 0, classify(res.Error)
	}
	return res.RowsAffected, nil
}

// 明細の持ち主を付け替える
func (r *CartItemGormRepository) Rekey(ctx context.Context, cartItemID int64, fromOwnerKey string, toOwnerKey string) error {
	res := r.db.WithContext(ctx).
		Model(&model.CartItem{}).
		Where("id = ? AND owner_key = ?", cartItemID, fromOwnerKey).
		Updates(map[string]interface{}{
			"owner_key":  toOwnerKey,
			"updated_at": time.Now(),
		})

	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
