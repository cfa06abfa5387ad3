package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// buy_now_sessions / buy_now_items だけを扱う。cart_items には触れない。
type BuyNowGormRepository struct {
	db *gorm.DB
}

func NewBuyNowGormRepository(db *gorm.DB) *BuyNowGormRepository {
	return &BuyNowGormRepository{db: db}
}

// セッションを保存（同じトークンなら明細ごと置き換え）
func (r *BuyNowGormRepository) Save(ctx context.Context, s model.BuyNowSession) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		header := model.BuyNowSession{
			Token:     s.Token,
			ExpiresAt: s.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "token"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"expires_at": s.ExpiresAt,
				"updated_at": now,
			}),
		}).Omit("Items").Create(&header).Error; err != nil {
			return err
		}

		//明細は入れ替え
		if err := tx.Where("session_token = ?", s.Token).Delete(&model.BuyNowItem{}).Error; err != nil {
			return err
		}
		if len(s.Items) == 0 {
			return nil
		}

		items := make([]model.BuyNowItem, 0, len(s.Items))
		for _, it := range s.Items {
			items = append(items, model.BuyNowItem{
				SessionToken: s.Token,
				ProductID:    it.ProductID,
				Quantity:     it.Quantity,
				CreatedAt:    now,
			})
		}
		return tx.Create(&items).Error
	})
	return classify(err)
}

func (r *BuyNowGormRepository) FindByToken(ctx context.Context, token string) (model.BuyNowSession, error) {
	return r.find(r.db.WithContext(ctx), token)
}

// 注文確定用（行ロック付き）
func (r *BuyNowGormRepository) FindByTokenForUpdate(ctx context.Context, token string) (model.BuyNowSession, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), token)
}

func (r *BuyNowGormRepository) find(q *gorm.DB, token string) (model.BuyNowSession, error) {
	var s model.BuyNowSession

	err := q.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("buy_now_items.id asc")
		}).
		Where("token = ?", token).
		First(&s).Error
	if isNotFound(err) {
		return model.BuyNowSession{}, repo.ErrNotFound
	}
	if err != nil {
		return model.BuyNowSession{}, classify(err)
	}
	return s, nil
}

// 未使用のときだけ使用済みにする
func (r *BuyNowGormRepository) MarkConsumed(ctx context.Context, token string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.BuyNowSession{}).
		Where("token = ? AND consumed_at IS NULL", token).
		Updates(map[string]interface{}{
			"consumed_at": at,
			"updated_at":  at,
		})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	return res.RowsAffected > 0, nil
}

// 未使用で期限切れのセッションと、consumedBefore より前に使われたセッションを明細ごと削除。
// 使用済みは使った直後には消さない（同じトークンで作り直されないように）。
func (r *BuyNowGormRepository) DeleteStale(ctx context.Context, now time.Time, consumedBefore time.Time) (int64, error) {
	var deleted int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		stale := tx.Model(&model.BuyNowSession{}).
			Select("token").
			Where("(consumed_at IS NULL AND expires_at <= ?) OR consumed_at <= ?", now, consumedBefore)

		if err := tx.Where("session_token IN (?)", stale).Delete(&model.BuyNowItem{}).Error; err != nil {
			return err
		}

		res := tx.Where("(consumed_at IS NULL AND expires_at <= ?) OR consumed_at <= ?", now, consumedBefore).Delete(&model.BuyNowSession{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	if err != nil {
		return 0, classify(err)
	}
	return deleted, nil
}
