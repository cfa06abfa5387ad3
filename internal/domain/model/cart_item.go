package model

import "time"

// カートの明細
// owner_key + product_id で一意（同一商品は数量加算）。
// 価格は持たない。表示・注文時に商品から引き直す。
type CartItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerKey  string    `gorm:"type:varchar(160);not null;uniqueIndex:ux_cart_items_owner_product,priority:1" json:"-"`
	ProductID int64     `gorm:"not null;uniqueIndex:ux_cart_items_owner_product,priority:2;index" json:"product_id"`
	Quantity  int64     `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
