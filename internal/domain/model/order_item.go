package model

import "time"

// 注文明細。購入時点の商品名・SKU・単価のスナップショット。
// 商品側の価格変更や削除の影響を受けない。
type OrderItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64     `gorm:"not null;index" json:"order_id"`
	ProductID           int64     `gorm:"not null;index" json:"product_id"`
	ProductNameSnapshot string    `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	SKUSnapshot         string    `gorm:"column:sku_snapshot;type:varchar(64);not null" json:"sku_snapshot"`
	UnitPriceSnapshot   int64     `gorm:"not null" json:"unit_price_snapshot"`
	Quantity            int64     `gorm:"not null" json:"quantity"`
	LineTotal           int64     `gorm:"not null" json:"line_total"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}
