package model

import (
	"time"

	"gorm.io/gorm"
)

// 商品。価格・在庫の編集は管理画面側で行い、ここでは読むだけ。
// stock_quantity を減らすのは注文確定のトランザクションだけ。
type Product struct {
	ID          int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	SKU         string         `gorm:"column:sku;type:varchar(64);not null;uniqueIndex" json:"sku"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Price       int64          `gorm:"not null" json:"price"`
	SalePrice   *int64         `gorm:"column:sale_price" json:"sale_price,omitempty"`
	Stock       int64          `gorm:"column:stock_quantity;not null;default:0;check:chk_products_stock_nonneg,stock_quantity >= 0" json:"stock_quantity"`
	IsActive    bool           `gorm:"not null;default:false" json:"is_active"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// 実際の販売価格（セール価格が正ならそちら）
func (p Product) EffectivePrice() int64 {
	return EffectivePrice(p.Price, p.SalePrice)
}

func EffectivePrice(price int64, salePrice *int64) int64 {
	if salePrice != nil && *salePrice > 0 {
		return *salePrice
	}
	return price
}
