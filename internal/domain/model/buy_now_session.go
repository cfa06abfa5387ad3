package model

import "time"

// 今すぐ購入の一時セッション。
// cart_items とは完全に別テーブルで、お互いに読み書きしない。
type BuyNowSession struct {
	Token      string       `gorm:"type:varchar(64);primaryKey" json:"token"`
	ExpiresAt  time.Time    `gorm:"not null;index" json:"expires_at"`
	ConsumedAt *time.Time   `gorm:"index" json:"consumed_at,omitempty"`
	Items      []BuyNowItem `gorm:"foreignKey:SessionToken;references:Token;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt  time.Time    `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time    `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

type BuyNowItem struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionToken string    `gorm:"type:varchar(64);not null;index" json:"-"`
	ProductID    int64     `gorm:"not null" json:"product_id"`
	Quantity     int64     `gorm:"not null" json:"quantity"`
	CreatedAt    time.Time `gorm:"not null;autoCreateTime" json:"-"`
}

func (s BuyNowSession) IsConsumed() bool {
	return s.ConsumedAt != nil
}

func (s BuyNowSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// 注文に使えるか（期限内かつ未使用）
func (s BuyNowSession) IsUsable(now time.Time) bool {
	return !s.IsConsumed() && !s.IsExpired(now)
}
