package model

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// 許可される遷移の一覧。ここに無い遷移はすべて不可。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	switch st {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, true
	}
	return "", false
}

// 終端（delivered / cancelled）
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// 注文の作成元
type OrderSource string

const (
	OrderSourceCart   OrderSource = "cart"
	OrderSourceBuyNow OrderSource = "buy_now"
)

// 注文。作成後に変わるのは status だけ。削除はしない（キャンセルも status）。
type Order struct {
	ID              int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber     string      `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_number"`
	OwnerKey        string      `gorm:"type:varchar(160);not null;index;uniqueIndex:ux_orders_owner_idem,priority:1" json:"-"`
	Source          OrderSource `gorm:"type:varchar(20);not null" json:"source"`
	Status          OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	TotalAmount     int64       `gorm:"not null" json:"total_amount"`
	CustomerName    string      `gorm:"type:varchar(255);not null" json:"customer_name"`
	CustomerEmail   string      `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerPhone   string      `gorm:"type:varchar(30)" json:"customer_phone"`
	ShippingAddress string      `gorm:"type:text;not null" json:"shipping_address"`
	IdempotencyKey  *string     `gorm:"type:varchar(255);uniqueIndex:ux_orders_owner_idem,priority:2" json:"-"`
	CreatedAt       time.Time   `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time   `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
