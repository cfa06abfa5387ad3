package model

import "time"

const (
	EventOrderPlaced        = "order.placed"
	EventOrderStatusChanged = "order.status_changed"
)

// 分析・通知向けに外へ流すイベント
type OrderPlacedEvent struct {
	Type        string      `json:"type"`
	OrderNumber string      `json:"order_number"`
	OwnerKind   OwnerKind   `json:"owner_kind"`
	Source      OrderSource `json:"source"`
	TotalAmount int64       `json:"total_amount"`
	ItemCount   int64       `json:"item_count"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

type OrderStatusChangedEvent struct {
	Type        string      `json:"type"`
	OrderNumber string      `json:"order_number"`
	From        OrderStatus `json:"from"`
	To          OrderStatus `json:"to"`
	ActorUserID int64       `json:"actor_user_id"`
	OccurredAt  time.Time   `json:"occurred_at"`
}
