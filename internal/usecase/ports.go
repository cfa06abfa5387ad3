package usecase

import (
	"context"
	"time"
)

// IDGenerator はトークンなどのランダムIDを作る
type IDGenerator interface {
	NewID() string
}

type OrderNumberGenerator interface {
	NewOrderNumber(now time.Time) string
}

type Clock interface {
	Now() time.Time
}

// 同じ持ち主の注文確定を同時に走らせないためのロック
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key string, token string) error
}

// 注文イベントの送り先（分析など）
type EventPublisher interface {
	Publish(ctx context.Context, key string, event interface{}) error
}
