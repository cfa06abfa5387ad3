package idgen

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// 今すぐ購入トークンなど
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string {
	return uuid.NewString()
}

// 注文番号: ORD-20260102-1A2B3C4D（人が読み上げられる長さ）
type OrderNumberGenerator struct{}

func (OrderNumberGenerator) NewOrderNumber(now time.Time) string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "ORD-" + now.UTC().Format("20060102") + "-" + strings.ToUpper(raw[:8])
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}
