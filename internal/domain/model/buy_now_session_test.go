package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuyNowSession_Usable(t *testing.T) {
	now := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

	s := BuyNowSession{ExpiresAt: now.Add(time.Minute)}
	assert.True(t, s.IsUsable(now))
	assert.False(t, s.IsExpired(now))

	// 期限ちょうどは期限切れ
	assert.True(t, s.IsExpired(now.Add(time.Minute)))
	assert.False(t, s.IsUsable(now.Add(time.Minute)))

	consumed := now
	s.ConsumedAt = &consumed
	assert.True(t, s.IsConsumed())
	assert.False(t, s.IsUsable(now))
}
