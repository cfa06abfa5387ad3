package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 注文の変更履歴を引くときの条件。ResourceID は必須。
type AuditLogFilter struct {
	ResourceType model.AuditResourceType
	ResourceID   int64
	Action       model.AuditAction
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error

	// 古い順（変更履歴として読めるように）。total は絞り込み後の件数。
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, int64, error)
}
