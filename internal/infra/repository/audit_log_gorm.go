package repository

import (
	"context"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"

	"gorm.io/gorm"
)

type auditLogGormRepository struct {
	db *gorm.DB
}

func NewAuditLogGormRepository(db *gorm.DB) repo.AuditLogRepository {
	return &auditLogGormRepository{db: db}
}

// 注文ステータス変更と同じトランザクションで書く
func (r *auditLogGormRepository) Create(ctx context.Context, log model.AuditLog) error {
	return classify(r.db.WithContext(ctx).Create(&log).Error)
}

func (r *auditLogGormRepository) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.AuditLog{}).
		Where("resource_type = ? AND resource_id = ?", f.ResourceType, f.ResourceID)

	if f.Action != "" {
		q = q.Where("action = ?", f.Action)
	}
	if f.From != nil {
		q = q.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("created_at <= ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, classify(err)
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}

	var logs []model.AuditLog
	err := q.Order("created_at asc").Order("id asc").
		Limit(limit).Offset((page - 1) * limit).
		Find(&logs).Error
	if err != nil {
		return nil, 0, classify(err)
	}
	return logs, total, nil
}
