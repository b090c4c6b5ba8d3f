package stores

import (
	"context"

	"github.com/rykyfilipe/efactura-engine/models"
	"gorm.io/gorm"
)

type AuditStore struct {
	BaseStore
}

func CreateAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{BaseStore: BaseStore{db: db}}
}

func (r *AuditStore) Create(ctx context.Context, log *models.AuditLog) error {
	return r.GetDB(ctx).Create(log).Error
}

func (r *AuditStore) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
	q := r.GetDB(ctx).Model(&models.AuditLog{})
	if filter.TenantID != "" {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.ResourceType != "" {
		q = q.Where("resource_type = ?", filter.ResourceType)
	}
	if filter.StartDate != nil {
		q = q.Where("created_at >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		q = q.Where("created_at <= ?", *filter.EndDate)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var logs []*models.AuditLog
	if err := q.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

type ErrorLogStore struct {
	BaseStore
}

func CreateErrorLogStore(db *gorm.DB) *ErrorLogStore {
	return &ErrorLogStore{BaseStore: BaseStore{db: db}}
}

func (r *ErrorLogStore) Create(ctx context.Context, log *models.ErrorLog) error {
	return r.GetDB(ctx).Create(log).Error
}

func (r *ErrorLogStore) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.ErrorLog, error) {
	q := r.GetDB(ctx).Where("tenant_id = ?", tenantID)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}

	var logs []*models.ErrorLog
	if err := q.Order("created_at DESC").Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
