package stores

import (
	"context"
	"errors"

	"github.com/rykyfilipe/efactura-engine/models"
	"gorm.io/gorm"
)

type CredentialStore struct {
	BaseStore
}

func CreateCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{BaseStore: BaseStore{db: db}}
}

// Upsert persists a fresh credential and deactivates the previously active
// one in the same transaction, so exactly one credential per (user, tenant)
// pair is ever active.
func (r *CredentialStore) Upsert(ctx context.Context, cred *models.OAuthCredential) error {
	return r.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.deactivate(txCtx, cred.UserID, cred.TenantID); err != nil {
			return err
		}
		cred.Active = true
		return r.GetDB(txCtx).Create(cred).Error
	})
}

func (r *CredentialStore) GetActive(ctx context.Context, userID, tenantID string) (*models.OAuthCredential, error) {
	var cred models.OAuthCredential
	err := r.GetDB(ctx).
		Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *CredentialStore) Deactivate(ctx context.Context, userID, tenantID string) error {
	return r.deactivate(ctx, userID, tenantID)
}

func (r *CredentialStore) deactivate(ctx context.Context, userID, tenantID string) error {
	return r.GetDB(ctx).
		Model(&models.OAuthCredential{}).
		Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		Update("active", false).Error
}
