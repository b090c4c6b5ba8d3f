package stores

import (
	"context"
	"errors"

	"github.com/rykyfilipe/efactura-engine/models"
	"gorm.io/gorm"
)

type CertificateStore struct {
	BaseStore
}

func CreateCertificateStore(db *gorm.DB) *CertificateStore {
	return &CertificateStore{BaseStore: BaseStore{db: db}}
}

// Create stores a new certificate and deactivates any previously active one
// for the same owner. Old rows are kept for audit history.
func (r *CertificateStore) Create(ctx context.Context, cert *models.ClientCertificate) error {
	return r.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := r.deactivate(txCtx, cert.UserID, cert.TenantID); err != nil {
			return err
		}
		cert.Active = true
		return r.GetDB(txCtx).Create(cert).Error
	})
}

func (r *CertificateStore) GetActive(ctx context.Context, userID, tenantID string) (*models.ClientCertificate, error) {
	var cert models.ClientCertificate
	err := r.GetDB(ctx).
		Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		First(&cert).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateStore) ListByOwner(ctx context.Context, userID, tenantID string) ([]*models.ClientCertificate, error) {
	var certs []*models.ClientCertificate
	err := r.GetDB(ctx).
		Where("user_id = ? AND tenant_id = ?", userID, tenantID).
		Order("created_at DESC").
		Find(&certs).Error
	if err != nil {
		return nil, err
	}
	return certs, nil
}

func (r *CertificateStore) Deactivate(ctx context.Context, userID, tenantID string) error {
	return r.deactivate(ctx, userID, tenantID)
}

func (r *CertificateStore) deactivate(ctx context.Context, userID, tenantID string) error {
	return r.GetDB(ctx).
		Model(&models.ClientCertificate{}).
		Where("user_id = ? AND tenant_id = ? AND active = ?", userID, tenantID, true).
		Update("active", false).Error
}
