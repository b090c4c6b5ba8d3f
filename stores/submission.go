package stores

import (
	"context"
	"errors"
	"time"

	"github.com/rykyfilipe/efactura-engine/models"
	"gorm.io/gorm"
)

// ErrTerminalStatus is returned when an update would mutate a submission
// that already reached a terminal state.
var ErrTerminalStatus = errors.New("submission already reached a terminal status")

type SubmissionStore struct {
	BaseStore
}

func CreateSubmissionStore(db *gorm.DB) *SubmissionStore {
	return &SubmissionStore{BaseStore: BaseStore{db: db}}
}

func (r *SubmissionStore) Create(ctx context.Context, rec *models.SubmissionRecord) error {
	return r.GetDB(ctx).Create(rec).Error
}

// UpdateStatus overwrites status and message from a poll result. Terminal
// records are immutable; the caller gets ErrTerminalStatus instead of a
// silent overwrite.
func (r *SubmissionStore) UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, message, errorDetail string) error {
	return r.WithTransaction(ctx, func(txCtx context.Context) error {
		var rec models.SubmissionRecord
		if err := r.GetDB(txCtx).First(&rec, "id = ?", id).Error; err != nil {
			return err
		}
		if rec.Status.Terminal() {
			return ErrTerminalStatus
		}

		now := time.Now()
		updates := map[string]interface{}{
			"status":          status,
			"message":         message,
			"error_detail":    errorDetail,
			"last_checked_at": &now,
		}
		return r.GetDB(txCtx).Model(&rec).Updates(updates).Error
	})
}

// MarkUploaded records a successful upload: the assigned request identifier,
// the transition to processing and the signed payload retained on success.
func (r *SubmissionStore) MarkUploaded(ctx context.Context, id, requestID, message, signedXML string, retries int) error {
	return r.GetDB(ctx).Model(&models.SubmissionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"request_id":  requestID,
			"status":      models.SubmissionStatusProcessing,
			"message":     message,
			"signed_xml":  signedXML,
			"retry_count": retries,
		}).Error
}

// MarkFailed leaves the record in terminal error state with the last
// classified message preserved.
func (r *SubmissionStore) MarkFailed(ctx context.Context, id, message, errorDetail string, retries int) error {
	return r.GetDB(ctx).Model(&models.SubmissionRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.SubmissionStatusError,
			"message":      message,
			"error_detail": errorDetail,
			"retry_count":  retries,
		}).Error
}

func (r *SubmissionStore) GetByID(ctx context.Context, id string) (*models.SubmissionRecord, error) {
	var rec models.SubmissionRecord
	if err := r.GetDB(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SubmissionStore) GetByRequestID(ctx context.Context, tenantID, requestID string) (*models.SubmissionRecord, error) {
	var rec models.SubmissionRecord
	err := r.GetDB(ctx).
		Where("tenant_id = ? AND request_id = ?", tenantID, requestID).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *SubmissionStore) List(ctx context.Context, filter models.SubmissionFilter) ([]*models.SubmissionRecord, error) {
	q := r.GetDB(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.InvoiceID != "" {
		q = q.Where("invoice_id = ?", filter.InvoiceID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var recs []*models.SubmissionRecord
	if err := q.Order("submitted_at DESC").Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}
