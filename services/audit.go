package services

import (
	"context"

	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/utils"
)

type auditLogStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error)
}

type errorLogStore interface {
	Create(ctx context.Context, log *models.ErrorLog) error
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.ErrorLog, error)
}

// AuditService records every credential, certificate and submission action,
// plus every classified upstream failure. Audit writes never abort the
// operation they describe; failures are logged and swallowed.
type AuditService struct {
	audits auditLogStore
	errors errorLogStore
	logger *utils.Logger
}

func CreateAuditService(audits auditLogStore, errors errorLogStore) *AuditService {
	return &AuditService{
		audits: audits,
		errors: errors,
		logger: utils.CreateLogger("audit"),
	}
}

func (s *AuditService) LogAction(ctx context.Context, tenantID, userID string, action models.AuditAction, resource models.AuditResourceType, resourceID string, success bool, errMsg string) {
	log := &models.AuditLog{
		TenantID:     stringPtr(tenantID),
		UserID:       userID,
		Action:       string(action),
		ResourceType: string(resource),
		ResourceID:   resourceID,
		Success:      success,
		ErrorMessage: errMsg,
	}
	if err := s.audits.Create(ctx, log); err != nil {
		s.logger.Error(ctx, "failed to write audit log", map[string]interface{}{
			"action": action,
			"error":  err.Error(),
		})
	}
}

// LogClassified persists a classified upstream failure. The raw upstream
// body lands only here; callers surface the user message.
func (s *AuditService) LogClassified(ctx context.Context, tenantID, userID, invoiceID, endpoint string, cerr *providers.ClassifiedError) {
	log := &models.ErrorLog{
		TenantID:  tenantID,
		UserID:    userID,
		InvoiceID: invoiceID,
		Operation: cerr.Operation,
		Endpoint:  endpoint,
		Category:  string(cerr.Category),
		Message:   cerr.Message,
		Raw:       cerr.Raw,
		Retryable: cerr.Retryable,
	}
	if err := s.errors.Create(ctx, log); err != nil {
		s.logger.Error(ctx, "failed to write error log", map[string]interface{}{
			"operation": cerr.Operation,
			"error":     err.Error(),
		})
	}
}

func (s *AuditService) ListActions(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
	return s.audits.List(ctx, filter)
}

func (s *AuditService) ListErrors(ctx context.Context, tenantID string, limit, offset int) ([]*models.ErrorLog, error) {
	return s.errors.ListByTenant(ctx, tenantID, limit, offset)
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
