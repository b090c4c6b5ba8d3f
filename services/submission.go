package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rykyfilipe/efactura-engine/config"
	"github.com/rykyfilipe/efactura-engine/einvoice"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/security"
	"github.com/rykyfilipe/efactura-engine/utils"
)

type submissionStore interface {
	Create(ctx context.Context, rec *models.SubmissionRecord) error
	UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, message, errorDetail string) error
	MarkUploaded(ctx context.Context, id, requestID, message, signedXML string, retries int) error
	MarkFailed(ctx context.Context, id, message, errorDetail string, retries int) error
	GetByID(ctx context.Context, id string) (*models.SubmissionRecord, error)
	GetByRequestID(ctx context.Context, tenantID, requestID string) (*models.SubmissionRecord, error)
	List(ctx context.Context, filter models.SubmissionFilter) ([]*models.SubmissionRecord, error)
}

type documentExchange interface {
	UploadInvoice(ctx context.Context, accessToken string, invoiceXML []byte, opts providers.UploadOptions) (*providers.UploadResult, error)
	GetStatus(ctx context.Context, accessToken, requestID string) (*providers.StatusResult, error)
	DownloadResponse(ctx context.Context, accessToken, requestID string) ([]byte, error)
	IsAvailable(ctx context.Context) bool
}

type tokenSource interface {
	GetValidAccessToken(ctx context.Context, userID, tenantID string) (string, error)
}

// SubmissionService orchestrates the full delivery pipeline: quota gate,
// document generation, signing, authenticated upload with retry, and the
// status/download lifecycle afterwards. Every attempt leaves a submission
// record, including attempts that die before reaching the wire.
type SubmissionService struct {
	subs      submissionStore
	provider  documentExchange
	tokens    tokenSource
	signature *SignatureService
	limiter   *security.QuotaLimiter
	audit     *AuditService
	metrics   *utils.MetricsCollector
	retryCfg  *utils.RetryConfig
	logger    *utils.Logger
}

func CreateSubmissionService(subs submissionStore, provider documentExchange, tokens tokenSource, signature *SignatureService, limiter *security.QuotaLimiter, audit *AuditService, metrics *utils.MetricsCollector, retry config.RetryConfig) *SubmissionService {
	return &SubmissionService{
		subs:      subs,
		provider:  provider,
		tokens:    tokens,
		signature: signature,
		limiter:   limiter,
		audit:     audit,
		metrics:   metrics,
		retryCfg: &utils.RetryConfig{
			MaxAttempts: retry.MaxAttempts,
			BaseDelay:   retry.BaseDelay,
			MaxDelay:    retry.MaxDelay,
			Multiplier:  retry.Multiplier,
			Jitter:      true,
			BackoffType: utils.ExponentialJitter,
			ShouldRetry: providers.IsRetryable,
		},
		logger: utils.CreateLogger("submission"),
	}
}

// Submit runs one delivery attempt end to end. The returned record reflects
// the outcome either way: processing with the upstream request identifier on
// success, terminal error with the classified message on failure.
func (s *SubmissionService) Submit(ctx context.Context, userID string, inv *models.Invoice, company *models.Company, customer *models.Customer) (*models.SubmissionRecord, error) {
	record := &models.SubmissionRecord{
		TenantID:  inv.TenantID,
		InvoiceID: inv.ID,
		Status:    models.SubmissionStatusReceived,
	}
	if err := s.subs.Create(ctx, record); err != nil {
		return nil, err
	}

	if cerr := s.checkQuota(inv.TenantID, providers.OpUpload); cerr != nil {
		return s.failSubmission(ctx, record, userID, inv.ID, cerr, 0)
	}

	invoiceXML, err := einvoice.Generate(inv, company, customer)
	if err != nil {
		cerr := providers.Classify(providers.OpUpload, err)
		cerr.Category = providers.CategoryDocumentGen
		cerr.Retryable = false
		return s.failSubmission(ctx, record, userID, inv.ID, cerr, 0)
	}

	signedXML, err := s.signature.SignInvoice(ctx, userID, inv.TenantID, []byte(invoiceXML))
	if err != nil {
		return s.failSubmission(ctx, record, userID, inv.ID, providers.Classify(providers.OpUpload, err), 0)
	}

	token, err := s.tokens.GetValidAccessToken(ctx, userID, inv.TenantID)
	if err != nil {
		return s.failSubmission(ctx, record, userID, inv.ID, providers.Classify(providers.OpToken, err), 0)
	}

	var result *providers.UploadResult
	attempts := 0
	err = utils.CreateRetry(ctx, s.retryCfg, func() error {
		attempts++
		var uerr error
		result, uerr = s.provider.UploadInvoice(ctx, token, signedXML, providers.UploadOptions{
			TaxID:    company.TaxID,
			Standard: "UBL",
		})
		return uerr
	})
	if err != nil {
		return s.failSubmission(ctx, record, userID, inv.ID, providers.Classify(providers.OpUpload, err), attempts-1)
	}

	if err := s.subs.MarkUploaded(ctx, record.ID, result.RequestID, result.Message, string(signedXML), attempts-1); err != nil {
		return nil, err
	}

	s.metrics.IncrementCounter("submission_upload_total", map[string]string{"result": "success"})
	s.audit.LogAction(ctx, inv.TenantID, userID, models.AuditActionSubmissionUpload, models.AuditResourceSubmission, record.ID, true, "")
	s.logger.Info(ctx, "invoice uploaded", map[string]interface{}{
		"submission_id": record.ID,
		"request_id":    result.RequestID,
		"attempts":      attempts,
	})

	return s.subs.GetByID(ctx, record.ID)
}

// CheckStatus polls the authority for a pending submission. Terminal records
// are returned as-is without an upstream call.
func (s *SubmissionService) CheckStatus(ctx context.Context, userID, tenantID, submissionID string) (*models.SubmissionRecord, error) {
	record, err := s.getOwned(ctx, tenantID, submissionID)
	if err != nil {
		return nil, err
	}
	if record.Status.Terminal() {
		return record, nil
	}
	if record.RequestID == "" {
		return nil, utils.ErrSubmissionNotFound
	}

	if cerr := s.checkQuota(tenantID, providers.OpStatusCheck); cerr != nil {
		return nil, cerr
	}

	token, err := s.tokens.GetValidAccessToken(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	result, err := s.provider.GetStatus(ctx, token, record.RequestID)
	if err != nil {
		cerr := providers.Classify(providers.OpStatusCheck, err)
		s.audit.LogClassified(ctx, tenantID, userID, record.InvoiceID, "stareMesaj", cerr)
		s.metrics.IncrementCounter("status_check_total", map[string]string{"result": "failure"})
		return nil, cerr
	}

	if result.Status != record.Status {
		if err := s.subs.UpdateStatus(ctx, record.ID, result.Status, result.Message, ""); err != nil {
			return nil, err
		}
	}

	s.metrics.IncrementCounter("status_check_total", map[string]string{"result": "success"})
	s.audit.LogAction(ctx, tenantID, userID, models.AuditActionStatusCheck, models.AuditResourceSubmission, record.ID, true, "")

	return s.subs.GetByID(ctx, record.ID)
}

// Download fetches the authority's response archive. The download identifier
// is only assigned once processing finished, so a fresh status call resolves
// it; a submission still in processing has nothing to download.
func (s *SubmissionService) Download(ctx context.Context, userID, tenantID, submissionID string) ([]byte, error) {
	record, err := s.getOwned(ctx, tenantID, submissionID)
	if err != nil {
		return nil, err
	}
	if record.RequestID == "" {
		return nil, utils.ErrSubmissionNotAccepted
	}

	if cerr := s.checkQuota(tenantID, providers.OpDownload); cerr != nil {
		return nil, cerr
	}

	token, err := s.tokens.GetValidAccessToken(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	status, err := s.provider.GetStatus(ctx, token, record.RequestID)
	if err != nil {
		return nil, providers.Classify(providers.OpStatusCheck, err)
	}
	if status.DownloadID == "" {
		return nil, utils.ErrSubmissionNotAccepted
	}

	payload, err := s.provider.DownloadResponse(ctx, token, status.DownloadID)
	if err != nil {
		cerr := providers.Classify(providers.OpDownload, err)
		s.audit.LogClassified(ctx, tenantID, userID, record.InvoiceID, "descarcare", cerr)
		return nil, cerr
	}

	s.audit.LogAction(ctx, tenantID, userID, models.AuditActionDownload, models.AuditResourceSubmission, record.ID, true, "")
	return payload, nil
}

func (s *SubmissionService) Get(ctx context.Context, tenantID, submissionID string) (*models.SubmissionRecord, error) {
	return s.getOwned(ctx, tenantID, submissionID)
}

// GetByRequestID resolves a submission by the identifier the authority
// assigned at upload time.
func (s *SubmissionService) GetByRequestID(ctx context.Context, tenantID, requestID string) (*models.SubmissionRecord, error) {
	record, err := s.subs.GetByRequestID(ctx, tenantID, requestID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, utils.ErrSubmissionNotFound
	}
	return record, nil
}

func (s *SubmissionService) List(ctx context.Context, filter models.SubmissionFilter) ([]*models.SubmissionRecord, error) {
	return s.subs.List(ctx, filter)
}

// AuthorityAvailable reflects the background health checker, not a live probe.
func (s *SubmissionService) AuthorityAvailable(ctx context.Context) bool {
	return s.provider.IsAvailable(ctx)
}

func (s *SubmissionService) failSubmission(ctx context.Context, record *models.SubmissionRecord, userID, invoiceID string, cerr *providers.ClassifiedError, retries int) (*models.SubmissionRecord, error) {
	if err := s.subs.MarkFailed(ctx, record.ID, cerr.UserMessage, cerr.Message, retries); err != nil {
		s.logger.Error(ctx, "failed to persist submission failure", map[string]interface{}{"error": err.Error()})
	}

	s.metrics.IncrementCounter("submission_upload_total", map[string]string{"result": "failure"})
	s.audit.LogClassified(ctx, record.TenantID, userID, invoiceID, "upload", cerr)
	s.audit.LogAction(ctx, record.TenantID, userID, models.AuditActionSubmissionUpload, models.AuditResourceSubmission, record.ID, false, cerr.Message)

	failed, err := s.subs.GetByID(ctx, record.ID)
	if err != nil {
		return nil, cerr
	}
	return failed, cerr
}

// checkQuota gates every upstream call on the tenant's fixed-window quota.
func (s *SubmissionService) checkQuota(tenantID, operation string) *providers.ClassifiedError {
	decision := s.limiter.Check(tenantID)
	if decision.Allowed {
		return nil
	}
	return &providers.ClassifiedError{
		Category:    providers.CategoryRateLimit,
		Operation:   operation,
		Message:     fmt.Sprintf("tenant quota exhausted, window resets at %s", decision.ResetAt.Format(time.RFC3339)),
		UserMessage: "Limita de cereri către ANAF a fost atinsă. Reîncercați mai târziu.",
		Retryable:   true,
		RetryAfter:  decision.RetryAfter,
	}
}

func (s *SubmissionService) getOwned(ctx context.Context, tenantID, submissionID string) (*models.SubmissionRecord, error) {
	record, err := s.subs.GetByID(ctx, submissionID)
	if err != nil {
		return nil, utils.ErrSubmissionNotFound
	}
	if record.TenantID != tenantID {
		return nil, utils.ErrSubmissionNotFound
	}
	return record, nil
}
