package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rykyfilipe/efactura-engine/config"
	"github.com/rykyfilipe/efactura-engine/einvoice"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/security"
	"github.com/rykyfilipe/efactura-engine/utils"
	"github.com/stretchr/testify/require"
)

type fakeSubmissionStore struct {
	records map[string]*models.SubmissionRecord
	order   []string
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{records: map[string]*models.SubmissionRecord{}}
}

func (f *fakeSubmissionStore) Create(ctx context.Context, rec *models.SubmissionRecord) error {
	rec.ID = uuid.NewString()
	rec.SubmittedAt = time.Now()
	f.records[rec.ID] = rec
	f.order = append(f.order, rec.ID)
	return nil
}

func (f *fakeSubmissionStore) UpdateStatus(ctx context.Context, id string, status models.SubmissionStatus, message, errorDetail string) error {
	rec, ok := f.records[id]
	if !ok {
		return errors.New("not found")
	}
	if rec.Status.Terminal() {
		return errors.New("submission already reached a terminal status")
	}
	now := time.Now()
	rec.Status = status
	rec.Message = message
	rec.ErrorDetail = errorDetail
	rec.LastCheckedAt = &now
	return nil
}

func (f *fakeSubmissionStore) MarkUploaded(ctx context.Context, id, requestID, message, signedXML string, retries int) error {
	rec := f.records[id]
	rec.RequestID = requestID
	rec.Status = models.SubmissionStatusProcessing
	rec.Message = message
	rec.SignedXML = signedXML
	rec.RetryCount = retries
	return nil
}

func (f *fakeSubmissionStore) MarkFailed(ctx context.Context, id, message, errorDetail string, retries int) error {
	rec := f.records[id]
	rec.Status = models.SubmissionStatusError
	rec.Message = message
	rec.ErrorDetail = errorDetail
	rec.RetryCount = retries
	return nil
}

func (f *fakeSubmissionStore) GetByID(ctx context.Context, id string) (*models.SubmissionRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

func (f *fakeSubmissionStore) GetByRequestID(ctx context.Context, tenantID, requestID string) (*models.SubmissionRecord, error) {
	for _, id := range f.order {
		rec := f.records[id]
		if rec.TenantID == tenantID && rec.RequestID == requestID {
			return rec, nil
		}
	}
	return nil, nil
}

func (f *fakeSubmissionStore) List(ctx context.Context, filter models.SubmissionFilter) ([]*models.SubmissionRecord, error) {
	var out []*models.SubmissionRecord
	for _, id := range f.order {
		rec := f.records[id]
		if rec.TenantID == filter.TenantID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeDocumentExchange struct {
	uploadResults []*providers.UploadResult
	uploadErrs    []error
	uploadCalls   int

	statusResult *providers.StatusResult
	statusErr    error
	statusCalls  int

	downloadPayload []byte
	downloadErr     error

	available bool
}

func (f *fakeDocumentExchange) UploadInvoice(ctx context.Context, accessToken string, invoiceXML []byte, opts providers.UploadOptions) (*providers.UploadResult, error) {
	i := f.uploadCalls
	f.uploadCalls++
	if i < len(f.uploadErrs) && f.uploadErrs[i] != nil {
		return nil, f.uploadErrs[i]
	}
	if i < len(f.uploadResults) {
		return f.uploadResults[i], nil
	}
	return nil, errors.New("unexpected upload")
}

func (f *fakeDocumentExchange) GetStatus(ctx context.Context, accessToken, requestID string) (*providers.StatusResult, error) {
	f.statusCalls++
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.statusResult, nil
}

func (f *fakeDocumentExchange) DownloadResponse(ctx context.Context, accessToken, requestID string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	return f.downloadPayload, nil
}

func (f *fakeDocumentExchange) IsAvailable(ctx context.Context) bool {
	return f.available
}

type staticTokens struct{}

func (staticTokens) GetValidAccessToken(ctx context.Context, userID, tenantID string) (string, error) {
	return "access-token", nil
}

func fastRetry() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func submissionInvoice() (*models.Invoice, *models.Company, *models.Customer) {
	return &models.Invoice{
			ID:        "inv-1",
			TenantID:  testTenantID,
			Number:    "FACT-2026-0001",
			IssueDate: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
			DueDate:   time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC),
			Currency:  "RON",
			Items: []models.InvoiceItem{
				{Description: "Serviciu", Quantity: 1, Unit: "piece", UnitPrice: 100, VATRate: 19},
			},
		},
		&models.Company{Name: "Exemplu SRL", TaxID: "RO12345678", City: "București", Country: "RO"},
		&models.Customer{Name: "Client SRL", TaxID: "RO87654321", City: "Cluj-Napoca"}
}

type submissionFixture struct {
	svc      *SubmissionService
	store    *fakeSubmissionStore
	exchange *fakeDocumentExchange
	limiter  *security.QuotaLimiter
	metrics  *utils.MetricsCollector
}

func newSubmissionFixture(t *testing.T, exchange *fakeDocumentExchange, quota int) *submissionFixture {
	t.Helper()
	vault, _ := newTestVault(t)
	store := newFakeSubmissionStore()
	limiter := security.CreateQuotaLimiter(time.Minute, quota)
	t.Cleanup(limiter.Close)
	metrics := utils.CreateMetricsCollector()

	svc := CreateSubmissionService(store, exchange, staticTokens{},
		CreateSignatureService(vault, einvoice.CreateXMLDSigSigner()),
		limiter, newTestAudit(), metrics, fastRetry())

	return &submissionFixture{svc: svc, store: store, exchange: exchange, limiter: limiter, metrics: metrics}
}

func TestSubmitSuccess(t *testing.T) {
	exchange := &fakeDocumentExchange{
		uploadResults: []*providers.UploadResult{{RequestID: "5007", Message: "queued"}},
		available:     true,
	}
	f := newSubmissionFixture(t, exchange, 100)

	inv, company, customer := submissionInvoice()
	record, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)
	require.NoError(t, err)

	require.Equal(t, models.SubmissionStatusProcessing, record.Status)
	require.Equal(t, "5007", record.RequestID)
	require.Equal(t, 0, record.RetryCount)
	require.Contains(t, record.SignedXML, "<ds:Signature", "the signed document is retained on success")
	require.Equal(t, 1, exchange.uploadCalls)
}

func TestSubmitRetriesTransientFailure(t *testing.T) {
	exchange := &fakeDocumentExchange{
		uploadErrs: []error{
			providers.ClassifyHTTP(providers.OpUpload, 503, "maintenance", 0),
			nil,
		},
		uploadResults: []*providers.UploadResult{nil, {RequestID: "5008", Message: "queued"}},
	}
	f := newSubmissionFixture(t, exchange, 100)

	inv, company, customer := submissionInvoice()
	record, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)
	require.NoError(t, err)
	require.Equal(t, "5008", record.RequestID)
	require.Equal(t, 1, record.RetryCount)
	require.Equal(t, 2, exchange.uploadCalls)
}

func TestSubmitRecordsTerminalFailure(t *testing.T) {
	exchange := &fakeDocumentExchange{
		uploadErrs: []error{&providers.ClassifiedError{
			Category:    providers.CategorySubmission,
			Operation:   providers.OpUpload,
			Message:     "upload rejected with ExecutionStatus=1",
			UserMessage: "ANAF a respins documentul la încărcare.",
			Retryable:   false,
		}},
	}
	f := newSubmissionFixture(t, exchange, 100)

	inv, company, customer := submissionInvoice()
	record, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)
	require.Error(t, err)
	require.NotNil(t, record, "failed attempts still leave a record")
	require.Equal(t, models.SubmissionStatusError, record.Status)
	require.Equal(t, "ANAF a respins documentul la încărcare.", record.Message)
	require.Empty(t, record.SignedXML, "the payload is only retained on success")
	require.Equal(t, 1, exchange.uploadCalls, "non-retryable failures must not be retried")
}

func TestSubmitExhaustsUpstreamRateLimitRetries(t *testing.T) {
	throttled := providers.ClassifyHTTP(providers.OpUpload, 429, "Too Many Requests", 2*time.Millisecond)
	exchange := &fakeDocumentExchange{
		uploadErrs: []error{throttled, throttled, throttled},
	}
	f := newSubmissionFixture(t, exchange, 100)

	inv, company, customer := submissionInvoice()
	record, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)

	var classified *providers.ClassifiedError
	require.ErrorAs(t, err, &classified)
	require.Equal(t, providers.CategoryRateLimit, classified.Category)

	require.Equal(t, 3, exchange.uploadCalls, "the retry ceiling bounds consecutive 429 attempts")
	require.Equal(t, models.SubmissionStatusError, record.Status)
	require.Equal(t, "Too Many Requests", record.ErrorDetail)
	require.Equal(t, 2, record.RetryCount)
	require.NotEmpty(t, record.Message)
}

func TestSubmitQuotaExhausted(t *testing.T) {
	exchange := &fakeDocumentExchange{}
	f := newSubmissionFixture(t, exchange, 1)
	f.limiter.Check(testTenantID)

	inv, company, customer := submissionInvoice()
	record, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)

	var classified *providers.ClassifiedError
	require.ErrorAs(t, err, &classified)
	require.Equal(t, providers.CategoryRateLimit, classified.Category)
	require.Greater(t, classified.RetryAfter, time.Duration(0))

	require.Equal(t, models.SubmissionStatusError, record.Status)
	require.Zero(t, exchange.uploadCalls, "the quota gate fires before any upstream call")
}

func TestSubmitRejectsUnbuildableInvoice(t *testing.T) {
	exchange := &fakeDocumentExchange{}
	f := newSubmissionFixture(t, exchange, 100)

	inv, company, customer := submissionInvoice()
	inv.Items = nil

	record, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)

	var classified *providers.ClassifiedError
	require.ErrorAs(t, err, &classified)
	require.Equal(t, providers.CategoryDocumentGen, classified.Category)
	require.False(t, classified.Retryable)
	require.Equal(t, models.SubmissionStatusError, record.Status)
}

func TestCheckStatusUpdatesPendingRecord(t *testing.T) {
	exchange := &fakeDocumentExchange{
		uploadResults: []*providers.UploadResult{{RequestID: "5007"}},
		statusResult: &providers.StatusResult{
			RequestID:  "5007",
			Status:     models.SubmissionStatusAccepted,
			Message:    "document accepted by the authority",
			DownloadID: "9001",
		},
	}
	f := newSubmissionFixture(t, exchange, 100)

	inv, company, customer := submissionInvoice()
	record, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)
	require.NoError(t, err)

	updated, err := f.svc.CheckStatus(context.Background(), testUserID, testTenantID, record.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusAccepted, updated.Status)
	require.NotNil(t, updated.LastCheckedAt)
}

func TestCheckStatusSkipsTerminalRecords(t *testing.T) {
	exchange := &fakeDocumentExchange{}
	f := newSubmissionFixture(t, exchange, 100)

	rec := &models.SubmissionRecord{
		TenantID:  testTenantID,
		InvoiceID: "inv-1",
		RequestID: "5007",
		Status:    models.SubmissionStatusAccepted,
	}
	require.NoError(t, f.store.Create(context.Background(), rec))

	result, err := f.svc.CheckStatus(context.Background(), testUserID, testTenantID, rec.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusAccepted, result.Status)
	require.Zero(t, exchange.statusCalls, "terminal records must not trigger upstream calls")
}

func TestCheckStatusEnforcesTenantOwnership(t *testing.T) {
	f := newSubmissionFixture(t, &fakeDocumentExchange{}, 100)

	rec := &models.SubmissionRecord{
		TenantID:  "other-tenant",
		InvoiceID: "inv-1",
		RequestID: "5007",
		Status:    models.SubmissionStatusProcessing,
	}
	require.NoError(t, f.store.Create(context.Background(), rec))

	_, err := f.svc.CheckStatus(context.Background(), testUserID, testTenantID, rec.ID)
	require.ErrorIs(t, err, utils.ErrSubmissionNotFound)
}

func TestCheckStatusQuotaExhausted(t *testing.T) {
	exchange := &fakeDocumentExchange{}
	f := newSubmissionFixture(t, exchange, 1)

	rec := &models.SubmissionRecord{
		TenantID:  testTenantID,
		InvoiceID: "inv-1",
		RequestID: "5007",
		Status:    models.SubmissionStatusProcessing,
	}
	require.NoError(t, f.store.Create(context.Background(), rec))
	f.limiter.Check(testTenantID)

	_, err := f.svc.CheckStatus(context.Background(), testUserID, testTenantID, rec.ID)

	var classified *providers.ClassifiedError
	require.ErrorAs(t, err, &classified)
	require.Equal(t, providers.CategoryRateLimit, classified.Category)
	require.Zero(t, exchange.statusCalls)
}

func TestGetByRequestID(t *testing.T) {
	f := newSubmissionFixture(t, &fakeDocumentExchange{}, 100)

	rec := &models.SubmissionRecord{
		TenantID:  testTenantID,
		InvoiceID: "inv-1",
		RequestID: "5007",
		Status:    models.SubmissionStatusProcessing,
	}
	require.NoError(t, f.store.Create(context.Background(), rec))

	found, err := f.svc.GetByRequestID(context.Background(), testTenantID, "5007")
	require.NoError(t, err)
	require.Equal(t, rec.ID, found.ID)

	_, err = f.svc.GetByRequestID(context.Background(), "other-tenant", "5007")
	require.ErrorIs(t, err, utils.ErrSubmissionNotFound)
}

func TestDownloadResolvesDownloadID(t *testing.T) {
	exchange := &fakeDocumentExchange{
		statusResult: &providers.StatusResult{
			RequestID:  "5007",
			Status:     models.SubmissionStatusAccepted,
			DownloadID: "9001",
		},
		downloadPayload: []byte("zip-bytes"),
	}
	f := newSubmissionFixture(t, exchange, 100)

	rec := &models.SubmissionRecord{
		TenantID:  testTenantID,
		InvoiceID: "inv-1",
		RequestID: "5007",
		Status:    models.SubmissionStatusAccepted,
	}
	require.NoError(t, f.store.Create(context.Background(), rec))

	payload, err := f.svc.Download(context.Background(), testUserID, testTenantID, rec.ID)
	require.NoError(t, err)
	require.Equal(t, []byte("zip-bytes"), payload)
}

func TestDownloadBeforeProcessingFinished(t *testing.T) {
	exchange := &fakeDocumentExchange{
		statusResult: &providers.StatusResult{
			RequestID: "5007",
			Status:    models.SubmissionStatusProcessing,
		},
	}
	f := newSubmissionFixture(t, exchange, 100)

	rec := &models.SubmissionRecord{
		TenantID:  testTenantID,
		InvoiceID: "inv-1",
		RequestID: "5007",
		Status:    models.SubmissionStatusProcessing,
	}
	require.NoError(t, f.store.Create(context.Background(), rec))

	_, err := f.svc.Download(context.Background(), testUserID, testTenantID, rec.ID)
	require.ErrorIs(t, err, utils.ErrSubmissionNotAccepted)
}

func TestSubmitCountsMetrics(t *testing.T) {
	exchange := &fakeDocumentExchange{
		uploadResults: []*providers.UploadResult{{RequestID: "5007"}},
	}
	f := newSubmissionFixture(t, exchange, 100)

	inv, company, customer := submissionInvoice()
	_, err := f.svc.Submit(context.Background(), testUserID, inv, company, customer)
	require.NoError(t, err)

	var found bool
	for _, m := range f.metrics.Snapshot() {
		if m.Name == "submission_upload_total" && m.Labels["result"] == "success" {
			found = true
			require.Equal(t, float64(1), m.Value)
		}
	}
	require.True(t, found, "successful uploads must be counted")
}
