package services

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/security"
	"github.com/stretchr/testify/require"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

const (
	testUserID     = "user-1"
	testTenantID   = "tenant-1"
	testPassphrase = "parola-sigura"
)

type certFixture struct {
	container []byte
	leaf      *x509.Certificate
}

func makeCertFixture(t *testing.T, notBefore, notAfter time.Time, issuerCN string) certFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject: pkix.Name{
			CommonName:   "Ion Popescu",
			Organization: []string{"Exemplu SRL"},
		},
		Issuer:      pkix.Name{CommonName: issuerCN},
		NotBefore:   notBefore,
		NotAfter:    notAfter,
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	// self-signed, so the subject doubles as the issuer
	template.Subject.CommonName = issuerCN

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	container, err := pkcs12.Modern.Encode(key, leaf, nil, testPassphrase)
	require.NoError(t, err)

	return certFixture{container: container, leaf: leaf}
}

func validCertFixture(t *testing.T) certFixture {
	return makeCertFixture(t,
		time.Now().Add(-time.Hour),
		time.Now().Add(365*24*time.Hour),
		"certSIGN Qualified CA")
}

type fakeCertificateStore struct {
	records []*models.ClientCertificate
}

func (f *fakeCertificateStore) Create(ctx context.Context, cert *models.ClientCertificate) error {
	for _, r := range f.records {
		if r.UserID == cert.UserID && r.TenantID == cert.TenantID {
			r.Active = false
		}
	}
	cert.ID = uuid.NewString()
	cert.Active = true
	f.records = append(f.records, cert)
	return nil
}

func (f *fakeCertificateStore) GetActive(ctx context.Context, userID, tenantID string) (*models.ClientCertificate, error) {
	for _, r := range f.records {
		if r.UserID == userID && r.TenantID == tenantID && r.Active {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeCertificateStore) ListByOwner(ctx context.Context, userID, tenantID string) ([]*models.ClientCertificate, error) {
	var out []*models.ClientCertificate
	for _, r := range f.records {
		if r.UserID == userID && r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCertificateStore) Deactivate(ctx context.Context, userID, tenantID string) error {
	for _, r := range f.records {
		if r.UserID == userID && r.TenantID == tenantID {
			r.Active = false
		}
	}
	return nil
}

type fakeCredentialStore struct {
	records []*models.OAuthCredential
}

func (f *fakeCredentialStore) Upsert(ctx context.Context, cred *models.OAuthCredential) error {
	for _, r := range f.records {
		if r.UserID == cred.UserID && r.TenantID == cred.TenantID {
			r.Active = false
		}
	}
	cred.ID = uuid.NewString()
	cred.Active = true
	f.records = append(f.records, cred)
	return nil
}

func (f *fakeCredentialStore) GetActive(ctx context.Context, userID, tenantID string) (*models.OAuthCredential, error) {
	for _, r := range f.records {
		if r.UserID == userID && r.TenantID == tenantID && r.Active {
			return r, nil
		}
	}
	return nil, nil
}

func (f *fakeCredentialStore) Deactivate(ctx context.Context, userID, tenantID string) error {
	for _, r := range f.records {
		if r.UserID == userID && r.TenantID == tenantID {
			r.Active = false
		}
	}
	return nil
}

type fakeAuditLogStore struct {
	logs []*models.AuditLog
}

func (f *fakeAuditLogStore) Create(ctx context.Context, log *models.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeAuditLogStore) List(ctx context.Context, filter models.AuditLogFilter) ([]*models.AuditLog, error) {
	return f.logs, nil
}

type fakeErrorLogStore struct {
	logs []*models.ErrorLog
}

func (f *fakeErrorLogStore) Create(ctx context.Context, log *models.ErrorLog) error {
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeErrorLogStore) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.ErrorLog, error) {
	return f.logs, nil
}

type fakeExchanger struct {
	responses []*providers.TokenResponse
	errs      []error
	calls     int
	requests  []*providers.TokenRequest
}

func (f *fakeExchanger) ExchangeToken(ctx context.Context, req *providers.TokenRequest) (*providers.TokenResponse, error) {
	i := f.calls
	f.calls++
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, errors.New("unexpected call")
}

func newTestAudit() *AuditService {
	return CreateAuditService(&fakeAuditLogStore{}, &fakeErrorLogStore{})
}

func newTestCipher(t *testing.T) *security.FieldCipher {
	t.Helper()
	key, err := security.GenerateEncryptionKey()
	require.NoError(t, err)
	cipher, err := security.CreateFieldCipher(key)
	require.NoError(t, err)
	return cipher
}

// newTestVault returns a certificate service pre-loaded with a valid
// taxpayer certificate for the test account.
func newTestVault(t *testing.T) (*CertificateService, certFixture) {
	t.Helper()
	fixture := validCertFixture(t)
	vault := CreateCertificateService(&fakeCertificateStore{}, newTestCipher(t), newTestAudit())
	_, err := vault.Upload(context.Background(), testUserID, testTenantID, fixture.container, testPassphrase)
	require.NoError(t, err)
	return vault, fixture
}
