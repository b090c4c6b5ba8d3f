package services

import (
	"context"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/security"
	"github.com/rykyfilipe/efactura-engine/utils"
	pkcs12 "software.sslmate.com/src/go-pkcs12"
)

const minPassphraseLength = 8

// expiryWarningWindow triggers a renewal warning on validation without
// blocking operation.
const expiryWarningWindow = 30 * 24 * time.Hour

// knownIssuers are the accredited qualified trust service providers whose
// certificates the authority accepts. An unknown issuer produces a warning,
// not an error, so new providers do not lock taxpayers out.
var knownIssuers = []string{
	"certsign",
	"digisign",
	"trans sped",
	"alfatrust",
	"certdigital",
}

type certificateStore interface {
	Create(ctx context.Context, cert *models.ClientCertificate) error
	GetActive(ctx context.Context, userID, tenantID string) (*models.ClientCertificate, error)
	ListByOwner(ctx context.Context, userID, tenantID string) ([]*models.ClientCertificate, error)
	Deactivate(ctx context.Context, userID, tenantID string) error
}

// CertificateService is the vault for taxpayer PKCS12 certificates. The
// container and its passphrase are stored encrypted; plaintext only exists
// in memory while building a TLS identity or signing a document.
type CertificateService struct {
	certs  certificateStore
	cipher *security.FieldCipher
	audit  *AuditService
	logger *utils.Logger
}

func CreateCertificateService(certs certificateStore, cipher *security.FieldCipher, audit *AuditService) *CertificateService {
	return &CertificateService{
		certs:  certs,
		cipher: cipher,
		audit:  audit,
		logger: utils.CreateLogger("certificate"),
	}
}

// Upload validates and stores a PKCS12 container. The passphrase must open
// the container and the leaf certificate must currently be within its
// validity window; anything else is rejected before touching the store.
func (s *CertificateService) Upload(ctx context.Context, userID, tenantID string, containerData []byte, passphrase string) (*models.CertificateMetadata, error) {
	if len(passphrase) < minPassphraseLength {
		return nil, utils.ErrWeakPassphrase
	}

	_, leaf, _, err := pkcs12.DecodeChain(containerData, passphrase)
	if err != nil {
		s.audit.LogAction(ctx, tenantID, userID, models.AuditActionCertificateUpload, models.AuditResourceCertificate, "", false, err.Error())
		return nil, utils.ErrCertificateParse
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		s.audit.LogAction(ctx, tenantID, userID, models.AuditActionCertificateUpload, models.AuditResourceCertificate, "", false, "certificate outside validity window")
		return nil, utils.ErrCertificateExpired
	}

	meta := metadataOf(leaf)

	salt, err := security.GenerateSalt()
	if err != nil {
		return nil, utils.ErrEncryptionFailed
	}
	encData, err := s.cipher.EncryptField(containerData, salt)
	if err != nil {
		return nil, utils.ErrEncryptionFailed
	}
	encPass, err := s.cipher.EncryptField([]byte(passphrase), salt)
	if err != nil {
		return nil, utils.ErrEncryptionFailed
	}

	record := &models.ClientCertificate{
		UserID:        userID,
		TenantID:      tenantID,
		EncryptedData: encData.Ciphertext,
		DataNonce:     encData.Nonce,
		DataTag:       encData.Tag,
		EncryptedPass: encPass.Ciphertext,
		PassNonce:     encPass.Nonce,
		PassTag:       encPass.Tag,
		Salt:          salt,
		Thumbprint:    meta.Thumbprint,
		SerialNumber:  meta.SerialNumber,
		SubjectDN:     meta.SubjectDN,
		IssuerDN:      meta.IssuerDN,
		ValidFrom:     meta.ValidFrom,
		ValidTo:       meta.ValidTo,
	}
	if err := s.certs.Create(ctx, record); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, tenantID, userID, models.AuditActionCertificateUpload, models.AuditResourceCertificate, record.ID, true, "")
	s.logger.Info(ctx, "certificate stored", map[string]interface{}{
		"thumbprint": meta.Thumbprint,
		"valid_to":   meta.ValidTo,
	})

	return meta, nil
}

// GetDecrypted returns the container bytes and passphrase of the active
// certificate. It fails closed: any tamper or key mismatch yields a bare
// decryption error with no plaintext.
func (s *CertificateService) GetDecrypted(ctx context.Context, userID, tenantID string) ([]byte, string, error) {
	record, err := s.certs.GetActive(ctx, userID, tenantID)
	if err != nil {
		return nil, "", err
	}
	if record == nil {
		return nil, "", utils.ErrNoActiveCertificate
	}

	data, err := s.cipher.DecryptField(&security.EncryptedField{
		Ciphertext: record.EncryptedData,
		Nonce:      record.DataNonce,
		Tag:        record.DataTag,
	}, record.Salt)
	if err != nil {
		return nil, "", utils.ErrDecryptionFailed
	}

	pass, err := s.cipher.DecryptField(&security.EncryptedField{
		Ciphertext: record.EncryptedPass,
		Nonce:      record.PassNonce,
		Tag:        record.PassTag,
	}, record.Salt)
	if err != nil {
		return nil, "", utils.ErrDecryptionFailed
	}

	return data, string(pass), nil
}

// TLSCertificate builds the mutual-TLS identity used against the authority's
// OAuth endpoint and for document signing.
func (s *CertificateService) TLSCertificate(ctx context.Context, userID, tenantID string) (*tls.Certificate, error) {
	containerData, passphrase, err := s.GetDecrypted(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	key, leaf, caChain, err := pkcs12.DecodeChain(containerData, passphrase)
	if err != nil {
		return nil, utils.ErrCertificateParse
	}

	chain := [][]byte{leaf.Raw}
	for _, ca := range caChain {
		chain = append(chain, ca.Raw)
	}

	return &tls.Certificate{
		Certificate: chain,
		PrivateKey:  key,
		Leaf:        leaf,
	}, nil
}

// Validate re-checks the active certificate without decrypting the private
// key: the stored metadata is enough to assess validity and expiry.
func (s *CertificateService) Validate(ctx context.Context, userID, tenantID string) (*models.CertificateValidation, error) {
	record, err := s.certs.GetActive(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, utils.ErrNoActiveCertificate
	}

	result := &models.CertificateValidation{Valid: true}
	now := time.Now()

	if now.Before(record.ValidFrom) {
		result.Valid = false
		result.Errors = append(result.Errors, "certificate is not yet valid")
	}
	if now.After(record.ValidTo) {
		result.Valid = false
		result.Errors = append(result.Errors, "certificate has expired")
	} else if record.ValidTo.Sub(now) < expiryWarningWindow {
		result.Warnings = append(result.Warnings, fmt.Sprintf("certificate expires on %s, renew it soon", record.ValidTo.Format("2006-01-02")))
	}

	if !issuerKnown(record.IssuerDN) {
		result.Warnings = append(result.Warnings, "certificate issuer is not a recognized qualified trust service provider")
	}

	return result, nil
}

// ValidateContainer dry-runs the upload checks on a raw PKCS12 container
// without persisting anything, so a taxpayer can verify a certificate
// before replacing the active one. Parse failures and a validity window
// excluding the current time are errors; an unrecognized issuer or fewer
// than 30 days of validity left are warnings.
func (s *CertificateService) ValidateContainer(containerData []byte, passphrase string) *models.CertificateValidation {
	result := &models.CertificateValidation{Valid: true}

	if len(passphrase) < minPassphraseLength {
		result.Valid = false
		result.Errors = append(result.Errors, "passphrase must be at least 8 characters")
		return result
	}

	_, leaf, _, err := pkcs12.DecodeChain(containerData, passphrase)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, "container could not be parsed with the given passphrase")
		return result
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) {
		result.Valid = false
		result.Errors = append(result.Errors, "certificate is not yet valid")
	}
	if now.After(leaf.NotAfter) {
		result.Valid = false
		result.Errors = append(result.Errors, "certificate has expired")
	} else if leaf.NotAfter.Sub(now) < expiryWarningWindow {
		result.Warnings = append(result.Warnings, fmt.Sprintf("certificate expires on %s, renew it soon", leaf.NotAfter.Format("2006-01-02")))
	}

	if !issuerKnown(leaf.Issuer.String()) {
		result.Warnings = append(result.Warnings, "certificate issuer is not a recognized qualified trust service provider")
	}

	return result
}

func (s *CertificateService) Revoke(ctx context.Context, userID, tenantID string) error {
	record, err := s.certs.GetActive(ctx, userID, tenantID)
	if err != nil {
		return err
	}
	if record == nil {
		return utils.ErrNoActiveCertificate
	}

	if err := s.certs.Deactivate(ctx, userID, tenantID); err != nil {
		return err
	}

	s.audit.LogAction(ctx, tenantID, userID, models.AuditActionCertificateRevoke, models.AuditResourceCertificate, record.ID, true, "")
	return nil
}

// List returns metadata for every certificate the owner ever uploaded,
// newest first. Key material never leaves the vault.
func (s *CertificateService) List(ctx context.Context, userID, tenantID string) ([]*models.CertificateMetadata, error) {
	records, err := s.certs.ListByOwner(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	metas := make([]*models.CertificateMetadata, 0, len(records))
	for _, r := range records {
		metas = append(metas, &models.CertificateMetadata{
			Thumbprint:   r.Thumbprint,
			SerialNumber: r.SerialNumber,
			SubjectDN:    r.SubjectDN,
			IssuerDN:     r.IssuerDN,
			ValidFrom:    r.ValidFrom,
			ValidTo:      r.ValidTo,
		})
	}
	return metas, nil
}

func metadataOf(cert *x509.Certificate) *models.CertificateMetadata {
	// SHA-1 is the conventional certificate thumbprint, used only as an
	// identifier, never for integrity.
	sum := sha1.Sum(cert.Raw)
	return &models.CertificateMetadata{
		Thumbprint:   hex.EncodeToString(sum[:]),
		SerialNumber: cert.SerialNumber.String(),
		SubjectDN:    cert.Subject.String(),
		IssuerDN:     cert.Issuer.String(),
		ValidFrom:    cert.NotBefore,
		ValidTo:      cert.NotAfter,
	}
}

func issuerKnown(issuerDN string) bool {
	lower := strings.ToLower(issuerDN)
	for _, issuer := range knownIssuers {
		if strings.Contains(lower, issuer) {
			return true
		}
	}
	return false
}
