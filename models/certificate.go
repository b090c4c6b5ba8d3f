package models

import (
	"time"
)

// ClientCertificate holds an uploaded taxpayer PKCS12 container together with
// its passphrase, both encrypted with AES-256-GCM. The container and the
// passphrase each carry their own random nonce; the per-record salt binds the
// two ciphertexts to this row as GCM associated data. Rows are never deleted:
// uploading a replacement deactivates the previous certificate so the audit
// history stays intact.
type ClientCertificate struct {
	ID            string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	UserID        string    `json:"user_id" gorm:"not null;index:idx_certificate_owner"`
	TenantID      string    `json:"tenant_id" gorm:"not null;index:idx_certificate_owner"`
	EncryptedData []byte    `json:"-" gorm:"not null"`
	DataNonce     []byte    `json:"-" gorm:"not null"`
	DataTag       []byte    `json:"-" gorm:"not null"`
	EncryptedPass []byte    `json:"-" gorm:"not null"`
	PassNonce     []byte    `json:"-" gorm:"not null"`
	PassTag       []byte    `json:"-" gorm:"not null"`
	Salt          []byte    `json:"-" gorm:"not null"`
	Thumbprint    string    `json:"thumbprint" gorm:"not null;index"`
	SerialNumber  string    `json:"serial_number" gorm:"not null"`
	SubjectDN     string    `json:"subject_dn" gorm:"not null"`
	IssuerDN      string    `json:"issuer_dn" gorm:"not null"`
	ValidFrom     time.Time `json:"valid_from" gorm:"not null"`
	ValidTo       time.Time `json:"valid_to" gorm:"not null"`
	Active        bool      `json:"active" gorm:"not null;default:true;index"`
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (c *ClientCertificate) Expired() bool {
	return time.Now().After(c.ValidTo)
}

// CertificateMetadata is the parse result returned to callers on upload and
// validation. It never contains key material.
type CertificateMetadata struct {
	Thumbprint   string    `json:"thumbprint"`
	SerialNumber string    `json:"serial_number"`
	SubjectDN    string    `json:"subject_dn"`
	IssuerDN     string    `json:"issuer_dn"`
	ValidFrom    time.Time `json:"valid_from"`
	ValidTo      time.Time `json:"valid_to"`
}

type CertificateValidation struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
