package models

import (
	"time"
)

type AuditLog struct {
	ID           string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID     *string   `json:"tenant_id" gorm:"index"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action" gorm:"not null"`
	ResourceType string    `json:"resource_type" gorm:"not null"`
	ResourceID   string    `json:"resource_id"`
	Success      bool      `json:"success" gorm:"not null"`
	ErrorMessage string    `json:"error_message"`
	Metadata     JSON      `json:"metadata" gorm:"type:jsonb;default:'{}'"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

type AuditAction string

const (
	AuditActionCertificateUpload AuditAction = "certificate_upload"
	AuditActionCertificateRevoke AuditAction = "certificate_revoke"
	AuditActionTokenExchange     AuditAction = "token_exchange"
	AuditActionTokenRefresh      AuditAction = "token_refresh"
	AuditActionSubmissionUpload  AuditAction = "submission_upload"
	AuditActionStatusCheck       AuditAction = "status_check"
	AuditActionDownload          AuditAction = "download"
)

type AuditResourceType string

const (
	AuditResourceCertificate AuditResourceType = "certificate"
	AuditResourceCredential  AuditResourceType = "credential"
	AuditResourceSubmission  AuditResourceType = "submission"
)

// ErrorLog keeps every classified upstream failure with enough context for
// audit and alerting analysis. Raw upstream bodies land here and nowhere
// else; end users only ever see the classified message.
type ErrorLog struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID  string    `json:"tenant_id" gorm:"index"`
	UserID    string    `json:"user_id"`
	InvoiceID string    `json:"invoice_id" gorm:"index"`
	Operation string    `json:"operation" gorm:"not null"`
	Endpoint  string    `json:"endpoint"`
	Category  string    `json:"category" gorm:"not null;index"`
	Message   string    `json:"message" gorm:"not null"`
	Raw       string    `json:"raw"`
	Retryable bool      `json:"retryable" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

type AuditLogFilter struct {
	TenantID     string
	UserID       string
	Action       string
	ResourceType string
	StartDate    *time.Time
	EndDate      *time.Time
	Limit        int
	Offset       int
}
