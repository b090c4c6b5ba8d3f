package models

import (
	"time"
)

type SubmissionStatus string

const (
	SubmissionStatusReceived   SubmissionStatus = "received"
	SubmissionStatusValidated  SubmissionStatus = "validated"
	SubmissionStatusProcessing SubmissionStatus = "processing"
	SubmissionStatusAccepted   SubmissionStatus = "accepted"
	SubmissionStatusRejected   SubmissionStatus = "rejected"
	SubmissionStatusError      SubmissionStatus = "error"
	SubmissionStatusTimeout    SubmissionStatus = "timeout"
)

// Terminal reports whether a status can no longer change. A terminal
// submission record is immutable.
func (s SubmissionStatus) Terminal() bool {
	switch s {
	case SubmissionStatusAccepted, SubmissionStatusRejected, SubmissionStatusError, SubmissionStatusTimeout:
		return true
	}
	return false
}

// SubmissionRecord tracks one delivery attempt of a signed invoice document
// to the authority. A record is created for every attempt, including ones
// that fail before the upstream assigns a request identifier; RequestID is
// set exactly when the status has moved past "received".
type SubmissionRecord struct {
	ID            string           `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	TenantID      string           `json:"tenant_id" gorm:"not null;index"`
	InvoiceID     string           `json:"invoice_id" gorm:"not null;index"`
	RequestID     string           `json:"request_id" gorm:"index"`
	Status        SubmissionStatus `json:"status" gorm:"not null;default:'received'"`
	Message       string           `json:"message"`
	ErrorDetail   string           `json:"error_detail,omitempty"`
	SignedXML     string           `json:"-"`
	RetryCount    int              `json:"retry_count" gorm:"default:0"`
	SubmittedAt   time.Time        `json:"submitted_at" gorm:"autoCreateTime"`
	LastCheckedAt *time.Time       `json:"last_checked_at"`
	UpdatedAt     time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
}

type SubmissionFilter struct {
	TenantID  string
	InvoiceID string
	Status    SubmissionStatus
	Limit     int
	Offset    int
}
