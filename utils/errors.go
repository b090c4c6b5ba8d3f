package utils

import (
	"errors"
	"fmt"
	"net/http"
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return e.Message
}

func CreateAPIError(code int, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

func CreateAPIErrorWithDetails(code int, message, details string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	ErrInvalidRequest     = CreateAPIError(http.StatusBadRequest, "Invalid request")
	ErrUnauthorized       = CreateAPIError(http.StatusUnauthorized, "Unauthorized")
	ErrForbidden          = CreateAPIError(http.StatusForbidden, "Forbidden")
	ErrNotFound           = CreateAPIError(http.StatusNotFound, "Resource not found")
	ErrConflict           = CreateAPIError(http.StatusConflict, "Resource conflict")
	ErrTooManyRequests    = CreateAPIError(http.StatusTooManyRequests, "Too many requests")
	ErrInternalServer     = CreateAPIError(http.StatusInternalServerError, "Internal server error")
	ErrServiceUnavailable = CreateAPIError(http.StatusServiceUnavailable, "Service unavailable")
	ErrGatewayTimeout     = CreateAPIError(http.StatusGatewayTimeout, "Gateway timeout")
)

var (
	ErrWeakPassphrase        = CreateAPIError(http.StatusBadRequest, "Certificate passphrase must be at least 8 characters")
	ErrCertificateParse      = CreateAPIError(http.StatusBadRequest, "Certificate container could not be parsed")
	ErrCertificateExpired    = CreateAPIError(http.StatusBadRequest, "Certificate validity window does not include the current time")
	ErrNoActiveCertificate   = CreateAPIError(http.StatusNotFound, "No active certificate for this account")
	ErrNoActiveCredential    = CreateAPIError(http.StatusUnauthorized, "No active authority credential for this account")
	ErrReauthRequired        = CreateAPIError(http.StatusUnauthorized, "Re-authentication with the tax authority is required")
	ErrInvalidState          = CreateAPIError(http.StatusBadRequest, "Authorization state parameter is invalid or expired")
	ErrInvoiceNotFound       = CreateAPIError(http.StatusNotFound, "Invoice not found")
	ErrSubmissionNotFound    = CreateAPIError(http.StatusNotFound, "Submission not found")
	ErrSubmissionNotAccepted = CreateAPIError(http.StatusConflict, "Submission has not been accepted by the authority")
)

var (
	ErrEncryptionFailed  = CreateAPIError(http.StatusInternalServerError, "Encryption failed")
	ErrDecryptionFailed  = CreateAPIError(http.StatusInternalServerError, "Decryption failed")
	ErrInvalidToken      = CreateAPIError(http.StatusUnauthorized, "Invalid token")
	ErrTokenExpired      = CreateAPIError(http.StatusUnauthorized, "Token expired")
	ErrRateLimitExceeded = CreateAPIError(http.StatusTooManyRequests, "Rate limit exceeded")
)

var (
	ErrAuthorityUnavailable = CreateAPIError(http.StatusServiceUnavailable, "Tax authority service unavailable")
	ErrAuthorityTimeout     = CreateAPIError(http.StatusGatewayTimeout, "Tax authority request timed out")
)

func WrapError(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
