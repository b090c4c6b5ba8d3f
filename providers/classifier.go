package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

type ErrorCategory string

const (
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryValidation     ErrorCategory = "validation"
	CategoryNetwork        ErrorCategory = "network"
	CategoryUpstreamAPI    ErrorCategory = "upstream-api"
	CategoryDocumentGen    ErrorCategory = "document-generation"
	CategoryToken          ErrorCategory = "token"
	CategorySubmission     ErrorCategory = "submission"
	CategoryStatusCheck    ErrorCategory = "status-check"
	CategoryDownload       ErrorCategory = "download"
	CategoryRateLimit      ErrorCategory = "rate-limit"
	CategoryUnknown        ErrorCategory = "unknown"
)

const (
	OpUpload      = "upload"
	OpStatusCheck = "status-check"
	OpDownload    = "download"
	OpToken       = "token"
)

// ClassifiedError is the single error type crossing the provider boundary.
// Message is technical and lands in the error log; UserMessage is the
// localized text shown to end users. Raw keeps the upstream body for audit.
type ClassifiedError struct {
	Category    ErrorCategory
	Operation   string
	Message     string
	UserMessage string
	Retryable   bool
	RetryAfter  time.Duration
	StatusCode  int
	Raw         string
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Operation, e.Message)
}

// RetryAfterHint satisfies utils.RetryAfterHinter so the retry helper honors
// upstream Retry-After values.
func (e *ClassifiedError) RetryAfterHint() time.Duration {
	return e.RetryAfter
}

func categoryRetryable(c ErrorCategory) bool {
	switch c {
	case CategoryNetwork, CategoryUpstreamAPI, CategorySubmission, CategoryStatusCheck, CategoryDownload, CategoryRateLimit:
		return true
	}
	return false
}

func opCategory(operation string) ErrorCategory {
	switch operation {
	case OpUpload:
		return CategorySubmission
	case OpStatusCheck:
		return CategoryStatusCheck
	case OpDownload:
		return CategoryDownload
	case OpToken:
		return CategoryToken
	}
	return CategoryUnknown
}

// oauthMessages maps the OAuth2 standard error codes to fixed user-facing
// messages. The authority serves Romanian taxpayers, so the messages are
// localized accordingly.
var oauthMessages = map[string]string{
	"invalid_client":          "Datele de identificare ale aplicației sunt invalide. Verificați configurarea integrării ANAF.",
	"invalid_grant":           "Autorizarea a expirat sau a fost revocată. Reautentificați-vă cu certificatul digital.",
	"unauthorized_client":     "Aplicația nu este autorizată pentru acest tip de acces.",
	"invalid_scope":           "Domeniul de acces solicitat nu este permis.",
	"access_denied":           "Accesul a fost refuzat de ANAF.",
	"server_error":            "Serviciul ANAF a întâmpinat o eroare internă. Încercați din nou mai târziu.",
	"temporarily_unavailable": "Serviciul ANAF este temporar indisponibil. Încercați din nou mai târziu.",
}

const defaultUserMessage = "A apărut o eroare la comunicarea cu ANAF. Încercați din nou sau contactați suportul."

// ClassifyHTTP maps an upstream HTTP failure status into the taxonomy.
// Resource-not-found is marked non-retryable regardless of the operation's
// default category: repeating the call cannot make the resource appear.
func ClassifyHTTP(operation string, status int, body string, retryAfter time.Duration) *ClassifiedError {
	e := &ClassifiedError{
		Operation:  operation,
		StatusCode: status,
		Raw:        body,
	}

	switch {
	case status == 401:
		e.Category = CategoryToken
		e.Message = "access token invalid or expired"
		e.UserMessage = "Sesiunea ANAF a expirat. Reautentificați-vă cu certificatul digital."
	case status == 403:
		e.Category = CategoryAuthorization
		e.Message = "access forbidden or quota policy violated"
		e.UserMessage = "Nu aveți drepturi pentru această operațiune la ANAF."
	case status == 404:
		e.Category = opCategory(operation)
		e.Message = "resource not found upstream"
		e.UserMessage = "Resursa solicitată nu a fost găsită la ANAF."
		e.Retryable = false
		return e
	case status == 429:
		e.Category = CategoryRateLimit
		e.Message = "Too Many Requests"
		e.UserMessage = "Limita de cereri către ANAF a fost atinsă. Reîncercați mai târziu."
		e.RetryAfter = retryAfter
	case status >= 500:
		e.Category = CategoryUpstreamAPI
		e.Message = fmt.Sprintf("upstream returned status %d", status)
		e.UserMessage = oauthMessages["temporarily_unavailable"]
	case status >= 400:
		e.Category = CategoryValidation
		e.Message = fmt.Sprintf("upstream rejected the request with status %d", status)
		e.UserMessage = "Cererea a fost respinsă de ANAF. Verificați datele trimise."
	default:
		e.Category = CategoryUnknown
		e.Message = fmt.Sprintf("unexpected upstream status %d", status)
		e.UserMessage = defaultUserMessage
	}

	e.Retryable = categoryRetryable(e.Category)
	return e
}

// ClassifyOAuthError maps a structured OAuth2 error response.
func ClassifyOAuthError(operation, code, description string) *ClassifiedError {
	userMessage, known := oauthMessages[code]
	if !known {
		userMessage = defaultUserMessage
	}

	category := CategoryAuthentication
	switch code {
	case "server_error", "temporarily_unavailable":
		category = CategoryUpstreamAPI
	case "invalid_scope", "unauthorized_client", "access_denied":
		category = CategoryAuthorization
	}

	return &ClassifiedError{
		Category:    category,
		Operation:   operation,
		Message:     fmt.Sprintf("oauth error %q: %s", code, description),
		UserMessage: userMessage,
		Retryable:   categoryRetryable(category),
		Raw:         description,
	}
}

// Classify folds an arbitrary error into the taxonomy. Structured signals
// (an already classified error, context and net errors, TLS handshake
// failures) are preferred; keyword matching on the message is only the
// fallback for errors carrying no structure at all.
func Classify(operation string, err error) *ClassifiedError {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	msg := err.Error()

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Operation:   operation,
			Message:     msg,
			UserMessage: "Cererea către ANAF a expirat. Încercați din nou.",
			Retryable:   true,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &ClassifiedError{
			Category:    CategoryNetwork,
			Operation:   operation,
			Message:     msg,
			UserMessage: "Conexiunea către ANAF a eșuat. Verificați rețeaua și încercați din nou.",
			Retryable:   true,
		}
	}

	lower := strings.ToLower(msg)

	// Certificate and key problems all surface as generic handshake
	// failures; translate them into something the taxpayer can act on.
	if strings.Contains(lower, "tls") || strings.Contains(lower, "handshake") ||
		strings.Contains(lower, "certificate") || strings.Contains(lower, "x509") {
		return &ClassifiedError{
			Category:    CategoryAuthentication,
			Operation:   operation,
			Message:     msg,
			UserMessage: "Autentificarea cu certificatul digital a eșuat. Verificați că certificatul este valid, neexpirat și că parola este corectă.",
			Retryable:   false,
		}
	}

	switch {
	case strings.Contains(lower, "token"):
		return keywordError(CategoryToken, operation, msg, "Sesiunea ANAF a expirat. Reautentificați-vă.")
	case strings.Contains(lower, "unauthorized"), strings.Contains(lower, "forbidden"):
		return keywordError(CategoryAuthorization, operation, msg, "Nu aveți drepturi pentru această operațiune.")
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "connection"), strings.Contains(lower, "refused"):
		return keywordError(CategoryNetwork, operation, msg, "Conexiunea către ANAF a eșuat. Încercați din nou.")
	case strings.Contains(lower, "xml"), strings.Contains(lower, "parse"):
		return keywordError(CategoryDocumentGen, operation, msg, "Documentul XML nu a putut fi generat sau interpretat.")
	case strings.Contains(lower, "validation"), strings.Contains(lower, "invalid"):
		return keywordError(CategoryValidation, operation, msg, "Datele facturii nu au trecut de validare.")
	}

	return keywordError(CategoryUnknown, operation, msg, defaultUserMessage)
}

func keywordError(category ErrorCategory, operation, msg, userMessage string) *ClassifiedError {
	return &ClassifiedError{
		Category:    category,
		Operation:   operation,
		Message:     msg,
		UserMessage: userMessage,
		Retryable:   categoryRetryable(category),
	}
}

func IsRetryable(err error) bool {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
