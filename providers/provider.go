package providers

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/utils"
)

// Provider is the document-exchange surface of the tax authority: one upload,
// status and download endpoint authenticated with bearer tokens, plus the
// OAuth2 token endpoint shared by both grant flows.
type Provider interface {
	UploadInvoice(ctx context.Context, accessToken string, invoiceXML []byte, opts UploadOptions) (*UploadResult, error)
	GetStatus(ctx context.Context, accessToken, requestID string) (*StatusResult, error)
	DownloadResponse(ctx context.Context, accessToken, requestID string) ([]byte, error)
	ExchangeToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error)
	IsAvailable(ctx context.Context) bool
}

type UploadOptions struct {
	TaxID    string
	Standard string
}

type UploadResult struct {
	RequestID string
	Message   string
	Timestamp time.Time
}

type StatusResult struct {
	RequestID  string
	Status     models.SubmissionStatus
	Message    string
	DownloadID string
}

type GrantType string

const (
	GrantClientCredentials GrantType = "client_credentials"
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
)

// TokenRequest is a tagged variant over the supported grants. ClientTLS is
// required for the authorization-code and refresh flows, where the identity
// provider demands mutual TLS with the taxpayer certificate.
type TokenRequest struct {
	Grant        GrantType
	Code         string
	RedirectURI  string
	RefreshToken string
	ClientTLS    *tls.Certificate
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Wrapper adds circuit breaking and background health checking around a
// Provider, mirroring how every outbound dependency is wrapped here.
type Wrapper struct {
	provider       Provider
	circuitBreaker *utils.CircuitBreaker
	healthChecker  *utils.HealthChecker
	name           string
}

func CreateWrapper(provider Provider, name string) *Wrapper {
	w := &Wrapper{
		provider:       provider,
		name:           name,
		circuitBreaker: utils.CreateCircuitBreaker(5, 30*time.Second),
	}

	w.healthChecker = utils.CreateHealthChecker(w.healthCheck, 30*time.Second, 5*time.Second)
	w.healthChecker.Start()

	return w
}

func (w *Wrapper) healthCheck(ctx context.Context) error {
	if w.provider.IsAvailable(ctx) {
		return nil
	}
	return utils.ErrAuthorityUnavailable
}

func (w *Wrapper) UploadInvoice(ctx context.Context, accessToken string, invoiceXML []byte, opts UploadOptions) (*UploadResult, error) {
	var resp *UploadResult
	err := w.circuitBreaker.Execute(ctx, func() error {
		var err error
		resp, err = w.provider.UploadInvoice(ctx, accessToken, invoiceXML, opts)
		return err
	})
	return resp, err
}

func (w *Wrapper) GetStatus(ctx context.Context, accessToken, requestID string) (*StatusResult, error) {
	var resp *StatusResult
	err := w.circuitBreaker.Execute(ctx, func() error {
		var err error
		resp, err = w.provider.GetStatus(ctx, accessToken, requestID)
		return err
	})
	return resp, err
}

func (w *Wrapper) DownloadResponse(ctx context.Context, accessToken, requestID string) ([]byte, error) {
	var resp []byte
	err := w.circuitBreaker.Execute(ctx, func() error {
		var err error
		resp, err = w.provider.DownloadResponse(ctx, accessToken, requestID)
		return err
	})
	return resp, err
}

func (w *Wrapper) ExchangeToken(ctx context.Context, req *TokenRequest) (*TokenResponse, error) {
	var resp *TokenResponse
	err := w.circuitBreaker.Execute(ctx, func() error {
		var err error
		resp, err = w.provider.ExchangeToken(ctx, req)
		return err
	})
	return resp, err
}

func (w *Wrapper) IsAvailable(ctx context.Context) bool {
	return w.healthChecker.GetStatus() != utils.StatusUnhealthy
}

func (w *Wrapper) Close() {
	w.healthChecker.Stop()
}
