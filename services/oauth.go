package services

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rykyfilipe/efactura-engine/config"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/utils"
)

// refreshThreshold is how close to expiry an access token may get before a
// refresh is attempted instead of handing out the stored token.
const refreshThreshold = 5 * time.Minute

// stateTTL bounds how long an issued authorization state stays redeemable.
const stateTTL = time.Hour

type credentialStore interface {
	Upsert(ctx context.Context, cred *models.OAuthCredential) error
	GetActive(ctx context.Context, userID, tenantID string) (*models.OAuthCredential, error)
	Deactivate(ctx context.Context, userID, tenantID string) error
}

type tokenExchanger interface {
	ExchangeToken(ctx context.Context, req *providers.TokenRequest) (*providers.TokenResponse, error)
}

// OAuthService drives both grant flows against the authority: the
// authorization-code flow with mutual TLS for taxpayer access, and the
// client-credentials flow for application-level calls.
type OAuthService struct {
	cfg         config.ANAFConfig
	provider    tokenExchanger
	creds       credentialStore
	vault       *CertificateService
	audit       *AuditService
	retryCfg    *utils.RetryConfig
	stateSecret []byte
	logger      *utils.Logger
}

func CreateOAuthService(cfg config.ANAFConfig, provider tokenExchanger, creds credentialStore, vault *CertificateService, audit *AuditService, stateSecret []byte) *OAuthService {
	return &OAuthService{
		cfg:      cfg,
		provider: provider,
		creds:    creds,
		vault:    vault,
		audit:    audit,
		retryCfg: &utils.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
			Jitter:      true,
			BackoffType: utils.ExponentialJitter,
			ShouldRetry: providers.IsRetryable,
		},
		stateSecret: stateSecret,
		logger:      utils.CreateLogger("oauth"),
	}
}

type statePayload struct {
	UserID   string `json:"user_id"`
	TenantID string `json:"tenant_id"`
	Nonce    string `json:"nonce"`
	IssuedAt int64  `json:"issued_at"`
}

// AuthorizationURL builds the redirect to the authority's consent page. The
// state parameter is an HMAC-signed payload binding the flow to its owner,
// so the callback cannot be replayed for another account.
func (s *OAuthService) AuthorizationURL(userID, tenantID string) (string, error) {
	state, err := s.signState(userID, tenantID)
	if err != nil {
		return "", err
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", s.cfg.ClientID)
	params.Set("redirect_uri", s.cfg.RedirectURI)
	params.Set("token_content_type", "jwt")
	params.Set("state", state)

	return s.cfg.AuthorizeURL + "?" + params.Encode(), nil
}

// ExchangeCode redeems an authorization code. The taxpayer certificate from
// the vault is presented as the TLS client identity, which is how the
// authority ties the resulting token to the certificate holder.
func (s *OAuthService) ExchangeCode(ctx context.Context, code, state string) (string, string, error) {
	payload, err := s.verifyState(state)
	if err != nil {
		return "", "", err
	}
	userID, tenantID := payload.UserID, payload.TenantID

	clientTLS, err := s.vault.TLSCertificate(ctx, userID, tenantID)
	if err != nil {
		return "", "", err
	}

	resp, err := s.provider.ExchangeToken(ctx, &providers.TokenRequest{
		Grant:       providers.GrantAuthorizationCode,
		Code:        code,
		RedirectURI: s.cfg.RedirectURI,
		ClientTLS:   clientTLS,
	})
	if err != nil {
		cerr := providers.Classify(providers.OpToken, err)
		s.audit.LogClassified(ctx, tenantID, userID, "", s.cfg.TokenURL, cerr)
		s.audit.LogAction(ctx, tenantID, userID, models.AuditActionTokenExchange, models.AuditResourceCredential, "", false, cerr.Message)
		return "", "", cerr
	}

	if err := s.storeCredential(ctx, userID, tenantID, resp); err != nil {
		return "", "", err
	}

	s.audit.LogAction(ctx, tenantID, userID, models.AuditActionTokenExchange, models.AuditResourceCredential, "", true, "")
	return userID, tenantID, nil
}

// GetValidAccessToken returns a token with comfortable remaining lifetime,
// refreshing transparently when the stored one is expired or close to it.
// A failed refresh deactivates the credential and demands re-authentication.
func (s *OAuthService) GetValidAccessToken(ctx context.Context, userID, tenantID string) (string, error) {
	cred, err := s.creds.GetActive(ctx, userID, tenantID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", utils.ErrNoActiveCredential
	}

	if cred.RemainingLifetime() > refreshThreshold {
		return cred.AccessToken, nil
	}

	refreshed, err := s.refresh(ctx, cred)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// IsAuthenticated never returns an error: it reports whether the account
// currently holds a usable credential, attempting at most one refresh.
func (s *OAuthService) IsAuthenticated(ctx context.Context, userID, tenantID string) bool {
	cred, err := s.creds.GetActive(ctx, userID, tenantID)
	if err != nil || cred == nil {
		return false
	}
	if cred.RemainingLifetime() > refreshThreshold {
		return true
	}
	_, err = s.refresh(ctx, cred)
	return err == nil
}

// AuthenticateClientCredentials runs the Basic-auth client-credentials
// exchange and persists the result as a service-level credential for the
// owner. Such credentials carry no refresh token; renewal re-runs the
// exchange (see refresh).
func (s *OAuthService) AuthenticateClientCredentials(ctx context.Context, userID, tenantID string) (*models.OAuthCredential, error) {
	resp, err := s.ClientCredentialsToken(ctx)
	if err != nil {
		cerr := providers.Classify(providers.OpToken, err)
		s.audit.LogClassified(ctx, tenantID, userID, "", s.cfg.TokenURL, cerr)
		s.audit.LogAction(ctx, tenantID, userID, models.AuditActionTokenExchange, models.AuditResourceCredential, "", false, cerr.Message)
		return nil, cerr
	}

	if err := s.storeCredential(ctx, userID, tenantID, resp); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, tenantID, userID, models.AuditActionTokenExchange, models.AuditResourceCredential, "", true, "")

	cred, err := s.creds.GetActive(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, utils.ErrNoActiveCredential
	}
	return cred, nil
}

// ClientCredentialsToken obtains an application token. Transient upstream
// failures are retried with backoff; authentication failures are not.
func (s *OAuthService) ClientCredentialsToken(ctx context.Context) (*providers.TokenResponse, error) {
	result, err := utils.CreateRetryWithResult(ctx, s.retryCfg, func() (interface{}, error) {
		resp, err := s.provider.ExchangeToken(ctx, &providers.TokenRequest{
			Grant: providers.GrantClientCredentials,
		})
		if err != nil {
			return nil, providers.Classify(providers.OpToken, err)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*providers.TokenResponse), nil
}

// refresh renews a credential the way it was obtained: taxpayer credentials
// via the refresh-token grant over mutual TLS, service-level credentials
// (no refresh token) by re-running the client-credentials exchange.
func (s *OAuthService) refresh(ctx context.Context, cred *models.OAuthCredential) (*models.OAuthCredential, error) {
	if cred.RefreshToken == "" {
		return s.refreshServiceCredential(ctx, cred)
	}

	clientTLS, err := s.vault.TLSCertificate(ctx, cred.UserID, cred.TenantID)
	if err != nil {
		return nil, err
	}

	resp, err := s.provider.ExchangeToken(ctx, &providers.TokenRequest{
		Grant:        providers.GrantRefreshToken,
		RefreshToken: cred.RefreshToken,
		ClientTLS:    clientTLS,
	})
	if err != nil {
		cerr := providers.Classify(providers.OpToken, err)
		s.audit.LogClassified(ctx, cred.TenantID, cred.UserID, "", s.cfg.TokenURL, cerr)
		s.audit.LogAction(ctx, cred.TenantID, cred.UserID, models.AuditActionTokenRefresh, models.AuditResourceCredential, cred.ID, false, cerr.Message)

		if !cerr.Retryable {
			// The refresh token is dead; keeping the credential active would
			// only repeat the failure on every call.
			if derr := s.creds.Deactivate(ctx, cred.UserID, cred.TenantID); derr != nil {
				s.logger.Error(ctx, "failed to deactivate stale credential", map[string]interface{}{"error": derr.Error()})
			}
			return nil, utils.ErrReauthRequired
		}
		return nil, cerr
	}

	if err := s.storeCredential(ctx, cred.UserID, cred.TenantID, resp); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, cred.TenantID, cred.UserID, models.AuditActionTokenRefresh, models.AuditResourceCredential, cred.ID, true, "")

	fresh, err := s.creds.GetActive(ctx, cred.UserID, cred.TenantID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, utils.ErrNoActiveCredential
	}
	return fresh, nil
}

func (s *OAuthService) refreshServiceCredential(ctx context.Context, cred *models.OAuthCredential) (*models.OAuthCredential, error) {
	resp, err := s.ClientCredentialsToken(ctx)
	if err != nil {
		cerr := providers.Classify(providers.OpToken, err)
		s.audit.LogClassified(ctx, cred.TenantID, cred.UserID, "", s.cfg.TokenURL, cerr)
		s.audit.LogAction(ctx, cred.TenantID, cred.UserID, models.AuditActionTokenRefresh, models.AuditResourceCredential, cred.ID, false, cerr.Message)

		if !cerr.Retryable {
			// The client registration itself is rejected; the credential is
			// unusable until the operator fixes it.
			if derr := s.creds.Deactivate(ctx, cred.UserID, cred.TenantID); derr != nil {
				s.logger.Error(ctx, "failed to deactivate stale credential", map[string]interface{}{"error": derr.Error()})
			}
			return nil, utils.ErrReauthRequired
		}
		return nil, cerr
	}

	if err := s.storeCredential(ctx, cred.UserID, cred.TenantID, resp); err != nil {
		return nil, err
	}

	s.audit.LogAction(ctx, cred.TenantID, cred.UserID, models.AuditActionTokenRefresh, models.AuditResourceCredential, cred.ID, true, "")

	fresh, err := s.creds.GetActive(ctx, cred.UserID, cred.TenantID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, utils.ErrNoActiveCredential
	}
	return fresh, nil
}

func (s *OAuthService) storeCredential(ctx context.Context, userID, tenantID string, resp *providers.TokenResponse) error {
	tokenType := resp.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return s.creds.Upsert(ctx, &models.OAuthCredential{
		UserID:       userID,
		TenantID:     tenantID,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    tokenType,
		Scope:        resp.Scope,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	})
}

func (s *OAuthService) signState(userID, tenantID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	payload, err := json.Marshal(statePayload{
		UserID:   userID,
		TenantID: tenantID,
		Nonce:    base64.RawURLEncoding.EncodeToString(nonce),
		IssuedAt: time.Now().Unix(),
	})
	if err != nil {
		return "", err
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, s.stateSecret)
	mac.Write([]byte(encoded))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return encoded + "." + sig, nil
}

func (s *OAuthService) verifyState(state string) (*statePayload, error) {
	parts := strings.Split(state, ".")
	if len(parts) != 2 {
		return nil, utils.ErrInvalidState
	}

	mac := hmac.New(sha256.New, s.stateSecret)
	mac.Write([]byte(parts[0]))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(parts[1])) {
		return nil, utils.ErrInvalidState
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, utils.ErrInvalidState
	}

	var payload statePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, utils.ErrInvalidState
	}

	if time.Since(time.Unix(payload.IssuedAt, 0)) > stateTTL {
		return nil, utils.ErrInvalidState
	}
	if payload.UserID == "" || payload.TenantID == "" {
		return nil, utils.ErrInvalidState
	}

	return &payload, nil
}
