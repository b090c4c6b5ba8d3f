package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rykyfilipe/efactura-engine/config"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/utils"
	"github.com/stretchr/testify/require"
)

var testANAFConfig = config.ANAFConfig{
	ClientID:     "client-id",
	ClientSecret: "client-secret",
	RedirectURI:  "https://example.com/callback",
	AuthorizeURL: "https://logincert.example.com/authorize",
	TokenURL:     "https://logincert.example.com/token",
}

func newOAuthFixture(t *testing.T, exchanger *fakeExchanger) (*OAuthService, *fakeCredentialStore) {
	t.Helper()
	vault, _ := newTestVault(t)
	creds := &fakeCredentialStore{}
	svc := CreateOAuthService(testANAFConfig, exchanger, creds, vault, newTestAudit(), []byte("state-secret"))
	svc.retryCfg.BaseDelay = time.Millisecond
	svc.retryCfg.MaxDelay = 5 * time.Millisecond
	return svc, creds
}

func TestAuthorizationURLCarriesSignedState(t *testing.T) {
	svc, _ := newOAuthFixture(t, &fakeExchanger{})

	rawURL, err := svc.AuthorizationURL(testUserID, testTenantID)
	require.NoError(t, err)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)
	require.Equal(t, "code", parsed.Query().Get("response_type"))
	require.Equal(t, "client-id", parsed.Query().Get("client_id"))
	require.Equal(t, "jwt", parsed.Query().Get("token_content_type"))

	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	payload, err := svc.verifyState(state)
	require.NoError(t, err)
	require.Equal(t, testUserID, payload.UserID)
	require.Equal(t, testTenantID, payload.TenantID)
}

func TestVerifyStateRejectsTampering(t *testing.T) {
	svc, _ := newOAuthFixture(t, &fakeExchanger{})

	state, err := svc.signState(testUserID, testTenantID)
	require.NoError(t, err)

	parts := strings.Split(state, ".")
	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)

	var payload statePayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	payload.TenantID = "tenant-evil"
	forged, err := json.Marshal(payload)
	require.NoError(t, err)

	_, err = svc.verifyState(base64.RawURLEncoding.EncodeToString(forged) + "." + parts[1])
	require.ErrorIs(t, err, utils.ErrInvalidState)

	_, err = svc.verifyState("garbage")
	require.ErrorIs(t, err, utils.ErrInvalidState)
}

func TestVerifyStateRejectsExpired(t *testing.T) {
	svc, _ := newOAuthFixture(t, &fakeExchanger{})

	payload, err := json.Marshal(statePayload{
		UserID:   testUserID,
		TenantID: testTenantID,
		Nonce:    "n",
		IssuedAt: time.Now().Add(-2 * time.Hour).Unix(),
	})
	require.NoError(t, err)

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	mac := hmac.New(sha256.New, []byte("state-secret"))
	mac.Write([]byte(encoded))
	state := encoded + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	_, err = svc.verifyState(state)
	require.ErrorIs(t, err, utils.ErrInvalidState)
}

func TestExchangeCodePersistsCredential(t *testing.T) {
	exchanger := &fakeExchanger{
		responses: []*providers.TokenResponse{{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "Bearer",
			ExpiresIn:    3600,
		}},
	}
	svc, creds := newOAuthFixture(t, exchanger)

	state, err := svc.signState(testUserID, testTenantID)
	require.NoError(t, err)

	userID, tenantID, err := svc.ExchangeCode(context.Background(), "auth-code", state)
	require.NoError(t, err)
	require.Equal(t, testUserID, userID)
	require.Equal(t, testTenantID, tenantID)

	require.Equal(t, providers.GrantAuthorizationCode, exchanger.requests[0].Grant)
	require.NotNil(t, exchanger.requests[0].ClientTLS, "code exchange must present the taxpayer certificate")

	cred, err := creds.GetActive(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.NotNil(t, cred)
	require.Equal(t, "access-1", cred.AccessToken)
}

func TestGetValidAccessTokenReturnsFreshWithoutRefresh(t *testing.T) {
	exchanger := &fakeExchanger{}
	svc, creds := newOAuthFixture(t, exchanger)

	require.NoError(t, creds.Upsert(context.Background(), &models.OAuthCredential{
		UserID:      testUserID,
		TenantID:    testTenantID,
		AccessToken: "fresh-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	token, err := svc.GetValidAccessToken(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.Equal(t, "fresh-token", token)
	require.Zero(t, exchanger.calls, "a fresh token must not trigger a refresh")
}

func TestGetValidAccessTokenRefreshesNearExpiry(t *testing.T) {
	exchanger := &fakeExchanger{
		responses: []*providers.TokenResponse{{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			ExpiresIn:    3600,
		}},
	}
	svc, creds := newOAuthFixture(t, exchanger)

	require.NoError(t, creds.Upsert(context.Background(), &models.OAuthCredential{
		UserID:       testUserID,
		TenantID:     testTenantID,
		AccessToken:  "stale-token",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Minute),
	}))

	token, err := svc.GetValidAccessToken(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.Equal(t, "access-2", token)
	require.Equal(t, 1, exchanger.calls)
	require.Equal(t, providers.GrantRefreshToken, exchanger.requests[0].Grant)
}

func TestGetValidAccessTokenDemandsReauthOnDeadRefreshToken(t *testing.T) {
	exchanger := &fakeExchanger{
		errs: []error{providers.ClassifyOAuthError(providers.OpToken, "invalid_grant", "revoked")},
	}
	svc, creds := newOAuthFixture(t, exchanger)

	require.NoError(t, creds.Upsert(context.Background(), &models.OAuthCredential{
		UserID:       testUserID,
		TenantID:     testTenantID,
		AccessToken:  "stale-token",
		RefreshToken: "refresh-dead",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	_, err := svc.GetValidAccessToken(context.Background(), testUserID, testTenantID)
	require.ErrorIs(t, err, utils.ErrReauthRequired)

	cred, err := creds.GetActive(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.Nil(t, cred, "a dead credential must be deactivated")
}

func TestGetValidAccessTokenWithoutCredential(t *testing.T) {
	svc, _ := newOAuthFixture(t, &fakeExchanger{})

	_, err := svc.GetValidAccessToken(context.Background(), testUserID, testTenantID)
	require.ErrorIs(t, err, utils.ErrNoActiveCredential)
}

func TestIsAuthenticatedNeverErrors(t *testing.T) {
	svc, creds := newOAuthFixture(t, &fakeExchanger{})

	require.False(t, svc.IsAuthenticated(context.Background(), testUserID, testTenantID))

	require.NoError(t, creds.Upsert(context.Background(), &models.OAuthCredential{
		UserID:      testUserID,
		TenantID:    testTenantID,
		AccessToken: "fresh-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))
	require.True(t, svc.IsAuthenticated(context.Background(), testUserID, testTenantID))
}

func TestAuthenticateClientCredentialsPersistsServiceCredential(t *testing.T) {
	exchanger := &fakeExchanger{
		responses: []*providers.TokenResponse{{
			AccessToken: "app-token",
			ExpiresIn:   900,
		}},
	}
	svc, creds := newOAuthFixture(t, exchanger)

	cred, err := svc.AuthenticateClientCredentials(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.Equal(t, "app-token", cred.AccessToken)
	require.Empty(t, cred.RefreshToken, "service-level credentials carry no refresh token")

	require.Equal(t, providers.GrantClientCredentials, exchanger.requests[0].Grant)
	require.Nil(t, exchanger.requests[0].ClientTLS, "the client-credentials exchange uses Basic auth only")

	stored, err := creds.GetActive(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "app-token", stored.AccessToken)
}

func TestGetValidAccessTokenRenewsServiceCredential(t *testing.T) {
	exchanger := &fakeExchanger{
		responses: []*providers.TokenResponse{{
			AccessToken: "app-token-2",
			ExpiresIn:   900,
		}},
	}
	svc, creds := newOAuthFixture(t, exchanger)

	require.NoError(t, creds.Upsert(context.Background(), &models.OAuthCredential{
		UserID:      testUserID,
		TenantID:    testTenantID,
		AccessToken: "app-token-1",
		ExpiresAt:   time.Now().Add(time.Minute),
	}))

	token, err := svc.GetValidAccessToken(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.Equal(t, "app-token-2", token)
	require.Equal(t, providers.GrantClientCredentials, exchanger.requests[0].Grant)
	require.Nil(t, exchanger.requests[0].ClientTLS)
}

func TestServiceCredentialRenewalDeactivatesOnAuthFailure(t *testing.T) {
	exchanger := &fakeExchanger{
		errs: []error{providers.ClassifyOAuthError(providers.OpToken, "invalid_client", "")},
	}
	svc, creds := newOAuthFixture(t, exchanger)

	require.NoError(t, creds.Upsert(context.Background(), &models.OAuthCredential{
		UserID:      testUserID,
		TenantID:    testTenantID,
		AccessToken: "app-token-1",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	_, err := svc.GetValidAccessToken(context.Background(), testUserID, testTenantID)
	require.ErrorIs(t, err, utils.ErrReauthRequired)

	stored, err := creds.GetActive(context.Background(), testUserID, testTenantID)
	require.NoError(t, err)
	require.Nil(t, stored, "an unrenewable service credential must be deactivated")
}

func TestClientCredentialsTokenRetriesTransientFailures(t *testing.T) {
	exchanger := &fakeExchanger{
		errs: []error{
			providers.ClassifyOAuthError(providers.OpToken, "temporarily_unavailable", ""),
			nil,
		},
		responses: []*providers.TokenResponse{
			nil,
			{AccessToken: "app-token", ExpiresIn: 900},
		},
	}
	svc, _ := newOAuthFixture(t, exchanger)

	token, err := svc.ClientCredentialsToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "app-token", token.AccessToken)
	require.Equal(t, 2, exchanger.calls)
}

func TestClientCredentialsTokenStopsOnAuthFailure(t *testing.T) {
	exchanger := &fakeExchanger{
		errs: []error{providers.ClassifyOAuthError(providers.OpToken, "invalid_client", "")},
	}
	svc, _ := newOAuthFixture(t, exchanger)

	_, err := svc.ClientCredentialsToken(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, exchanger.calls, "authentication failures must not be retried")
}
