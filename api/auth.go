package api

import (
	"net/http"

	"github.com/rykyfilipe/efactura-engine/services"
	"github.com/rykyfilipe/efactura-engine/utils"
)

type AuthHandler struct {
	oauthService *services.OAuthService
}

func CreateAuthHandler(oauthService *services.OAuthService) *AuthHandler {
	return &AuthHandler{
		oauthService: oauthService,
	}
}

// HandleAuthorizeURL hands the caller the consent-page redirect for the
// authority, with the flow bound to the authenticated account via the
// signed state parameter.
func (h *AuthHandler) HandleAuthorizeURL(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	authURL, err := h.oauthService.AuthorizationURL(userID, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
}

// HandleCallback is the OAuth redirect target. It is unauthenticated; the
// state parameter alone identifies and authenticates the flow.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if oauthErr := query.Get("error"); oauthErr != "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Authorization was not granted",
			Details: oauthErr,
		})
		return
	}

	code := query.Get("code")
	state := query.Get("state")
	if code == "" || state == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Missing code or state parameter"})
		return
	}

	userID, tenantID, err := h.oauthService.ExchangeCode(r.Context(), code, state)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "authenticated",
		"user_id":   userID,
		"tenant_id": tenantID,
	})
}

// HandleClientCredentials authenticates the account at service level: a
// Basic-auth exchange with no taxpayer certificate involved. The resulting
// credential renews itself by re-running the same exchange.
func (h *AuthHandler) HandleClientCredentials(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	cred, err := h.oauthService.AuthenticateClientCredentials(r.Context(), userID, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "authenticated",
		"token_type": cred.TokenType,
		"expires_at": cred.ExpiresAt,
	})
}

func (h *AuthHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	authenticated := h.oauthService.IsAuthenticated(r.Context(), userID, tenantID)

	writeJSON(w, http.StatusOK, map[string]bool{"authenticated": authenticated})
}
