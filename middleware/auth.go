package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rykyfilipe/efactura-engine/security"
	"github.com/rykyfilipe/efactura-engine/utils"
)

// AuthMiddleware authenticates API callers with the platform JWT and applies
// per-user API rate limits. The upstream quota toward the authority is a
// separate gate inside the submission pipeline.
type AuthMiddleware struct {
	jwtManager  *security.JWTManager
	rateLimiter *security.TieredRateLimiter
}

func CreateAuthMiddleware(jwtManager *security.JWTManager, rateLimiter *security.TieredRateLimiter) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager:  jwtManager,
		rateLimiter: rateLimiter,
	}
}

func (am *AuthMiddleware) JWTMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			am.writeErrorResponse(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			am.writeErrorResponse(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := am.jwtManager.ValidateToken(token)
		if err != nil {
			am.writeErrorResponse(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		ctx := utils.WithUserID(r.Context(), claims.UserID)
		ctx = utils.WithTenantID(ctx, claims.TenantID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (am *AuthMiddleware) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := utils.GetUserID(r.Context())
		if key == "" {
			key = clientIP(r)
		}

		if !am.rateLimiter.Allow(key, "default") {
			am.writeErrorResponse(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (am *AuthMiddleware) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error":     message,
		"status":    fmt.Sprintf("%d", statusCode),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func isPublicPath(path string) bool {
	publicPaths := []string{
		"/api/v1/health",
		"/api/v1/metrics",
		"/api/v1/auth/callback",
	}
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
