package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rykyfilipe/efactura-engine/providers"
	"github.com/rykyfilipe/efactura-engine/utils"
)

const maxPageLimit = 100

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// writeError maps the service error surface onto HTTP. Classified upstream
// errors expose only their localized user message; API errors carry their
// own status code; everything else is a 500 without internal detail.
func writeError(w http.ResponseWriter, err error) {
	var classified *providers.ClassifiedError
	if errors.As(err, &classified) {
		status := http.StatusBadGateway
		switch classified.Category {
		case providers.CategoryValidation, providers.CategoryDocumentGen:
			status = http.StatusBadRequest
		case providers.CategoryAuthentication, providers.CategoryToken:
			status = http.StatusUnauthorized
		case providers.CategoryAuthorization:
			status = http.StatusForbidden
		case providers.CategoryRateLimit:
			status = http.StatusTooManyRequests
			if classified.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(classified.RetryAfter.Seconds())))
			}
		}
		writeJSON(w, status, ErrorResponse{Error: classified.UserMessage})
		return
	}

	if apiErr, ok := utils.IsAPIError(err); ok {
		writeJSON(w, apiErr.Code, ErrorResponse{Error: apiErr.Message, Details: apiErr.Details})
		return
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal server error"})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > maxPageLimit {
		return maxPageLimit
	}
	return limit
}

func intQuery(r *http.Request, param string, defaultValue int) int {
	value := r.URL.Query().Get(param)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
