package api

import (
	"net/http"

	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/services"
	"github.com/rykyfilipe/efactura-engine/utils"
)

type AuditHandler struct {
	auditService *services.AuditService
}

func CreateAuditHandler(auditService *services.AuditService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
	}
}

func (h *AuditHandler) HandleListActions(w http.ResponseWriter, r *http.Request) {
	tenantID := utils.GetTenantID(r.Context())

	filter := models.AuditLogFilter{
		TenantID:     tenantID,
		UserID:       r.URL.Query().Get("user_id"),
		Action:       r.URL.Query().Get("action"),
		ResourceType: r.URL.Query().Get("resource_type"),
		Limit:        clampLimit(intQuery(r, "limit", 20)),
		Offset:       intQuery(r, "offset", 0),
	}

	logs, err := h.auditService.ListActions(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}

func (h *AuditHandler) HandleListErrors(w http.ResponseWriter, r *http.Request) {
	tenantID := utils.GetTenantID(r.Context())

	logs, err := h.auditService.ListErrors(r.Context(), tenantID,
		clampLimit(intQuery(r, "limit", 20)), intQuery(r, "offset", 0))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, logs)
}
