package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rykyfilipe/efactura-engine/models"
	"github.com/rykyfilipe/efactura-engine/services"
	"github.com/rykyfilipe/efactura-engine/utils"
)

type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

func CreateSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
	}
}

// SubmitRequest carries the invoice snapshot to deliver. The invoicing
// layer owns the data; the engine just needs a consistent view of it.
type SubmitRequest struct {
	Invoice  models.Invoice  `json:"invoice"`
	Company  models.Company  `json:"company"`
	Customer models.Customer `json:"customer"`
}

func (h *SubmissionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	if verrs := validateSubmitRequest(&req); len(verrs) > 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid invoice snapshot", Details: verrs.Error()})
		return
	}

	// The snapshot is always submitted on behalf of the caller's tenant,
	// whatever the payload claims.
	req.Invoice.TenantID = tenantID
	req.Company.TenantID = tenantID
	req.Customer.TenantID = tenantID

	record, err := h.submissionService.Submit(r.Context(), userID, &req.Invoice, &req.Company, &req.Customer)
	if err != nil {
		// A failed attempt still leaves a trackable record; its ID travels
		// in a header so the caller can poll it later.
		if record != nil {
			w.Header().Set("X-Submission-ID", record.ID)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func validateSubmitRequest(req *SubmitRequest) utils.ValidationErrors {
	var errs utils.ValidationErrors
	if e := utils.ValidateString(req.Invoice.Number, "invoice.number", 1, 64, true); e != nil {
		errs = append(errs, *e)
	}
	if e := utils.ValidateString(req.Invoice.Currency, "invoice.currency", 3, 3, true); e != nil {
		errs = append(errs, *e)
	}
	if e := utils.ValidateTaxID(req.Company.TaxID, "company.tax_id"); e != nil {
		errs = append(errs, *e)
	}
	if e := utils.ValidateString(req.Company.Name, "company.name", 1, 200, true); e != nil {
		errs = append(errs, *e)
	}
	if e := utils.ValidateString(req.Customer.Name, "customer.name", 1, 200, true); e != nil {
		errs = append(errs, *e)
	}
	return errs
}

func (h *SubmissionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID := utils.GetTenantID(r.Context())

	// Callers that only kept the upstream identifier can look the record
	// up by it instead of the internal ID.
	if requestID := r.URL.Query().Get("request_id"); requestID != "" {
		record, err := h.submissionService.GetByRequestID(r.Context(), tenantID, requestID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, []*models.SubmissionRecord{record})
		return
	}

	filter := models.SubmissionFilter{
		TenantID:  tenantID,
		InvoiceID: r.URL.Query().Get("invoice_id"),
		Status:    models.SubmissionStatus(r.URL.Query().Get("status")),
		Limit:     clampLimit(intQuery(r, "limit", 20)),
		Offset:    intQuery(r, "offset", 0),
	}

	records, err := h.submissionService.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *SubmissionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	tenantID := utils.GetTenantID(r.Context())
	submissionID := mux.Vars(r)["id"]

	record, err := h.submissionService.Get(r.Context(), tenantID, submissionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleCheckStatus polls the authority and returns the updated record.
func (h *SubmissionHandler) HandleCheckStatus(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())
	submissionID := mux.Vars(r)["id"]

	record, err := h.submissionService.CheckStatus(r.Context(), userID, tenantID, submissionID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// HandleDownload streams the authority's response archive for a processed
// submission.
func (h *SubmissionHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())
	submissionID := mux.Vars(r)["id"]

	payload, err := h.submissionService.Download(r.Context(), userID, tenantID, submissionID)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="response-`+submissionID+`.zip"`)
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
