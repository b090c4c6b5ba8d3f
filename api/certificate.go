package api

import (
	"io"
	"net/http"

	"github.com/rykyfilipe/efactura-engine/services"
	"github.com/rykyfilipe/efactura-engine/utils"
)

// maxCertificateSize bounds the uploaded PKCS12 container. Real taxpayer
// certificates are a few kilobytes; anything near this limit is garbage.
const maxCertificateSize = 1 << 20

type CertificateHandler struct {
	certificateService *services.CertificateService
}

func CreateCertificateHandler(certificateService *services.CertificateService) *CertificateHandler {
	return &CertificateHandler{
		certificateService: certificateService,
	}
}

// HandleUpload accepts a multipart form with the PKCS12 container under
// "certificate" and its passphrase under "passphrase".
func (h *CertificateHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	if err := r.ParseMultipartForm(maxCertificateSize); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid multipart form"})
		return
	}

	file, _, err := r.FormFile("certificate")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Certificate file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCertificateSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Failed to read certificate file"})
		return
	}

	passphrase := r.FormValue("passphrase")

	meta, err := h.certificateService.Upload(r.Context(), userID, tenantID, data, passphrase)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, meta)
}

func (h *CertificateHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	metas, err := h.certificateService.List(r.Context(), userID, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, metas)
}

// HandleValidateContainer dry-runs the upload checks on a submitted
// container without storing it. Same form fields as HandleUpload.
func (h *CertificateHandler) HandleValidateContainer(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxCertificateSize); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid multipart form"})
		return
	}

	file, _, err := r.FormFile("certificate")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Certificate file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxCertificateSize))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Failed to read certificate file"})
		return
	}

	result := h.certificateService.ValidateContainer(data, r.FormValue("passphrase"))
	writeJSON(w, http.StatusOK, result)
}

func (h *CertificateHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	result, err := h.certificateService.Validate(r.Context(), userID, tenantID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *CertificateHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	userID := utils.GetUserID(r.Context())
	tenantID := utils.GetTenantID(r.Context())

	if err := h.certificateService.Revoke(r.Context(), userID, tenantID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}
