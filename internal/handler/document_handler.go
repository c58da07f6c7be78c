package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"docmanager/internal/auth"
	"docmanager/internal/domain"
	"docmanager/internal/service"
)

const (
	maxUploadMemory = 32 << 20
	dateLayout      = "2006-01-02"
)

type DocumentHandler struct {
	documents *service.DocumentService
	logger    *zap.Logger
}

func NewDocumentHandler(documents *service.DocumentService, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    logger.With(zap.String("handler", "documents")),
	}
}

type createDocumentResponse struct {
	Document *domain.Document        `json:"document"`
	Version  *domain.DocumentVersion `json:"version,omitempty"`
}

// readUpload читает необязательный файл из поля file
func readUpload(r *http.Request) (*domain.FileUpload, error) {
	file, header, err := r.FormFile("file")
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	// octet-stream не несет типа, определяем по расширению
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "application/octet-stream" {
		mimeType = ""
	}
	return &domain.FileUpload{
		Filename: header.Filename,
		Data:     data,
		MIMEType: mimeType,
	}, nil
}

func parseDate(value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func parseBool(value string) (bool, bool) {
	if value == "" {
		return false, true
	}
	b, err := strconv.ParseBool(value)
	return b, err == nil
}

// Create POST /documents
func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(w, "failed to parse form")
		return
	}

	owner, ok := parseOwnerRef(r.FormValue("owner_kind"), r.FormValue("owner_id"))
	if !ok {
		badRequest(w, "invalid owner id")
		return
	}
	confidential, ok := parseBool(r.FormValue("is_confidential"))
	if !ok {
		badRequest(w, "invalid is_confidential")
		return
	}
	expiration, ok := parseDate(r.FormValue("expiration_date"))
	if !ok {
		badRequest(w, "expiration_date must be YYYY-MM-DD")
		return
	}
	upload, err := readUpload(r)
	if err != nil {
		badRequest(w, "failed to read file")
		return
	}

	params := domain.NewDocumentParams{
		Owner:          owner,
		DocumentType:   r.FormValue("document_type"),
		Title:          r.FormValue("title"),
		AccessLevel:    domain.AccessLevel(r.FormValue("access_level")),
		IsConfidential: confidential,
		ExpirationDate: expiration,
		File:           upload,
	}
	if desc := r.FormValue("description"); desc != "" {
		params.Description = &desc
	}

	doc, first, err := h.documents.CreateWithFile(r.Context(), params)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, createDocumentResponse{Document: doc, Version: first})
}

// Get GET /documents/{id}
func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	doc, err := h.documents.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// Delete DELETE /documents/{id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	if err := h.documents.SoftDelete(r.Context(), id); err != nil {
		respondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Restore POST /documents/{id}/restore
func (h *DocumentHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	doc, err := h.documents.Restore(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

type validationRequest struct {
	Status domain.ValidationStatus `json:"status"`
	Notes  *string                 `json:"notes"`
	Errors []string                `json:"errors"`
}

// UpdateValidation PUT /documents/{id}/validation
func (h *DocumentHandler) UpdateValidation(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	var req validationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	doc, err := h.documents.TransitionValidation(r.Context(), id, domain.ValidationTransition{
		Status:      req.Status,
		ValidatedBy: auth.UserID(r.Context()),
		Notes:       req.Notes,
		Errors:      req.Errors,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

type accessRequest struct {
	AccessLevel    domain.AccessLevel `json:"access_level"`
	IsConfidential bool               `json:"is_confidential"`
}

// UpdateAccess PUT /documents/{id}/access
func (h *DocumentHandler) UpdateAccess(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	var req accessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	doc, err := h.documents.UpdateAccess(r.Context(), id, domain.AccessUpdate{
		AccessLevel:    req.AccessLevel,
		IsConfidential: req.IsConfidential,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

type aiResultRequest struct {
	ExtractedData   types.JSONText `json:"extracted_data"`
	ConfidenceScore *float64       `json:"confidence_score"`
}

// StoreAIResult PUT /documents/{id}/ai
func (h *DocumentHandler) StoreAIResult(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	var req aiResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	doc, err := h.documents.StoreAIResult(r.Context(), id, domain.AIResult{
		ExtractedData: req.ExtractedData,
		Confidence:    req.ConfidenceScore,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}
