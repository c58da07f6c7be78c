package handler

import (
	"mime"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"docmanager/internal/domain"
	"docmanager/internal/service"
)

type VersionHandler struct {
	ledger *service.VersionLedger
	logger *zap.Logger
}

func NewVersionHandler(ledger *service.VersionLedger, logger *zap.Logger) *VersionHandler {
	return &VersionHandler{
		ledger: ledger,
		logger: logger.With(zap.String("handler", "versions")),
	}
}

type addVersionResponse struct {
	Version *domain.DocumentVersion `json:"version"`
	Reused  bool                    `json:"reused"`
}

// List GET /documents/{id}/versions
func (h *VersionHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	versions, err := h.ledger.ListVersions(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, versions)
}

// Add POST /documents/{id}/versions
func (h *VersionHandler) Add(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		badRequest(w, "failed to parse form")
		return
	}

	upload, err := readUpload(r)
	if err != nil {
		badRequest(w, "failed to read file")
		return
	}
	strict, ok := parseBool(r.FormValue("strict"))
	if !ok {
		badRequest(w, "invalid strict")
		return
	}
	// по умолчанию новая версия становится текущей
	setCurrent := true
	if value := r.FormValue("set_current"); value != "" {
		if setCurrent, err = strconv.ParseBool(value); err != nil {
			badRequest(w, "invalid set_current")
			return
		}
	}
	documentDate, ok := parseDate(r.FormValue("document_date"))
	if !ok {
		badRequest(w, "document_date must be YYYY-MM-DD")
		return
	}

	v, reused, err := h.ledger.AddVersion(r.Context(), id, domain.AddVersionParams{
		File:         upload,
		DocumentDate: documentDate,
		SetCurrent:   setCurrent,
		Strict:       strict,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	respondJSON(w, status, addVersionResponse{Version: v, Reused: reused})
}

// Current GET /documents/{id}/versions/current
func (h *VersionHandler) Current(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	v, err := h.ledger.GetCurrent(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

func (h *VersionHandler) version(w http.ResponseWriter, r *http.Request) (*domain.DocumentVersion, bool) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return nil, false
	}
	number, ok := intParam(r, "number")
	if !ok {
		badRequest(w, "invalid version number")
		return nil, false
	}

	v, err := h.ledger.GetVersion(r.Context(), id, number)
	if err != nil {
		respondError(w, h.logger, err)
		return nil, false
	}
	return v, true
}

// Get GET /documents/{id}/versions/{number}
func (h *VersionHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.version(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// Content GET /documents/{id}/versions/{number}/content
func (h *VersionHandler) Content(w http.ResponseWriter, r *http.Request) {
	v, ok := h.version(w, r)
	if !ok {
		return
	}

	data, err := h.ledger.ReadContent(r.Context(), v)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", v.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", contentDisposition(v.OriginalFilename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// contentDisposition кодирует имя файла по RFC 2231, если оно не ASCII
func contentDisposition(filename string) string {
	if value := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); value != "" {
		return value
	}
	return "attachment"
}

// SetCurrent PUT /documents/{id}/versions/{number}/current
func (h *VersionHandler) SetCurrent(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}
	number, ok := intParam(r, "number")
	if !ok {
		badRequest(w, "invalid version number")
		return
	}

	v, err := h.ledger.SetCurrentVersion(r.Context(), id, number)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// DeleteLatest DELETE /documents/{id}/versions/latest
func (h *VersionHandler) DeleteLatest(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(r, "id")
	if !ok {
		badRequest(w, "invalid document id")
		return
	}

	v, err := h.ledger.DeleteLatestVersion(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}
