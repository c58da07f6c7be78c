package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docmanager/internal/domain"
	"docmanager/internal/service"
)

type OwnerHandler struct {
	owners    *service.OwnerService
	documents *service.DocumentService
	logger    *zap.Logger
}

func NewOwnerHandler(owners *service.OwnerService, documents *service.DocumentService, logger *zap.Logger) *OwnerHandler {
	return &OwnerHandler{
		owners:    owners,
		documents: documents,
		logger:    logger.With(zap.String("handler", "owners")),
	}
}

type resolveOrCreateRequest struct {
	Key string `json:"key"`
}

type ownerResponse struct {
	*domain.Owner
	Created bool `json:"created"`
}

// ResolveOrCreate POST /owners/{kind}
func (h *OwnerHandler) ResolveOrCreate(w http.ResponseWriter, r *http.Request) {
	var req resolveOrCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	owner, created, err := h.owners.ResolveOrCreate(r.Context(), chi.URLParam(r, "kind"), req.Key)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, ownerResponse{Owner: owner, Created: created})
}

// Resolve GET /owners/{kind}/{ownerID}
func (h *OwnerHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := uuidParam(r, "ownerID")
	if !ok {
		badRequest(w, "invalid owner id")
		return
	}

	owner, err := h.owners.Resolve(r.Context(), chi.URLParam(r, "kind"), ownerID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, owner)
}

// EnsureIdentifier POST /owners/{kind}/rows/{pk}/identifier
func (h *OwnerHandler) EnsureIdentifier(w http.ResponseWriter, r *http.Request) {
	pk, err := strconv.ParseInt(chi.URLParam(r, "pk"), 10, 64)
	if err != nil {
		badRequest(w, "invalid owner row id")
		return
	}

	owner, err := h.owners.EnsureIdentifierByPK(r.Context(), chi.URLParam(r, "kind"), pk)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, owner)
}

// Documents GET /owners/{kind}/{ownerID}/documents?recent=N|since_days=N|type=code
func (h *OwnerHandler) Documents(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := uuidParam(r, "ownerID")
	if !ok {
		badRequest(w, "invalid owner id")
		return
	}
	owner := domain.OwnerRef{Kind: chi.URLParam(r, "kind"), ID: ownerID}
	q := r.URL.Query()

	var (
		docs []domain.Document
		err  error
	)
	switch {
	case q.Get("recent") != "":
		limit, convErr := strconv.Atoi(q.Get("recent"))
		if convErr != nil || limit <= 0 {
			badRequest(w, "recent must be a positive integer")
			return
		}
		docs, err = h.documents.Recent(r.Context(), owner, limit)
	case q.Get("since_days") != "":
		days, convErr := strconv.Atoi(q.Get("since_days"))
		if convErr != nil || days < 0 {
			badRequest(w, "since_days must be a non-negative integer")
			return
		}
		docs, err = h.documents.Since(r.Context(), owner, days)
	default:
		docs, err = h.documents.ListByOwner(r.Context(), owner, q.Get("type"))
	}
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func parseOwnerRef(kind, id string) (domain.OwnerRef, bool) {
	ownerID, err := uuid.Parse(id)
	if err != nil {
		return domain.OwnerRef{}, false
	}
	return domain.OwnerRef{Kind: kind, ID: ownerID}, true
}
