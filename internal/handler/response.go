package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"docmanager/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusFor сопоставляет вид ошибки с HTTP-статусом
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindUnknownTypeCode:
		return http.StatusBadRequest
	case domain.KindDuplicateTitle, domain.KindDuplicateContent, domain.KindConcurrencyViolation:
		return http.StatusConflict
	case domain.KindOwnerNotFound, domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindStorageUnavailable, domain.KindEntropyUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	kind := domain.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		respondJSON(w, status, errorResponse{Error: "internal_error", Message: "internal server error"})
		return
	}
	respondJSON(w, status, errorResponse{Error: string(kind), Code: domain.CodeOf(err), Message: err.Error()})
}

func badRequest(w http.ResponseWriter, message string) {
	respondJSON(w, http.StatusBadRequest, errorResponse{Error: string(domain.KindValidation), Message: message})
}

func uuidParam(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

func intParam(r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	return n, err == nil
}
