package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"bookkeeper/internal/core"
	"bookkeeper/internal/log"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Details []core.FieldError `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to encode response",
			log.FieldError, err,
			log.FieldPath, r.URL.Path)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorResponse{Error: msg})
}

// writeServiceError maps a typed service error onto its status code.
// Store failures are checked first so a wrapped not-found from a broken
// reference still surfaces as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *core.ValidationError
		qerr     *QueryError
		conflict *core.ConflictError
		store    *core.StoreError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "Validation failed", Details: verr.Fields})
	case errors.As(err, &qerr):
		writeError(w, r, http.StatusBadRequest, qerr.Error())
	case errors.As(err, &conflict):
		writeError(w, r, http.StatusConflict, conflict.Error())
	case errors.As(err, &store):
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Store failure",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeDatabase,
			log.FieldPath, r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
	case errors.Is(err, core.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Unexpected failure",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeInternal,
			log.FieldPath, r.URL.Path)
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

func writeDeleted(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}
