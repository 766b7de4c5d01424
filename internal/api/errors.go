package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tablesheet/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var unauthorized *domain.UnauthorizedError
	var source *domain.SourceUnavailableError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &unauthorized):
		return http.StatusUnauthorized
	case errors.As(err, &source):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes err as an ErrorResponse. Server-side failures are logged
// and reported with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := httpStatusFromDomainError(err)
	msg := err.Error()
	switch {
	case status == http.StatusBadGateway:
		logger.WarnContext(r.Context(), "row source unavailable", "path", r.URL.Path, "error", err)
		msg = "row source unavailable"
	case status >= http.StatusInternalServerError:
		logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorResponse{Code: status, Message: msg})
}
