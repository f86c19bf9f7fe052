package httpapi

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qazna.org/authservice/internal/auth"
	"qazna.org/authservice/internal/obs"
)

// errorBody is the single-error response shape.
type errorBody struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Path      string `json:"path"`
	ErrorID   string `json:"errorId"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch auth.KindOf(err) {
	case auth.ErrNotFound:
		return http.StatusNotFound
	case auth.ErrAlreadyExists, auth.ErrInvalid:
		return http.StatusBadRequest
	case auth.ErrForbidden:
		return http.StatusForbidden
	case auth.ErrUnauthenticated:
		return http.StatusUnauthorized
	case auth.ErrDependencyUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders err. Unclassified failures are logged and hidden from the client.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	var (
		id  string
		msg string
	)
	if de, ok := auth.AsError(err); ok {
		id, msg = de.ID, de.Message
	} else {
		id = uuid.NewString()
		msg = err.Error()
	}
	if code == http.StatusInternalServerError {
		obs.Logger().Error("request failed",
			zap.String("error_id", id),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		msg = "internal error"
	} else if errors.Is(err, auth.ErrDependencyUnavailable) {
		obs.Logger().Warn("dependency unavailable", zap.String("error_id", id), zap.Error(err))
	}
	writeErrorBody(w, r, code, id, msg)
}

// writeError renders a transport-level error such as 405 or 429.
func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeErrorBody(w, r, code, uuid.NewString(), msg)
}

func writeErrorBody(w http.ResponseWriter, r *http.Request, code int, id, msg string) {
	writeJSON(w, code, errorBody{
		Status:    code,
		Message:   msg,
		Path:      r.URL.Path,
		ErrorID:   id,
		RequestID: RequestIDFromContext(r.Context()),
	})
}

func writeValidationErrors(w http.ResponseWriter, errs []fieldError) {
	writeJSON(w, http.StatusBadRequest, errs)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}
