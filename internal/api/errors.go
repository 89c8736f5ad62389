package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/inkwell-sys/inkwell/internal/authgate"
	"github.com/inkwell-sys/inkwell/internal/fingerprint"
	"github.com/inkwell-sys/inkwell/internal/invoker"
)

// statusForError maps the error taxonomy to HTTP status codes.
//
//	InvalidInput        -> 400
//	Unauthorized        -> 401
//	GenerationRejected  -> 422
//	BackendUnavailable  -> 503 (retryable; includes an unreachable identity service)
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, fingerprint.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, authgate.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, invoker.ErrGenerationRejected):
		return http.StatusUnprocessableEntity, "generation_rejected"
	case errors.Is(err, invoker.ErrBackendUnavailable), errors.Is(err, authgate.ErrIdentityUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return 499, "client_closed_request"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
