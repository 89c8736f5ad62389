package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/middleware"
)

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)

	// 5xx detail stays in the logs; callers get the code only.
	message := ""
	if status < http.StatusInternalServerError {
		message = err.Error()
	}
	if status >= http.StatusInternalServerError {
		logging.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg("Request failed")
	} else {
		logging.Ctx(r.Context()).Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	writeJSON(w, status, errorResponse{
		Error:     code,
		Message:   message,
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
