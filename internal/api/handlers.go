// Package api exposes the generation core over HTTP so the Book, Review,
// and Recommendation services can call it.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/inkwell-sys/inkwell/internal/fingerprint"
	"github.com/inkwell-sys/inkwell/internal/generation"
	"github.com/inkwell-sys/inkwell/internal/sharedsvc"
)

// maxRequestBody caps request bodies at 1 MiB.
const maxRequestBody = 1 << 20

// Generator is the facade surface the handlers consume.
type Generator interface {
	GenerateSummary(ctx context.Context, cred sharedsvc.Credential, content string) (string, error)
	GenerateReviewSummary(ctx context.Context, cred sharedsvc.Credential, reviews []string) (string, error)
	Recommendations(ctx context.Context, cred sharedsvc.Credential, userID string, prefs generation.Preferences, candidates []generation.BookRef) ([]generation.Recommendation, error)
}

// Handler holds the HTTP handlers for the generation endpoints.
type Handler struct {
	service Generator
}

// NewHandler creates the handler set.
func NewHandler(service Generator) *Handler {
	return &Handler{service: service}
}

// credentialFromRequest extracts a basic-auth pair or bearer token.
// Missing or malformed credentials come back empty; the authorization gate
// rejects empty credentials, so no separate error path is needed here.
func credentialFromRequest(r *http.Request) sharedsvc.Credential {
	if username, password, ok := r.BasicAuth(); ok {
		return sharedsvc.Credential{Username: username, Password: password}
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return sharedsvc.Credential{Token: strings.TrimPrefix(auth, "Bearer ")}
	}
	return sharedsvc.Credential{}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", fingerprint.ErrInvalidInput, err)
	}
	return nil
}

type summaryRequest struct {
	Content string `json:"content"`
}

type summaryResponse struct {
	Summary      string `json:"summary"`
	ModelVersion string `json:"model_version,omitempty"`
}

// GenerateSummary handles POST /api/v1/generate-summary.
func (h *Handler) GenerateSummary(w http.ResponseWriter, r *http.Request) {
	var req summaryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.service.GenerateSummary(r.Context(), credentialFromRequest(r), req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

type reviewSummaryRequest struct {
	Reviews []string `json:"reviews"`
}

// GenerateReviewSummary handles POST /api/v1/generate-review-summary.
func (h *Handler) GenerateReviewSummary(w http.ResponseWriter, r *http.Request) {
	var req reviewSummaryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.service.GenerateReviewSummary(r.Context(), credentialFromRequest(r), req.Reviews)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{Summary: summary})
}

type recommendationsRequest struct {
	UserID      string                 `json:"user_id"`
	Preferences generation.Preferences `json:"preferences"`
	Candidates  []generation.BookRef   `json:"candidates"`
}

type recommendationsResponse struct {
	Recommendations []generation.Recommendation `json:"recommendations"`
}

// Recommendations handles POST /api/v1/recommendations.
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	var req recommendationsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	recs, err := h.service.Recommendations(r.Context(), credentialFromRequest(r), req.UserID, req.Preferences, req.Candidates)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, recommendationsResponse{Recommendations: recs})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
