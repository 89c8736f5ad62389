// Package generation is the facade the Book, Review, and Recommendation
// services call. Every operation follows the same path: authorize the
// caller, fingerprint the content, resolve through the inflight coordinator
// (cache first, backend once), and record the action out of band.
package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/inkwell-sys/inkwell/internal/audit"
	"github.com/inkwell-sys/inkwell/internal/cache"
	"github.com/inkwell-sys/inkwell/internal/fingerprint"
	"github.com/inkwell-sys/inkwell/internal/inflight"
	"github.com/inkwell-sys/inkwell/internal/invoker"
	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/sharedsvc"
)

// ServiceName identifies this service in audit records.
const ServiceName = "inkwell"

// BookRef identifies a catalog book offered as a recommendation candidate.
type BookRef struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Genre  string `json:"genre"`
}

// Preferences carries the caller's recommendation filters. Ranking stays
// with the caller; the only rule applied here is the genre filter.
type Preferences struct {
	Genres []string `json:"genres"`
}

// Recommendation pairs a surviving candidate with generated commentary.
type Recommendation struct {
	Book       BookRef `json:"book"`
	Commentary string  `json:"commentary"`
}

// Authorizer validates caller credentials.
type Authorizer interface {
	Authorize(ctx context.Context, cred sharedsvc.Credential) (sharedsvc.Identity, error)
}

// Backend performs a single generation against the model backend.
type Backend interface {
	Generate(ctx context.Context, kind fingerprint.Kind, prompt string) (invoker.Result, error)
}

// Auditor records actions out of band.
type Auditor interface {
	Submit(ctx context.Context, rec audit.Record)
}

// Service wires the authorization gate, inflight coordinator, model
// backend, and audit relay into the caller-facing operations.
type Service struct {
	gate        Authorizer
	coordinator *inflight.Coordinator
	backend     Backend
	auditor     Auditor
}

// New creates the facade. auditor may be nil to disable audit submission.
func New(gate Authorizer, coordinator *inflight.Coordinator, backend Backend, auditor Auditor) *Service {
	return &Service{
		gate:        gate,
		coordinator: coordinator,
		backend:     backend,
		auditor:     auditor,
	}
}

// GenerateSummary produces (or serves cached) summary text for a book
// description.
func (s *Service) GenerateSummary(ctx context.Context, cred sharedsvc.Credential, content string) (string, error) {
	identity, err := s.authorize(ctx, cred, "generate_summary")
	if err != nil {
		return "", err
	}

	entry, err := s.resolve(ctx, fingerprint.KindBookSummary, content)
	s.record(ctx, identity, "generate_summary", err)
	if err != nil {
		return "", err
	}
	return entry.Result, nil
}

// GenerateReviewSummary produces a single digest over a set of review texts.
// The reviews are fingerprinted as one document, so the same review set
// always maps to the same cache entry.
func (s *Service) GenerateReviewSummary(ctx context.Context, cred sharedsvc.Credential, reviews []string) (string, error) {
	identity, err := s.authorize(ctx, cred, "generate_review_summary")
	if err != nil {
		return "", err
	}

	if len(reviews) == 0 {
		s.record(ctx, identity, "generate_review_summary", fingerprint.ErrInvalidInput)
		return "", fmt.Errorf("%w: no reviews provided", fingerprint.ErrInvalidInput)
	}

	entry, err := s.resolve(ctx, fingerprint.KindReviewSummary, strings.Join(reviews, "\n"))
	s.record(ctx, identity, "generate_review_summary", err)
	if err != nil {
		return "", err
	}
	return entry.Result, nil
}

// Recommendations filters candidates by the caller's preferred genres and
// attaches generated commentary to each survivor. Commentary is cached per
// book, so repeat recommendations of the same title cost nothing.
func (s *Service) Recommendations(ctx context.Context, cred sharedsvc.Credential, userID string, prefs Preferences, candidates []BookRef) ([]Recommendation, error) {
	identity, err := s.authorize(ctx, cred, "recommendations")
	if err != nil {
		return nil, err
	}

	selected := filterByGenre(candidates, prefs.Genres)
	recs := make([]Recommendation, 0, len(selected))

	for _, book := range selected {
		entry, err := s.resolve(ctx, fingerprint.KindRecommendation, book.Title+" by "+book.Author+" ("+book.Genre+")")
		if err != nil {
			// A book whose commentary cannot be generated is still a valid
			// recommendation; degrade to no commentary rather than failing
			// the whole list.
			logging.Ctx(ctx).Warn().Err(err).Str("book_id", book.ID).Msg("Recommendation commentary unavailable")
			recs = append(recs, Recommendation{Book: book})
			continue
		}
		recs = append(recs, Recommendation{Book: book, Commentary: entry.Result})
	}

	s.record(ctx, identity, "recommendations", nil)
	return recs, nil
}

// Invalidate drops the cached result for a kind/content pair, forcing the
// next request to regenerate. Used when source content changes.
func (s *Service) Invalidate(ctx context.Context, cred sharedsvc.Credential, kind fingerprint.Kind, content string) error {
	identity, err := s.authorize(ctx, cred, "invalidate")
	if err != nil {
		return err
	}

	fp, err := fingerprint.New(kind, content)
	if err != nil {
		return err
	}
	s.coordinator.Invalidate(ctx, fp)
	s.record(ctx, identity, "invalidate", nil)
	return nil
}

// authorize checks the credential and audits denials.
func (s *Service) authorize(ctx context.Context, cred sharedsvc.Credential, action string) (sharedsvc.Identity, error) {
	identity, err := s.gate.Authorize(ctx, cred)
	if err != nil {
		if s.auditor != nil {
			s.auditor.Submit(ctx, audit.Record{
				ActorID: cred.Username,
				Service: ServiceName,
				Action:  action,
				Status:  audit.StatusDenied,
			})
		}
		return sharedsvc.Identity{}, err
	}
	return identity, nil
}

// resolve runs the fingerprint → coordinator → backend pipeline.
func (s *Service) resolve(ctx context.Context, kind fingerprint.Kind, content string) (cache.Entry, error) {
	fp, err := fingerprint.New(kind, content)
	if err != nil {
		return cache.Entry{}, err
	}

	return s.coordinator.Resolve(ctx, fp, func(genCtx context.Context) (inflight.Result, error) {
		res, err := s.backend.Generate(genCtx, kind, buildPrompt(kind, content))
		if err != nil {
			return inflight.Result{}, err
		}
		return inflight.Result{Text: res.Text, ModelVersion: res.ModelVersion}, nil
	})
}

// record audits a completed operation. Never blocks, never fails.
func (s *Service) record(ctx context.Context, identity sharedsvc.Identity, action string, opErr error) {
	if s.auditor == nil {
		return
	}

	status := audit.StatusSuccess
	detail := ""
	if opErr != nil {
		status = audit.StatusFailure
		detail = opErr.Error()
	}

	s.auditor.Submit(ctx, audit.Record{
		ActorID: identity.UserID,
		Service: ServiceName,
		Action:  action,
		Status:  status,
		Detail:  detail,
	})
}

// buildPrompt renders the backend prompt for a kind. The raw content, not
// the prompt, is what gets fingerprinted: prompt wording can evolve without
// splitting the cache across deployments of the same template.
func buildPrompt(kind fingerprint.Kind, content string) string {
	switch kind {
	case fingerprint.KindBookSummary:
		return "Summarize the following book description in two to three sentences:\n\n" + content
	case fingerprint.KindReviewSummary:
		return "Summarize the overall sentiment and recurring points of these reader reviews in two to three sentences:\n\n" + content
	case fingerprint.KindRecommendation:
		return "Write one enthusiastic sentence recommending the book " + content + " to a reader."
	default:
		return content
	}
}

// filterByGenre keeps candidates matching any preferred genre. An empty
// preference list keeps everything.
func filterByGenre(candidates []BookRef, genres []string) []BookRef {
	if len(genres) == 0 {
		return candidates
	}

	wanted := make(map[string]struct{}, len(genres))
	for _, g := range genres {
		wanted[strings.ToLower(strings.TrimSpace(g))] = struct{}{}
	}

	var out []BookRef
	for _, book := range candidates {
		if _, ok := wanted[strings.ToLower(strings.TrimSpace(book.Genre))]; ok {
			out = append(out, book)
		}
	}
	return out
}
