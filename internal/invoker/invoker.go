// Package invoker calls the generation backend (an Ollama-compatible HTTP
// server) with bounded retries, client-side pacing, and a circuit breaker.
//
// Failures are classified into two sentinel families: transient backend
// trouble (ErrBackendUnavailable) which is retried with exponential backoff,
// and content rejection (ErrGenerationRejected) which is terminal and never
// retried.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/inkwell-sys/inkwell/internal/config"
	"github.com/inkwell-sys/inkwell/internal/fingerprint"
	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/metrics"
)

var (
	// ErrBackendUnavailable marks transient backend failures: connection
	// errors, timeouts, overload responses, and an open circuit breaker.
	ErrBackendUnavailable = errors.New("generation backend unavailable")

	// ErrGenerationRejected marks terminal rejections: the backend received
	// the request and refused it. Retrying would produce the same answer.
	ErrGenerationRejected = errors.New("generation request rejected by backend")
)

// RetryPolicy bounds the retry loop for transient failures. Delay doubles
// from BaseDelay up to CapDelay; Jitter randomizes each delay within
// [delay/2, delay] to decorrelate competing clients.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	CapDelay    time.Duration
	Jitter      bool
}

// Delay returns the backoff before the given attempt (1-based; attempt 1
// has no delay).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := p.BaseDelay
	for i := 2; i < attempt; i++ {
		delay *= 2
		if delay >= p.CapDelay {
			delay = p.CapDelay
			break
		}
	}
	if delay > p.CapDelay {
		delay = p.CapDelay
	}

	if p.Jitter && delay > 0 {
		half := delay / 2
		delay = half + time.Duration(rand.Int63n(int64(half)+1))
	}
	return delay
}

// generateRequest is the Ollama-compatible generation request body.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// generateResponse is the subset of the backend response we consume.
type generateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Result is a completed generation.
type Result struct {
	Text         string
	ModelVersion string
}

// Invoker is the sole caller of the generation backend. The inflight
// coordinator guarantees one invocation per fingerprint; the invoker
// guarantees that invocation is paced, retried, and classified.
type Invoker struct {
	baseURL string
	model   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[generateResponse]
	limiter *rate.Limiter
	policy  RetryPolicy

	// sleep is replaceable so retry tests run without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an invoker from backend configuration.
func New(cfg config.BackendConfig) *Invoker {
	inv := &Invoker{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		policy: RetryPolicy{
			MaxAttempts: cfg.MaxAttempts,
			BaseDelay:   cfg.BaseDelay,
			CapDelay:    cfg.CapDelay,
			Jitter:      cfg.Jitter,
		},
		sleep: sleepCtx,
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		inv.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	metrics.BreakerState.Set(0)
	inv.breaker = gobreaker.NewCircuitBreaker[generateResponse](gobreaker.Settings{
		Name:        "generation-backend",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", breakerStateString(from)).Str("to", breakerStateString(to)).Msg("Backend circuit breaker state change")
			metrics.BreakerState.Set(breakerStateFloat(to))
		},
		// Rejections are the backend working as intended; only transient
		// failures count toward opening the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrGenerationRejected)
		},
	})

	return inv
}

// Generate performs a single logical generation with retries on transient
// failure. kind labels metrics only; the prompt is already fully rendered.
func (inv *Invoker) Generate(ctx context.Context, kind fingerprint.Kind, prompt string) (Result, error) {
	var lastErr error

	for attempt := 1; attempt <= inv.policy.MaxAttempts; attempt++ {
		if delay := inv.policy.Delay(attempt); delay > 0 {
			if err := inv.sleep(ctx, delay); err != nil {
				return Result{}, err
			}
		}

		if inv.limiter != nil {
			if err := inv.limiter.Wait(ctx); err != nil {
				return Result{}, err
			}
		}

		start := time.Now()
		resp, err := inv.breaker.Execute(func() (generateResponse, error) {
			return inv.doRequest(ctx, prompt)
		})
		metrics.InvokerDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())

		if err == nil {
			metrics.InvokerAttempts.WithLabelValues(string(kind), "success").Inc()
			version := resp.Model
			if version == "" {
				version = inv.model
			}
			return Result{Text: resp.Response, ModelVersion: version}, nil
		}

		if errors.Is(err, ErrGenerationRejected) {
			metrics.InvokerAttempts.WithLabelValues(string(kind), "rejected").Inc()
			return Result{}, err
		}
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}

		metrics.InvokerAttempts.WithLabelValues(string(kind), "transient").Inc()
		lastErr = classifyTransient(err)
		logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Int("max_attempts", inv.policy.MaxAttempts).Msg("Generation attempt failed")
	}

	return Result{}, fmt.Errorf("%w: %d attempts exhausted: %v", ErrBackendUnavailable, inv.policy.MaxAttempts, lastErr)
}

// doRequest performs one HTTP round trip and classifies the outcome.
func (inv *Invoker) doRequest(ctx context.Context, prompt string) (generateResponse, error) {
	body, err := json.Marshal(generateRequest{
		Model:  inv.model,
		Prompt: prompt,
		Stream: false,
	})
	if err != nil {
		return generateResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inv.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return generateResponse{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := inv.client.Do(req)
	if err != nil {
		return generateResponse{}, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if rejectedStatus(resp.StatusCode) {
			return generateResponse{}, fmt.Errorf("%w: status %d: %s", ErrGenerationRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
		}
		return generateResponse{}, fmt.Errorf("%w: status %d: %s", ErrBackendUnavailable, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return generateResponse{}, fmt.Errorf("%w: malformed response: %v", ErrBackendUnavailable, err)
	}
	if out.Response == "" {
		return generateResponse{}, fmt.Errorf("%w: empty response body", ErrBackendUnavailable)
	}
	return out, nil
}

// rejectedStatus reports whether a non-200 status means the backend
// understood the request and refused it. Everything else is transient.
func rejectedStatus(code int) bool {
	switch code {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// classifyTransient folds breaker sentinels into the unavailable family.
func classifyTransient(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit open", ErrBackendUnavailable)
	}
	if errors.Is(err, ErrBackendUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
