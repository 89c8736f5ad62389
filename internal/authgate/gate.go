// Package authgate validates caller credentials against the shared identity
// service, fronted by a short-TTL local cache so the remote round trip is
// paid once per credential per TTL window, not once per request.
//
// The cache TTL is the documented staleness bound for revoked credentials:
// a validation cached at t=0 may be honored until t=TTL, never later.
package authgate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/metrics"
	"github.com/inkwell-sys/inkwell/internal/sharedsvc"
)

var (
	// ErrUnauthorized means the credential was examined and rejected.
	ErrUnauthorized = errors.New("credential not authorized")

	// ErrIdentityUnavailable means the identity service could not be
	// reached and no cached validation exists. Authorization fails fast
	// rather than guessing.
	ErrIdentityUnavailable = errors.New("identity service unavailable")
)

// Validator is the identity check the gate delegates to on cache miss.
// *sharedsvc.Client satisfies it.
type Validator interface {
	ValidateCredential(ctx context.Context, cred sharedsvc.Credential) (sharedsvc.Identity, error)
}

// Config holds gate settings.
type Config struct {
	// CacheTTL bounds how long a successful validation is honored locally.
	CacheTTL time.Duration

	// NegativeCacheTTL caches rejections for a very short window to blunt
	// brute-force retries. 0 disables negative caching; rejections are
	// otherwise never cached, so a fixed credential works immediately.
	NegativeCacheTTL time.Duration

	// Timeout applies to each remote validation attempt. Authorization is
	// on the critical path, so this is short and independent of the
	// generation backend's retry policy.
	Timeout time.Duration

	// RetryAttempts bounds remote attempts for transient failures.
	// Definitive rejections are never retried.
	RetryAttempts int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CacheTTL:         30 * time.Second,
		NegativeCacheTTL: 0,
		Timeout:          3 * time.Second,
		RetryAttempts:    2,
	}
}

type cacheEntry struct {
	identity  sharedsvc.Identity
	negative  bool
	expiresAt time.Time
}

// Gate authorizes credentials with a local cache in front of the remote
// identity service.
type Gate struct {
	validator Validator
	config    Config

	mu      sync.RWMutex
	entries map[string]cacheEntry

	// now is replaceable for TTL tests.
	now func() time.Time
}

// New creates a gate over the given validator.
func New(validator Validator, config Config) *Gate {
	if config.CacheTTL <= 0 {
		config.CacheTTL = DefaultConfig().CacheTTL
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = DefaultConfig().RetryAttempts
	}

	return &Gate{
		validator: validator,
		config:    config,
		entries:   make(map[string]cacheEntry),
		now:       time.Now,
	}
}

// credKey hashes the credential so raw secrets never sit in the cache map.
func credKey(cred sharedsvc.Credential) string {
	h := sha256.New()
	h.Write([]byte(cred.Username))
	h.Write([]byte{0})
	h.Write([]byte(cred.Password))
	h.Write([]byte{0})
	h.Write([]byte(cred.Token))
	return hex.EncodeToString(h.Sum(nil))
}

// Authorize validates a credential, serving from the local cache when a
// live entry exists. Returns ErrUnauthorized for rejected credentials and
// ErrIdentityUnavailable when no definitive answer could be obtained.
func (g *Gate) Authorize(ctx context.Context, cred sharedsvc.Credential) (sharedsvc.Identity, error) {
	if cred.Empty() {
		return sharedsvc.Identity{}, ErrUnauthorized
	}

	key := credKey(cred)

	if entry, ok := g.lookup(key); ok {
		metrics.AuthCacheHits.Inc()
		if entry.negative {
			return sharedsvc.Identity{}, ErrUnauthorized
		}
		return entry.identity, nil
	}

	return g.validateRemote(ctx, key, cred)
}

// lookup returns a live cache entry, expiring lazily.
func (g *Gate) lookup(key string) (cacheEntry, bool) {
	g.mu.RLock()
	entry, ok := g.entries[key]
	g.mu.RUnlock()

	if !ok {
		return cacheEntry{}, false
	}
	if g.now().After(entry.expiresAt) {
		g.mu.Lock()
		// Recheck under write lock; another goroutine may have refreshed it.
		if current, still := g.entries[key]; still && g.now().After(current.expiresAt) {
			delete(g.entries, key)
		}
		g.mu.Unlock()
		return cacheEntry{}, false
	}
	return entry, true
}

func (g *Gate) validateRemote(ctx context.Context, key string, cred sharedsvc.Credential) (sharedsvc.Identity, error) {
	var lastErr error

	for attempt := 1; attempt <= g.config.RetryAttempts; attempt++ {
		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if g.config.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, g.config.Timeout)
		}

		identity, err := g.validator.ValidateCredential(attemptCtx, cred)
		cancel()
		if err == nil {
			metrics.AuthRemoteCalls.WithLabelValues("success").Inc()
			g.store(key, cacheEntry{identity: identity, expiresAt: g.now().Add(g.config.CacheTTL)})
			return identity, nil
		}

		if errors.Is(err, sharedsvc.ErrInvalidCredential) {
			metrics.AuthRemoteCalls.WithLabelValues("invalid").Inc()
			if g.config.NegativeCacheTTL > 0 {
				g.store(key, cacheEntry{negative: true, expiresAt: g.now().Add(g.config.NegativeCacheTTL)})
			}
			return sharedsvc.Identity{}, ErrUnauthorized
		}
		if ctx.Err() != nil {
			return sharedsvc.Identity{}, ctx.Err()
		}

		lastErr = err
		logging.Ctx(ctx).Warn().Err(err).Int("attempt", attempt).Msg("Identity service validation attempt failed")
	}

	metrics.AuthRemoteCalls.WithLabelValues("unavailable").Inc()
	return sharedsvc.Identity{}, fmt.Errorf("%w: %v", ErrIdentityUnavailable, lastErr)
}

func (g *Gate) store(key string, entry cacheEntry) {
	g.mu.Lock()
	g.entries[key] = entry
	g.mu.Unlock()
}

// Invalidate drops any cached validation for a credential, forcing the
// next authorize through to the identity service.
func (g *Gate) Invalidate(cred sharedsvc.Credential) {
	g.mu.Lock()
	delete(g.entries, credKey(cred))
	g.mu.Unlock()
}

// CacheLen returns the number of cached validations, live or expired.
func (g *Gate) CacheLen() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entries)
}
