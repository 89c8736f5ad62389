package cache

import (
	"context"

	"github.com/inkwell-sys/inkwell/internal/fingerprint"
	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/metrics"
)

// Provider is the cache surface the inflight coordinator consumes. It never
// returns errors: cache unavailability degrades to a miss on read and a
// no-op on write, so a broken cache costs performance, never correctness.
type Provider interface {
	Get(ctx context.Context, fp fingerprint.Fingerprint) (Entry, bool)
	Put(ctx context.Context, entry Entry)
	Invalidate(ctx context.Context, fp fingerprint.Fingerprint)
}

// Layered composes the in-memory cache with an optional durable store.
//
// Reads check memory first, then the durable tier; a durable hit repopulates
// memory. Writes go to both tiers. Durable-tier errors are logged, counted,
// and swallowed (fail-open policy).
type Layered struct {
	memory  *Cache
	durable Store
}

// NewLayered creates the layered cache. durable may be nil for a
// memory-only configuration.
func NewLayered(memory *Cache, durable Store) *Layered {
	return &Layered{memory: memory, durable: durable}
}

// Get implements Provider.
func (l *Layered) Get(ctx context.Context, fp fingerprint.Fingerprint) (Entry, bool) {
	if entry, ok := l.memory.Get(fp); ok {
		return entry, true
	}

	if l.durable == nil {
		return Entry{}, false
	}

	entry, ok, err := l.durable.Get(ctx, fp)
	if err != nil {
		metrics.CacheStoreErrors.WithLabelValues("get").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("fingerprint", fp.String()).Msg("Durable cache read failed, treating as miss")
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	// Repopulate the memory tier for the remaining lifetime.
	l.memory.PutWithTTL(fp, entry.Result, entry.ModelVersion, entry.ExpiresAt.Sub(l.memory.now()))
	return entry, true
}

// Put implements Provider.
func (l *Layered) Put(ctx context.Context, entry Entry) {
	stored := l.memory.PutWithTTL(entry.Fingerprint, entry.Result, entry.ModelVersion, entry.ExpiresAt.Sub(l.memory.now()))

	if l.durable == nil {
		return
	}
	if err := l.durable.Put(ctx, stored); err != nil {
		metrics.CacheStoreErrors.WithLabelValues("put").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("fingerprint", entry.Fingerprint.String()).Msg("Durable cache write failed, entry is memory-only")
	}
}

// Invalidate implements Provider.
func (l *Layered) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) {
	l.memory.Invalidate(fp)

	if l.durable == nil {
		return
	}
	if err := l.durable.Invalidate(ctx, fp); err != nil {
		metrics.CacheStoreErrors.WithLabelValues("invalidate").Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("fingerprint", fp.String()).Msg("Durable cache invalidation failed")
	}
}

// Memory exposes the in-memory tier for stats and sweeping.
func (l *Layered) Memory() *Cache { return l.memory }

// Verify interface implementation at compile time.
var _ Provider = (*Layered)(nil)
