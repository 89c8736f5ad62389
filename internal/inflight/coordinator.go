// Package inflight collapses concurrent generation requests for the same
// fingerprint into a single backend call.
//
// The coordinator owns both the cache check and the deduplication step: a
// resolve first consults the generation cache, then atomically creates or
// joins the inflight ticket for its fingerprint. All waiters on a ticket
// observe the same result or the same failure; a failed ticket is not
// retried per waiter, which keeps a failing backend from being stampeded.
package inflight

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/inkwell-sys/inkwell/internal/cache"
	"github.com/inkwell-sys/inkwell/internal/fingerprint"
	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/metrics"
)

// Result is the outcome of a single generation computation.
type Result struct {
	Text         string
	ModelVersion string
}

// ComputeFunc performs the actual generation, wrapping the model invoker.
// It runs at most once per inflight ticket.
type ComputeFunc func(ctx context.Context) (Result, error)

// Coordinator enforces at-most-one-inflight-generation-per-fingerprint.
//
// Ticket creation and lookup are a single atomic step (singleflight.Group),
// so two callers can never both believe they created the ticket. The ticket
// is owned collectively: a caller that abandons its request does not cancel
// a generation other waiters share.
type Coordinator struct {
	group singleflight.Group
	cache cache.Provider
	ttl   time.Duration
}

// New creates a coordinator writing results through to the given cache with
// the given TTL. provider may be nil, in which case every resolve computes
// fresh (the cache fail-open policy taken to its end state).
func New(provider cache.Provider, ttl time.Duration) *Coordinator {
	return &Coordinator{cache: provider, ttl: ttl}
}

// Resolve returns the cached entry for fp, or joins/creates the inflight
// ticket and waits for its result. On success the entry has been written
// through to the cache before any waiter observes it.
//
// The caller's context governs only its own wait: cancellation detaches the
// caller, while the shared computation keeps running for remaining waiters.
func (c *Coordinator) Resolve(ctx context.Context, fp fingerprint.Fingerprint, compute ComputeFunc) (cache.Entry, error) {
	if entry, ok := c.cacheGet(ctx, fp); ok {
		return entry, nil
	}

	metrics.InflightWaiters.Inc()
	defer metrics.InflightWaiters.Dec()

	ch := c.group.DoChan(fp.String(), func() (interface{}, error) {
		metrics.InflightTickets.Inc()
		defer metrics.InflightTickets.Dec()

		// Detach from the creating caller so its disconnect cannot cancel
		// a generation shared by other waiters. Context values (request ID)
		// are preserved for logging.
		genCtx := context.WithoutCancel(ctx)

		// A ticket that raced with a completing one may find the entry
		// already written; the backend must not be called again.
		if entry, ok := c.cacheGet(genCtx, fp); ok {
			return entry, nil
		}

		res, err := compute(genCtx)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		entry := cache.Entry{
			Fingerprint:  fp,
			Result:       res.Text,
			ModelVersion: res.ModelVersion,
			CreatedAt:    now,
			ExpiresAt:    now.Add(c.ttl),
		}
		c.cachePut(genCtx, entry)
		return entry, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return cache.Entry{}, r.Err
		}
		if r.Shared {
			metrics.InflightCollapsed.Inc()
		}
		return r.Val.(cache.Entry), nil
	case <-ctx.Done():
		logging.Ctx(ctx).Debug().Str("fingerprint", fp.String()).Msg("Caller abandoned inflight generation")
		return cache.Entry{}, ctx.Err()
	}
}

// Invalidate removes a fingerprint from the cache. The next resolve will
// compute fresh.
func (c *Coordinator) Invalidate(ctx context.Context, fp fingerprint.Fingerprint) {
	if c.cache != nil {
		c.cache.Invalidate(ctx, fp)
	}
}

func (c *Coordinator) cacheGet(ctx context.Context, fp fingerprint.Fingerprint) (cache.Entry, bool) {
	if c.cache == nil {
		return cache.Entry{}, false
	}
	return c.cache.Get(ctx, fp)
}

func (c *Coordinator) cachePut(ctx context.Context, entry cache.Entry) {
	if c.cache != nil {
		c.cache.Put(ctx, entry)
	}
}
