package cache

import (
	"context"
	"time"

	"github.com/inkwell-sys/inkwell/internal/logging"
)

// Janitor periodically sweeps expired entries from the in-memory cache.
// It is run as a supervised service; a panic restarts only the janitor,
// never the cache itself.
type Janitor struct {
	cache    *Cache
	interval time.Duration
}

// NewJanitor creates a janitor sweeping the cache at the given interval.
func NewJanitor(c *Cache, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Janitor{cache: c, interval: interval}
}

// Run sweeps until the context is canceled.
func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if evicted := j.cache.Sweep(); evicted > 0 {
				logging.Debug().Int64("evicted", evicted).Msg("Cache sweep complete")
			}
		}
	}
}
