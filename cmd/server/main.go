// Command server runs the Inkwell generation core: the caching, inflight
// coordination, and model invocation service behind the book-catalog
// platform's AI features.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/inkwell-sys/inkwell/internal/api"
	"github.com/inkwell-sys/inkwell/internal/audit"
	"github.com/inkwell-sys/inkwell/internal/authgate"
	"github.com/inkwell-sys/inkwell/internal/cache"
	"github.com/inkwell-sys/inkwell/internal/config"
	"github.com/inkwell-sys/inkwell/internal/generation"
	"github.com/inkwell-sys/inkwell/internal/inflight"
	"github.com/inkwell-sys/inkwell/internal/invoker"
	"github.com/inkwell-sys/inkwell/internal/logging"
	"github.com/inkwell-sys/inkwell/internal/sharedsvc"
	"github.com/inkwell-sys/inkwell/internal/supervisor"
	"github.com/inkwell-sys/inkwell/internal/supervisor/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("backend_url", cfg.Backend.URL).
		Str("backend_model", cfg.Backend.Model).
		Bool("durable_cache", cfg.Cache.Durable).
		Bool("audit_enabled", cfg.Audit.Enabled).
		Msg("Starting Inkwell generation core")

	// One BadgerDB handle is shared by the durable cache tier and the
	// audit spill, namespaced by key prefix.
	var db *badger.DB
	if cfg.Storage.Enabled {
		opts := badger.DefaultOptions(cfg.Storage.Path).WithLogger(nil)
		db, err = badger.Open(opts)
		if err != nil {
			logging.Fatal().Err(err).Str("path", cfg.Storage.Path).Msg("Failed to open local storage")
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Failed to close local storage")
			}
		}()
	}

	memory := cache.New(cfg.Cache.TTL, cfg.Cache.MaxEntries)
	var durable cache.Store
	if cfg.Cache.Durable && db != nil {
		durable = cache.NewBadgerStore(db)
	}
	layered := cache.NewLayered(memory, durable)

	coordinator := inflight.New(layered, cfg.Cache.TTL)
	backend := invoker.New(cfg.Backend)
	shared := sharedsvc.NewClient(cfg.Shared)

	gate := authgate.New(shared, authgate.Config{
		CacheTTL:         cfg.Auth.CacheTTL,
		NegativeCacheTTL: cfg.Auth.NegativeCacheTTL,
		Timeout:          cfg.Auth.Timeout,
		RetryAttempts:    cfg.Auth.RetryAttempts,
	})

	var spill audit.Spill
	if db != nil {
		spill = audit.NewBadgerSpill(db)
	}
	relay := audit.NewRelay(shared, spill, audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		MaxAttempts: cfg.Audit.MaxAttempts,
		RetryDelay:  cfg.Audit.RetryDelay,
	})

	service := generation.New(gate, coordinator, backend, relay)

	handler := api.NewHandler(service)
	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           api.NewRouter(handler, cfg.Server),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Write timeout must outlast a full generation: retry ceiling plus
		// one backend call.
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  2 * time.Minute,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if cfg.Audit.Enabled {
		tree.AddCoreService(services.NewRunService("audit-relay", relay))
	}
	tree.AddCoreService(services.NewRunService("cache-janitor", cache.NewJanitor(memory, cfg.Cache.SweepInterval)))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Serving")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
	}
	logging.Info().Msg("Shutdown complete")
}
