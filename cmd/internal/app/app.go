// Package app wires the attend server runtime: config, logging, storage,
// the attendance engine, the auto-close scheduler, and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"attend/cmd/internal/attendance"
	"attend/cmd/internal/directory"
	"attend/cmd/internal/dispatch"
	"attend/cmd/internal/notify"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// App owns the wired runtime and its shutdown order.
type App struct {
	cfg Config
	log Logger

	store  attendance.Store
	engine *attendance.Engine
	sched  *attendance.Scheduler
	api    *dispatch.Handler

	dbPool    *pgxpool.Pool
	dbEnabled bool

	// fileDir is non-nil only in file-directory mode; Run starts its
	// watcher.
	fileDir *directory.FileDirectory
}

// New constructs a fully wired App instance from config and logger.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	policy, err := attendance.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	store, dbPool, dbEnabled, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*App, error) {
		_ = store.Close()
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, err
	}

	engine, err := attendance.NewEngine(ctx, log, store)
	if err != nil {
		return fail(err)
	}

	resolver, fileDir, err := newResolver(cfg, log, dbPool)
	if err != nil {
		return fail(err)
	}

	windowStart, windowEnd, err := parseTapWindow(cfg)
	if err != nil {
		return fail(err)
	}

	metrics, err := dispatch.NewMetrics(prometheus.DefaultRegisterer, func() float64 {
		return float64(engine.OpenCount())
	})
	if err != nil {
		return fail(err)
	}

	var webhook *notify.Webhook
	if cfg.WebhookURL != "" {
		webhook = notify.NewWebhook(cfg.WebhookURL)
		log.Info("notify.webhook.enabled")
	}

	api := dispatch.NewHandler(log, engine, store, resolver, dispatch.NewFeed(log), webhook, metrics, dispatch.Config{
		Debounce:    cfg.TapDebounce,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Location:    policy.Location,
	})

	sched := attendance.NewScheduler(log, engine, policy, api.HandleAutoClosed)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		engine:    engine,
		sched:     sched,
		api:       api,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		fileDir:   fileDir,
	}, nil
}

// Run starts the scheduler and the HTTP server and blocks until context
// cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	// Run performs the startup catch-up sweep before its timer loop.
	go func() { _ = a.sched.Run(ctx) }()

	if a.fileDir != nil {
		go func() {
			if err := a.fileDir.Watch(ctx); err != nil {
				a.log.Error("directory.watch.fail", "err", err)
			}
		}()
	}

	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.api)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(WithSecurityHeaders(mux), a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"open_sessions", a.engine.OpenCount(),
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.store.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore picks the session store: Postgres when ATTEND_DATABASE_URL is
// set, SQLite when ATTEND_SQLITE_PATH is set, in-memory otherwise.
func newStore(ctx context.Context, cfg Config, log Logger) (attendance.Store, *pgxpool.Pool, bool, error) {
	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, false, err
		}
		store, err := attendance.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, false, err
		}
		log.Info("store.postgres")
		return store, pool, true, nil

	case cfg.SQLitePath != "":
		store, err := attendance.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, false, err
		}
		log.Info("store.sqlite", "path", cfg.SQLitePath)
		return store, nil, false, nil

	default:
		log.Info("store.inmemory")
		return attendance.NewInMemoryStore(), nil, false, nil
	}
}

// newResolver picks the card directory: Postgres members table when a
// pool exists, a watched TOML file when configured, an empty static map
// otherwise (manual-identity taps still work).
func newResolver(cfg Config, log Logger, pool *pgxpool.Pool) (directory.Resolver, *directory.FileDirectory, error) {
	if pool != nil {
		dir, err := directory.NewPostgresDirectory(pool)
		if err != nil {
			return nil, nil, err
		}
		log.Info("directory.postgres")
		return dir, nil, nil
	}

	if cfg.DirectoryFile != "" {
		dir, err := directory.NewFileDirectory(log, cfg.DirectoryFile)
		if err != nil {
			return nil, nil, err
		}
		log.Info("directory.file", "path", cfg.DirectoryFile, "members", dir.Len())
		return dir, dir, nil
	}

	log.Info("directory.static.empty")
	return directory.Static{}, nil, nil
}

// parseTapWindow validates the optional tap window. Both ends must be
// set together.
func parseTapWindow(cfg Config) (*attendance.TimeOfDay, *attendance.TimeOfDay, error) {
	if cfg.TapWindowStart == "" && cfg.TapWindowEnd == "" {
		return nil, nil, nil
	}
	if cfg.TapWindowStart == "" || cfg.TapWindowEnd == "" {
		return nil, nil, fmt.Errorf("%w: tap window needs both ATTEND_TAP_WINDOW_START and ATTEND_TAP_WINDOW_END", attendance.ErrConfig)
	}

	start, err := attendance.ParseTimeOfDay(cfg.TapWindowStart)
	if err != nil {
		return nil, nil, err
	}
	end, err := attendance.ParseTimeOfDay(cfg.TapWindowEnd)
	if err != nil {
		return nil, nil, err
	}
	return &start, &end, nil
}
