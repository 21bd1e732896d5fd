package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"golang.org/x/sync/errgroup"

	api "github.com/tinylink/tinylink/internal/api/http"
	"github.com/tinylink/tinylink/internal/cache"
	"github.com/tinylink/tinylink/internal/config"
	"github.com/tinylink/tinylink/internal/database/postgres"
	"github.com/tinylink/tinylink/internal/ratelimit"
	"github.com/tinylink/tinylink/internal/shortener"
	"github.com/tinylink/tinylink/internal/validate"
)

func newLogger(env string) *httplog.Logger {
	opts := httplog.Options{
		LogLevel: slog.LevelInfo,
		Concise:  true,
	}

	switch env {
	case config.EnvProd:
		opts.JSON = true
		opts.Concise = false
	case config.EnvDev:
		opts.LogLevel = slog.LevelDebug
	}

	return httplog.NewLogger("tinylink", opts)
}

// Run wires the store, the cache, the recorder and the HTTP server together
// and blocks until ctx is cancelled and every part has shut down.
func Run(ctx context.Context, cfg *config.Config) error {
	const op = "app.Run"

	logger := newLogger(cfg.Env)

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("%s: failed to connect to database: %w", op, err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(cfg.Postgres.MigrationsPath, cfg.Postgres.DSN()); err != nil {
		return fmt.Errorf("%s: failed to run migrations: %w", op, err)
	}

	// A dead cache is not fatal: resolution degrades to store round trips and
	// the rate limiter fails open.
	c, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("cache unavailable, continuing degraded", slog.Any("err", err))
	}
	defer c.Close()

	urlRepo := postgres.NewURLRepository(db)

	recorder := shortener.NewRecorder(
		urlRepo,
		logger.Logger,
		cfg.Shortener.EventQueueSize,
		cfg.Shortener.EventWorkers,
		cfg.Shortener.EventBatchSize,
		cfg.Shortener.EventFlushInterval,
	)

	urlSvc := shortener.NewURLService(urlRepo, c, recorder, logger.Logger, cfg.Shortener)

	router := api.NewRouter(logger, api.Deps{
		URLService:     urlSvc,
		DB:             db,
		Cache:          c,
		Checker:        validate.NewChecker(cfg.Shortener.BlacklistedDomains),
		ResolveLimiter: ratelimit.New(c, "resolve", cfg.RateLimit.Resolve, logger.Logger),
		MutateLimiter:  ratelimit.New(c, "mutate", cfg.RateLimit.Mutate, logger.Logger),
	})

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        router,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return recorder.Run(ctx)
	})

	g.Go(func() error {
		logger.Info("server started", slog.String("addr", server.Addr), slog.String("env", cfg.Env))

		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s: server error occurred: %w", op, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		if err := server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("%s: failed to shutdown server: %w", op, err)
		}

		return nil
	})

	return g.Wait()
}
