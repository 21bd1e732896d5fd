package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"
	"github.com/tinylink/tinylink/internal/cache"
	"github.com/tinylink/tinylink/internal/database"
	"github.com/tinylink/tinylink/internal/models"
	"github.com/tinylink/tinylink/internal/ratelimit"
	"github.com/tinylink/tinylink/internal/shortener"
	"github.com/tinylink/tinylink/internal/validate"
)

// URLService defines the interface for the core URL shortening business logic.
type URLService interface {
	// ShortenURL creates a shortened URL record for the provided original URL,
	// either under a caller-supplied custom code or a generated one.
	ShortenURL(ctx context.Context, params shortener.ShortenURLParams) (*models.URL, error)

	// ShortURL renders the public short URL for a code.
	ShortURL(shortCode string) string

	// Resolve maps a short code to its original URL, counting the access when
	// track is set.
	Resolve(ctx context.Context, shortCode string, track bool, visitor shortener.Visitor) (string, error)

	// GetURLInfo returns the metadata snapshot for a code, optionally with its
	// most recent access events.
	GetURLInfo(ctx context.Context, shortCode string, includeClicks bool, clickLimit int) (*models.URL, []models.AccessEvent, error)

	// ListURLs returns a page of URL records and the total matching count.
	ListURLs(ctx context.Context, params database.ListURLsParams) ([]models.URL, int64, error)

	// ModifyURL applies a partial update to a URL record.
	ModifyURL(ctx context.Context, shortCode string, params shortener.ModifyURLParams) (*models.URL, error)

	// DeleteURL removes a URL record and purges its cache entry.
	DeleteURL(ctx context.Context, shortCode string) error
}

// Limiter admits or denies a request for a client.
type Limiter interface {
	Admit(ctx context.Context, clientID string) ratelimit.Decision
}

// DBPinger reports persistent store liveness.
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// CacheAdmin is the slice of the cache the admin surface needs.
type CacheAdmin interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) cache.Stats
	DeletePattern(ctx context.Context, pattern string) (int64, error)
}

// URLChecker validates a batch of original URLs.
type URLChecker interface {
	CheckAll(ctx context.Context, rawURLs []string) []validate.Result
}

// Deps bundles the collaborators the router wires into handlers.
type Deps struct {
	URLService     URLService
	DB             DBPinger
	Cache          CacheAdmin
	Checker        URLChecker
	ResolveLimiter Limiter
	MutateLimiter  Limiter
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)

		r.Route("/urls", func(r chi.Router) {
			r.With(rateLimit(deps.MutateLimiter)).Post("/shorten", handleShortenURL(deps.URLService, validate))
			r.Get("/", handleListURLs(deps.URLService))

			r.Route("/{shortCode}", func(r chi.Router) {
				r.With(rateLimit(deps.ResolveLimiter)).Get("/", handleRedirect(deps.URLService))
				r.Get("/info", handleGetURLInfo(deps.URLService))
				r.With(rateLimit(deps.MutateLimiter)).Put("/", handleModifyURL(deps.URLService, validate))
				r.With(rateLimit(deps.MutateLimiter)).Delete("/", handleDeleteURL(deps.URLService))
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/health", handleHealth(deps.DB, deps.Cache))
			r.Get("/cache/stats", handleCacheStats(deps.Cache))
			r.Delete("/cache", handleCacheFlush(deps.Cache))
			r.Post("/urls/validate", handleValidateURLs(deps.Checker, validate))
		})
	})

	return r
}
