package shortener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinylink/tinylink/internal/cache"
	"github.com/tinylink/tinylink/internal/config"
	"github.com/tinylink/tinylink/internal/database"
	"github.com/tinylink/tinylink/internal/models"
)

// Repository defines the interface for working with URL records at the
// business logic layer.
type Repository interface {
	// Create inserts a new shortened URL record. It fails with
	// database.ErrShortCodeExists when the code is taken.
	Create(ctx context.Context, url *models.URL) (*models.URL, error)

	// CodeExists reports whether a short code is already taken.
	CodeExists(ctx context.Context, shortCode string) (bool, error)

	// GetByShortCode retrieves a URL record without side effects.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// IncrementClicks bumps the click counter atomically in the store.
	IncrementClicks(ctx context.Context, shortCode string) error

	// Update applies a partial update to a URL record.
	Update(ctx context.Context, shortCode string, params database.UpdateURLParams) (*models.URL, error)

	// Delete removes a URL record.
	Delete(ctx context.Context, shortCode string) error

	// List returns a page of URL records and the total matching count.
	List(ctx context.Context, params database.ListURLsParams) ([]models.URL, int64, error)

	// EventsByShortCode returns the most recent access events for a code.
	EventsByShortCode(ctx context.Context, shortCode string, limit int) ([]models.AccessEvent, error)
}

// Cache is the ephemeral key/value view in front of the repository. Any
// error from it degrades the request to a store round trip; it is never
// surfaced to the caller.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// EventRecorder accepts access events without blocking the caller.
type EventRecorder interface {
	Record(ev Event)
}

// Visitor carries the request attributes recorded with an access event.
type Visitor struct {
	IP        string
	UserAgent string
	Referrer  string
}

// ShortenURLParams describes a shortening request.
type ShortenURLParams struct {
	OriginalURL   string
	CustomCode    string
	ExpiresInDays int
	Title         string
	Description   string
	Creator       Visitor
}

// URLService implements the shortening and resolution core on top of the
// repository, the cache and the event recorder. All collaborators are passed
// in at construction; the service holds no ambient state.
type URLService struct {
	repo     Repository
	cache    Cache
	recorder EventRecorder
	gen      *Generator
	logger   *slog.Logger
	cfg      config.Shortener
	now      func() time.Time
}

func NewURLService(repo Repository, c Cache, recorder EventRecorder, logger *slog.Logger, cfg config.Shortener) *URLService {
	return &URLService{
		repo:     repo,
		cache:    c,
		recorder: recorder,
		gen:      NewGenerator(repo, cfg.Alphabet, cfg.CodeLength),
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// ShortURL renders the public short URL for a code.
func (s *URLService) ShortURL(shortCode string) string {
	return s.cfg.BaseURL + "/" + shortCode
}

// ShortenURL creates a shortened URL record. A custom code is validated for
// format and availability; otherwise a unique code is generated. The record
// insert is still guarded by the store's unique constraint, so a concurrent
// creation of the same code surfaces as database.ErrShortCodeExists.
func (s *URLService) ShortenURL(ctx context.Context, params ShortenURLParams) (*models.URL, error) {
	const op = "shortener.URLService.ShortenURL"

	if len(params.OriginalURL) > s.cfg.MaxURLLength {
		return nil, fmt.Errorf("%s: %w", op, ErrURLTooLong)
	}

	var shortCode string
	isCustom := params.CustomCode != ""

	if isCustom {
		if err := s.gen.ValidateCustomCode(ctx, params.CustomCode); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		shortCode = params.CustomCode
	} else {
		code, err := s.gen.Generate(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		shortCode = code
	}

	expiresAt, err := s.expiry(params.ExpiresInDays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	url, err := s.repo.Create(ctx, &models.URL{
		ShortCode:        shortCode,
		OriginalURL:      params.OriginalURL,
		Title:            params.Title,
		Description:      params.Description,
		IsCustom:         isCustom,
		IsActive:         true,
		ExpiresAt:        expiresAt,
		CreatorIP:        params.Creator.IP,
		CreatorUserAgent: params.Creator.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
	}

	// Pre-warm the cache; a failure only costs the first resolution a store
	// round trip.
	if err := s.cache.Set(ctx, cache.URLKey(url.ShortCode), url.OriginalURL, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to pre-warm cache", slog.String("short_code", url.ShortCode), slog.Any("err", err))
	}

	return url, nil
}

func (s *URLService) expiry(days int) (*time.Time, error) {
	if days == 0 {
		days = s.cfg.DefaultExpiryDays
	}
	if days == 0 {
		return nil, nil
	}
	if days < 0 || (s.cfg.MaxExpiryDays > 0 && days > s.cfg.MaxExpiryDays) {
		return nil, ErrExpiryOutOfRange
	}

	t := s.now().UTC().AddDate(0, 0, days)
	return &t, nil
}

// Resolve maps a short code to its original URL. The cache is consulted
// first; on a miss the store is authoritative and the entry is refilled.
// With track set, the access is counted: synchronously against the store on
// the miss path, via the recorder queue on the hit path. Event persistence
// is always asynchronous and best-effort.
func (s *URLService) Resolve(ctx context.Context, shortCode string, track bool, visitor Visitor) (string, error) {
	const op = "shortener.URLService.Resolve"

	if !ValidShortCode(shortCode) {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidShortCode)
	}

	key := cache.URLKey(shortCode)

	originalURL, err := s.cache.Get(ctx, key)
	if err == nil {
		if track {
			s.recorder.Record(s.event(shortCode, visitor, true))
		}
		return originalURL, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("cache degraded, falling back to store", slog.Any("err", err))
	}

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return "", fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	now := s.now()
	if !url.IsActive {
		return "", fmt.Errorf("%s: %w", op, ErrURLDeactivated)
	}
	if url.IsExpired(now) {
		return "", fmt.Errorf("%s: %w", op, ErrURLExpired)
	}

	if track {
		// The click counter lives only in the store, so this write happens
		// before responding.
		if err := s.repo.IncrementClicks(ctx, shortCode); err != nil {
			s.logger.Error("failed to increment clicks", slog.String("short_code", shortCode), slog.Any("err", err))
		}
	}

	if err := s.cache.Set(ctx, key, url.OriginalURL, s.cfg.CacheTTL); err != nil {
		s.logger.Warn("failed to refill cache", slog.String("short_code", shortCode), slog.Any("err", err))
	}

	if track {
		s.recorder.Record(s.event(shortCode, visitor, false))
	}

	return url.OriginalURL, nil
}

func (s *URLService) event(shortCode string, visitor Visitor, trackClick bool) Event {
	return Event{
		ShortCode:  shortCode,
		VisitorIP:  visitor.IP,
		UserAgent:  visitor.UserAgent,
		Referrer:   visitor.Referrer,
		TrackClick: trackClick,
		At:         s.now().UTC(),
	}
}

// GetURLInfo returns the metadata snapshot for a code, optionally with its
// most recent access events.
func (s *URLService) GetURLInfo(ctx context.Context, shortCode string, includeClicks bool, clickLimit int) (*models.URL, []models.AccessEvent, error) {
	const op = "shortener.URLService.GetURLInfo"

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to get url info: %w", op, err)
	}

	if !includeClicks {
		return url, nil, nil
	}

	events, err := s.repo.EventsByShortCode(ctx, shortCode, clickLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: failed to get access events: %w", op, err)
	}

	return url, events, nil
}

// ListURLs returns a page of URL records and the total matching count.
func (s *URLService) ListURLs(ctx context.Context, params database.ListURLsParams) ([]models.URL, int64, error) {
	const op = "shortener.URLService.ListURLs"

	if params.Limit <= 0 {
		params.Limit = 20
	}
	if params.Limit > 100 {
		params.Limit = 100
	}

	urls, total, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: failed to list urls: %w", op, err)
	}

	return urls, total, nil
}

// ModifyURLParams describes a partial update request.
type ModifyURLParams struct {
	Title         *string
	Description   *string
	IsActive      *bool
	ExpiresInDays *int
}

// ModifyURL applies a partial update and invalidates the cache entry so the
// next resolution observes the change.
func (s *URLService) ModifyURL(ctx context.Context, shortCode string, params ModifyURLParams) (*models.URL, error) {
	const op = "shortener.URLService.ModifyURL"

	upd := database.UpdateURLParams{
		Title:       params.Title,
		Description: params.Description,
		IsActive:    params.IsActive,
	}

	if params.ExpiresInDays != nil {
		expiresAt, err := s.expiry(*params.ExpiresInDays)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		upd.ExpiresAt = expiresAt
	}

	url, err := s.repo.Update(ctx, shortCode, upd)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to modify url: %w", op, err)
	}

	if err := s.cache.Delete(ctx, cache.URLKey(shortCode)); err != nil {
		s.logger.Warn("failed to purge cache entry", slog.String("short_code", shortCode), slog.Any("err", err))
	}

	return url, nil
}

// DeleteURL removes a URL record and purges its cache entry. Access events
// are retained for historical reporting.
func (s *URLService) DeleteURL(ctx context.Context, shortCode string) error {
	const op = "shortener.URLService.DeleteURL"

	if err := s.repo.Delete(ctx, shortCode); err != nil {
		return fmt.Errorf("%s: failed to delete url: %w", op, err)
	}

	if err := s.cache.Delete(ctx, cache.URLKey(shortCode)); err != nil {
		s.logger.Warn("failed to purge cache entry", slog.String("short_code", shortCode), slog.Any("err", err))
	}

	return nil
}
