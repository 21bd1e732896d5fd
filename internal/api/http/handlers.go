package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/tinylink/tinylink/internal/database"
	"github.com/tinylink/tinylink/internal/models"
	"github.com/tinylink/tinylink/internal/shortener"
	"github.com/tinylink/tinylink/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenURLRequest represents the request payload for creating a shortened URL.
type shortenURLRequest struct {
	URL           string `json:"url" validate:"required,url"`
	CustomCode    string `json:"custom_code,omitempty" validate:"omitempty,min=3,max=50"`
	ExpiresInDays int    `json:"expires_in_days,omitempty" validate:"omitempty,min=1"`
	Title         string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description   string `json:"description,omitempty" validate:"omitempty,max=1000"`
}

// modifyURLRequest represents the request payload for partially updating a URL.
// Absent fields keep their current values.
type modifyURLRequest struct {
	Title         *string `json:"title,omitempty" validate:"omitempty,max=255"`
	Description   *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	IsActive      *bool   `json:"is_active,omitempty"`
	ExpiresInDays *int    `json:"expires_in_days,omitempty" validate:"omitempty,min=1"`
}

// urlResponse represents the response payload for a shortened URL operation.
type urlResponse struct {
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	URL         string     `json:"url"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	IsCustom    bool       `json:"is_custom"`
	IsActive    bool       `json:"is_active"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// accessEventResponse represents one recorded access in info responses.
type accessEventResponse struct {
	VisitorIP string    `json:"visitor_ip"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// toURLResponse converts a URL model from the business layer into a response payload.
func toURLResponse(svc URLService, url *models.URL) urlResponse {
	return urlResponse{
		ShortCode:   url.ShortCode,
		ShortURL:    svc.ShortURL(url.ShortCode),
		URL:         url.OriginalURL,
		Title:       url.Title,
		Description: url.Description,
		IsCustom:    url.IsCustom,
		IsActive:    url.IsActive,
		ExpiresAt:   url.ExpiresAt,
		ClickCount:  url.ClickCount,
		CreatedAt:   url.CreatedAt,
		UpdatedAt:   url.UpdatedAt,
	}
}

func toAccessEventResponses(events []models.AccessEvent) []accessEventResponse {
	if len(events) == 0 {
		return nil
	}

	resp := make([]accessEventResponse, len(events))
	for i, ev := range events {
		resp[i] = accessEventResponse{
			VisitorIP: ev.VisitorIP,
			UserAgent: ev.UserAgent,
			Referrer:  ev.Referrer,
			CreatedAt: ev.CreatedAt,
		}
	}

	return resp
}

func visitorFromRequest(r *http.Request) shortener.Visitor {
	return shortener.Visitor{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
		Referrer:  r.Referer(),
	}
}

// handleShortenURL handles POST requests to shorten a URL.
//
// The request must contain a valid URL and may carry a custom short code,
// an expiry in days and descriptive metadata. The handler validates the
// input, calls the URL shortening service, and returns the short code with
// relevant metadata.
func handleShortenURL(svc URLService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleShortenURL"
	const successMsg = "The URL has been shortened successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenURLRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		url, err := svc.ShortenURL(r.Context(), shortener.ShortenURLParams{
			OriginalURL:   req.URL,
			CustomCode:    req.CustomCode,
			ExpiresInDays: req.ExpiresInDays,
			Title:         req.Title,
			Description:   req.Description,
			Creator:       visitorFromRequest(r),
		})
		if err != nil {
			switch {
			case errors.Is(err, database.ErrShortCodeExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.ConflictResponse)
			case errors.Is(err, shortener.ErrInvalidShortCode),
				errors.Is(err, shortener.ErrURLTooLong),
				errors.Is(err, shortener.ErrExpiryOutOfRange):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, response.SuccessResponse(successMsg, toURLResponse(svc, url)))
	}
}

// handleRedirect handles GET requests to resolve a short code and redirect
// the visitor to the original URL.
//
// A successful resolution responds with 302 and counts the access. Expired
// and deactivated links respond with 410, unknown codes with 404.
func handleRedirect(svc URLService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		originalURL, err := svc.Resolve(r.Context(), shortCode, true, visitorFromRequest(r))
		if err != nil {
			switch {
			case errors.Is(err, shortener.ErrInvalidShortCode):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
			case errors.Is(err, database.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, shortener.ErrURLExpired):
				render.Status(r, http.StatusGone)
				render.JSON(w, r, response.GoneResponse("The link has expired."))
			case errors.Is(err, shortener.ErrURLDeactivated):
				render.Status(r, http.StatusGone)
				render.JSON(w, r, response.GoneResponse("The link has been deactivated."))
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		http.Redirect(w, r, originalURL, http.StatusFound)
	}
}

// handleGetURLInfo handles GET requests to retrieve metadata for a shortened
// URL without redirecting or counting an access.
//
// With include_clicks set, the most recent access events are attached.
func handleGetURLInfo(svc URLService) http.HandlerFunc {
	const op = "api.http.handleGetURLInfo"
	const successMsg = "The URL information retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		includeClicks, _ := strconv.ParseBool(r.URL.Query().Get("include_clicks"))
		clickLimit, err := strconv.Atoi(r.URL.Query().Get("clicks_limit"))
		if err != nil || clickLimit <= 0 || clickLimit > 100 {
			clickLimit = 10
		}

		url, events, err := svc.GetURLInfo(r.Context(), shortCode, includeClicks, clickLimit)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := struct {
			urlResponse
			RecentClicks []accessEventResponse `json:"recent_clicks,omitempty"`
		}{
			urlResponse:  toURLResponse(svc, url),
			RecentClicks: toAccessEventResponses(events),
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// handleListURLs handles GET requests to list shortened URLs with paging,
// filtering and sorting.
func handleListURLs(svc URLService) http.HandlerFunc {
	const op = "api.http.handleListURLs"
	const successMsg = "The URLs retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		params := database.ListURLsParams{
			SortBy:    query.Get("sort_by"),
			SortOrder: query.Get("sort_order"),
		}
		params.Limit, _ = strconv.Atoi(query.Get("limit"))
		params.Offset, _ = strconv.Atoi(query.Get("offset"))

		if raw := query.Get("is_active"); raw != "" {
			if v, err := strconv.ParseBool(raw); err == nil {
				params.IsActive = &v
			}
		}
		if raw := query.Get("is_expired"); raw != "" {
			if v, err := strconv.ParseBool(raw); err == nil {
				params.IsExpired = &v
			}
		}

		urls, total, err := svc.ListURLs(r.Context(), params)
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		items := make([]urlResponse, len(urls))
		for i := range urls {
			items[i] = toURLResponse(svc, &urls[i])
		}

		data := struct {
			URLs  []urlResponse `json:"urls"`
			Total int64         `json:"total"`
		}{
			URLs:  items,
			Total: total,
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// handleModifyURL handles PUT requests to partially update an existing URL.
//
// Present fields are applied, absent fields keep their values. Deactivation
// and reactivation happen through the is_active field.
func handleModifyURL(svc URLService, validate *validator.Validate) http.HandlerFunc {
	const op = "api.http.handleModifyURL"
	const successMsg = "The URL was successfully modified."

	return func(w http.ResponseWriter, r *http.Request) {
		var req modifyURLRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.ModifyURL(r.Context(), shortCode, shortener.ModifyURLParams{
			Title:         req.Title,
			Description:   req.Description,
			IsActive:      req.IsActive,
			ExpiresInDays: req.ExpiresInDays,
		})
		if err != nil {
			switch {
			case errors.Is(err, database.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			case errors.Is(err, shortener.ErrExpiryOutOfRange):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, toURLResponse(svc, url)))
	}
}

// handleDeleteURL handles DELETE requests to remove the URL.
//
// The record and its cache entry are removed; recorded access events are
// kept for historical reporting.
func handleDeleteURL(svc URLService) http.HandlerFunc {
	const op = "api.http.handleDeleteURL"
	const successMsg = "The URL was successfully deleted."

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		err := svc.DeleteURL(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg))
	}
}
