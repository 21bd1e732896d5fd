package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/tinylink/tinylink/internal/validate"
	"github.com/tinylink/tinylink/pkg/response"
)

// handleHealth handles GET requests for the per-dependency health report.
//
// A down store makes the report 503; a down cache only degrades it, the
// service keeps answering from the store.
func handleHealth(db DBPinger, cacheAdmin CacheAdmin) http.HandlerFunc {
	const op = "api.http.handleHealth"

	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		overall := "ok"

		postgres := "up"
		if err := db.PingContext(r.Context()); err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			postgres = "down"
			overall = "degraded"
			status = http.StatusServiceUnavailable
		}

		redis := "up"
		if err := cacheAdmin.Ping(r.Context()); err != nil {
			redis = "down"
			overall = "degraded"
		}

		data := struct {
			Status   string `json:"status"`
			Postgres string `json:"postgres"`
			Redis    string `json:"redis"`
		}{
			Status:   overall,
			Postgres: postgres,
			Redis:    redis,
		}

		render.Status(r, status)
		render.JSON(w, r, response.SuccessResponse("Health report generated.", data))
	}
}

// handleCacheStats handles GET requests for a snapshot of the cache backend.
func handleCacheStats(cacheAdmin CacheAdmin) http.HandlerFunc {
	const successMsg = "The cache statistics retrieved successfully."

	return func(w http.ResponseWriter, r *http.Request) {
		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, cacheAdmin.Stats(r.Context())))
	}
}

// handleCacheFlush handles DELETE requests to drop every cached URL entry.
//
// The store stays authoritative, so a flush only costs the next resolutions
// a store round trip.
func handleCacheFlush(cacheAdmin CacheAdmin) http.HandlerFunc {
	const op = "api.http.handleCacheFlush"
	const successMsg = "The URL cache was successfully flushed."

	return func(w http.ResponseWriter, r *http.Request) {
		deleted, err := cacheAdmin.DeletePattern(r.Context(), "url:*")
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		data := struct {
			Deleted int64 `json:"deleted"`
		}{
			Deleted: deleted,
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// validateURLsRequest represents the request payload for bulk URL validation.
type validateURLsRequest struct {
	URLs []string `json:"urls" validate:"required,min=1,max=100,dive,required"`
}

// handleValidateURLs handles POST requests to run the safety checker over a
// batch of URLs.
func handleValidateURLs(checker URLChecker, validate *validator.Validate) http.HandlerFunc {
	const successMsg = "The URLs were validated."

	return func(w http.ResponseWriter, r *http.Request) {
		var req validateURLsRequest

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

		data := struct {
			Results []validateResult `json:"results"`
		}{
			Results: toValidateResults(checker.CheckAll(r.Context(), req.URLs)),
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, response.SuccessResponse(successMsg, data))
	}
}

// validateResult mirrors the checker verdict in the response payload.
type validateResult struct {
	URL        string `json:"url"`
	Valid      bool   `json:"valid"`
	Reachable  bool   `json:"reachable"`
	Suspicious bool   `json:"suspicious"`
	StatusCode int    `json:"status_code,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

func toValidateResults(results []validate.Result) []validateResult {
	resp := make([]validateResult, len(results))
	for i, res := range results {
		resp[i] = validateResult{
			URL:        res.URL,
			Valid:      res.Valid,
			Reachable:  res.Reachable,
			Suspicious: res.Suspicious,
			StatusCode: res.StatusCode,
			Reason:     res.Reason,
		}
	}

	return resp
}
