package fulfillment

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/l0p7/toptracks/internal/metrics"
)

const (
	cacheHeader = "X-Cache"

	detailNotFound = "artist not found"
	detailUpstream = "upstream provider error"
	detailInternal = "internal server error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// Handler exposes the service over HTTP.
type Handler struct {
	service *Service
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// NewHandler wraps service. logger and rec may be nil.
func NewHandler(service *Service, logger *slog.Logger, rec *metrics.Recorder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With(slog.String("agent", "http")),
		metrics: rec,
	}
}

// ServeHealth always reports ok; it does not probe dependencies.
func (h *Handler) ServeHealth(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ServeTopTracks handles GET /v1/artists/top-tracks?name=<artist>&cache=<bool>.
func (h *Handler) ServeTopTracks(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	correlationID := middleware.GetReqID(r.Context())
	reqLogger := h.logger.With(slog.String("correlation_id", correlationID))

	query := r.URL.Query()
	if !query.Has("name") {
		h.reject(w, reqLogger, start, "query parameter 'name' is required")
		return
	}
	useCache := true
	if query.Has("cache") {
		parsed, err := parseBool(query.Get("cache"))
		if err != nil {
			h.reject(w, reqLogger, start, err.Error())
			return
		}
		useCache = parsed
	}

	result, err := h.service.TopTracks(r.Context(), Request{
		Artist:        query.Get("name"),
		UseCache:      useCache,
		CorrelationID: correlationID,
	})
	state := result.State

	status := http.StatusOK
	switch {
	case err == nil:
		w.Header().Set(cacheHeader, string(state.Status))
		h.writeJSON(w, status, result.Response)
	case errors.Is(err, ErrInvalidArtist):
		status = http.StatusUnprocessableEntity
		h.WriteError(w, status, "query parameter 'name' must not be blank")
	case errors.Is(err, ErrArtistNotFound):
		status = http.StatusNotFound
		h.WriteError(w, status, detailNotFound)
	case errors.Is(err, ErrUpstream):
		status = http.StatusBadGateway
		h.WriteError(w, status, detailUpstream)
	default:
		status = http.StatusInternalServerError
		h.WriteError(w, status, detailInternal)
	}

	duration := time.Since(start)
	attrs := []slog.Attr{
		slog.String("artist", state.Artist),
		slog.String("cache_status", string(state.Status)),
		slog.String("outcome", string(state.Outcome)),
		slog.Int("http_status", status),
		slog.Float64("latency_ms", float64(duration)/float64(time.Millisecond)),
	}
	if state.TransactionID != "" {
		attrs = append(attrs, slog.String("transaction_id", state.TransactionID))
	}
	level := slog.LevelInfo
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
	}
	h.logDebugState(r, reqLogger, state)
	reqLogger.LogAttrs(r.Context(), level, "top tracks request completed", attrs...)
	h.metrics.ObserveRequest(string(state.Outcome), string(state.Status), status, duration)
}

// WriteError emits {"detail": message} with the given status.
func (h *Handler) WriteError(w http.ResponseWriter, status int, message string) {
	if status <= 0 {
		status = http.StatusInternalServerError
	}
	h.writeJSON(w, status, ErrorResponse{Detail: message})
}

func (h *Handler) reject(w http.ResponseWriter, logger *slog.Logger, start time.Time, detail string) {
	h.WriteError(w, http.StatusUnprocessableEntity, detail)
	logger.Info("top tracks request rejected", slog.String("detail", detail))
	h.metrics.ObserveRequest(string(OutcomeInvalidInput), "", http.StatusUnprocessableEntity, time.Since(start))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("response encode failed", slog.Any("error", err))
	}
}

func (h *Handler) logDebugState(r *http.Request, logger *slog.Logger, state State) {
	ctx := r.Context()
	if !logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	logger.LogAttrs(ctx, slog.LevelDebug, "top tracks state snapshot",
		slog.String("cache_key", state.CacheKey),
		slog.Bool("forced", state.Forced),
		slog.Bool("cache_hit", state.Cache.Hit),
		slog.Bool("cache_deleted", state.Cache.Deleted),
		slog.Bool("cache_stored", state.Cache.Stored),
		slog.Int("cache_errors", state.Cache.Errors),
		slog.Bool("upstream_called", state.Upstream.Called),
		slog.Int64("artist_id", state.Upstream.ArtistID),
		slog.Int("tracks", state.Upstream.Tracks),
	)
}

// parseBool accepts the usual query-string spellings of a boolean, case-insensitively.
func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "on", "t", "y":
		return true, nil
	case "false", "0", "no", "off", "f", "n":
		return false, nil
	default:
		return false, fmt.Errorf("query parameter 'cache' must be a boolean, got %q", raw)
	}
}
