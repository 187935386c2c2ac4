package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// TopTracksHTTP is the surface the router needs from the fulfillment handler.
type TopTracksHTTP interface {
	ServeTopTracks(http.ResponseWriter, *http.Request)
	ServeHealth(http.ResponseWriter, *http.Request)
	WriteError(http.ResponseWriter, int, string)
}

// RouterOptions configures the cross-cutting parts of the router.
type RouterOptions struct {
	// CorrelationHeader is read from requests and echoed on every response.
	CorrelationHeader string
	// Metrics, when set, is mounted at /metrics.
	Metrics http.Handler
}

// NewRouter mounts the service routes behind request-id, real-ip and
// panic-recovery middleware.
func NewRouter(h TopTracksHTTP, opts RouterOptions) http.Handler {
	if h == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		})
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(correlation(opts.CorrelationHeader))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		h.WriteError(w, http.StatusNotFound, fmt.Sprintf("route %s not found", req.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		h.WriteError(w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", req.Method))
	})

	r.Get("/healthz", h.ServeHealth)
	r.Get("/health", h.ServeHealth)
	r.Route("/v1/artists", func(r chi.Router) {
		r.Get("/top-tracks", h.ServeTopTracks)
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	return r
}

// correlation makes the configured header the request id when the caller
// supplies one, and echoes the effective id on the response.
func correlation(header string) func(http.Handler) http.Handler {
	header = strings.TrimSpace(header)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			id := strings.TrimSpace(r.Header.Get(header))
			if id == "" {
				id = middleware.GetReqID(r.Context())
			}
			if id == "" {
				id = newCorrelationID()
			}
			w.Header().Set(header, id)
			ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func newCorrelationID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err == nil {
		return hex.EncodeToString(buf)
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
