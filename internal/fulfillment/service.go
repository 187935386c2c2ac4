// Package fulfillment answers top-track requests: it consults the artist
// cache, falls back to the upstream catalog on a miss, records an audit
// transaction for every fresh fetch and stores the result.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/l0p7/toptracks/internal/cache"
	"github.com/l0p7/toptracks/internal/catalog"
	"github.com/l0p7/toptracks/internal/metrics"
	"github.com/l0p7/toptracks/internal/transactions"
)

const defaultTimeout = 30 * time.Second

var (
	// ErrInvalidArtist is returned when the artist name is empty after normalization.
	ErrInvalidArtist = errors.New("fulfillment: artist name required")
	// ErrArtistNotFound is returned when the provider has no matching artist.
	ErrArtistNotFound = errors.New("fulfillment: artist not found")
	// ErrUpstream wraps every failure reported by the artist catalog.
	ErrUpstream = errors.New("fulfillment: upstream provider error")
	// ErrCacheUnavailable wraps cache backend failures when fail-open is off.
	ErrCacheUnavailable = errors.New("fulfillment: cache unavailable")
)

// ArtistCatalog is the upstream provider as the service sees it.
type ArtistCatalog interface {
	ResolveArtistID(ctx context.Context, name string) (int64, bool, error)
	FetchTopTracks(ctx context.Context, artistID int64, limit int) ([]catalog.Track, error)
}

// Options wires the service collaborators. Cache, Catalog and Transactions are required.
type Options struct {
	Cache         cache.Store
	CacheTTL      time.Duration
	CacheFailOpen bool

	Catalog    ArtistCatalog
	TrackLimit int

	Transactions       *transactions.Log
	TransactionBackend string

	// Timeout bounds the miss path once it has started.
	Timeout time.Duration

	Logger  *slog.Logger
	Metrics *metrics.Recorder
	Tracer  trace.Tracer
}

// Request is one top-tracks lookup.
type Request struct {
	Artist string
	// UseCache is false when the caller asked for a forced refresh.
	UseCache      bool
	CorrelationID string
}

// Response is the payload returned to the caller. Count always equals len(Tracks).
type Response struct {
	TransactionID string          `json:"transaction_id"`
	Artist        string          `json:"artist"`
	Count         int             `json:"count"`
	FromCache     bool            `json:"from_cache"`
	Tracks        []catalog.Track `json:"tracks"`
}

// Result pairs the response with the observed request state. State is
// populated even when TopTracks returns an error.
type Result struct {
	Response Response
	State    State
}

// Service runs the read-through cache state machine. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	cache         cache.Store
	cacheTTL      time.Duration
	cacheFailOpen bool
	catalog       ArtistCatalog
	trackLimit    int
	log           *transactions.Log
	logBackend    string
	timeout       time.Duration
	logger        *slog.Logger
	metrics       *metrics.Recorder
	tracer        trace.Tracer
}

// NewService validates opts and applies defaults.
func NewService(opts Options) (*Service, error) {
	if opts.Cache == nil {
		return nil, errors.New("fulfillment: cache store required")
	}
	if opts.Catalog == nil {
		return nil, errors.New("fulfillment: artist catalog required")
	}
	if opts.Transactions == nil {
		return nil, errors.New("fulfillment: transaction log required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	limit := opts.TrackLimit
	if limit <= 0 {
		limit = catalog.DefaultTrackLimit
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	backend := opts.TransactionBackend
	if backend == "" {
		backend = "memory"
	}
	return &Service{
		cache:         opts.Cache,
		cacheTTL:      ttl,
		cacheFailOpen: opts.CacheFailOpen,
		catalog:       opts.Catalog,
		trackLimit:    limit,
		log:           opts.Transactions,
		logBackend:    backend,
		timeout:       timeout,
		logger:        logger.With(slog.String("agent", "fulfillment")),
		metrics:       opts.Metrics,
		tracer:        tracer,
	}, nil
}

// TopTracks returns the artist's top tracks, from cache when allowed.
func (s *Service) TopTracks(ctx context.Context, req Request) (Result, error) {
	artist := catalog.NormalizeArtist(req.Artist)
	state := State{
		Artist:        artist,
		Forced:        !req.UseCache,
		CorrelationID: req.CorrelationID,
	}
	if artist == "" {
		state.Outcome = OutcomeInvalidInput
		return Result{State: state}, ErrInvalidArtist
	}
	state.CacheKey = cache.KeyForArtist(artist)

	if !state.Forced {
		entry, ok, err := s.cacheGet(ctx, &state)
		if err != nil {
			state.Outcome = OutcomeInternal
			return Result{State: state}, err
		}
		if ok {
			state.Cache.Hit = true
			state.Status = CacheHit
			state.Outcome = OutcomeFromCache
			state.TransactionID = entry.TransactionID
			return Result{Response: responseFromEntry(entry, true), State: state}, nil
		}
	}

	// A client disconnect must not abandon the transaction and cache writes.
	missCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	return s.fulfill(missCtx, state)
}

func (s *Service) fulfill(ctx context.Context, state State) (Result, error) {
	if state.Forced {
		if err := s.cacheDelete(ctx, &state); err != nil {
			state.Outcome = OutcomeInternal
			return Result{State: state}, err
		}
	}

	state.Upstream.Called = true
	artistID, found, err := s.resolve(ctx, state.Artist)
	if err != nil {
		state.Outcome = OutcomeUpstream
		return Result{State: state}, err
	}
	if !found {
		state.Outcome = OutcomeNotFound
		return Result{State: state}, ErrArtistNotFound
	}
	state.Upstream.ArtistID = artistID

	tracks, err := s.fetch(ctx, artistID)
	if err != nil {
		state.Outcome = OutcomeUpstream
		return Result{State: state}, err
	}
	state.Upstream.Tracks = len(tracks)

	txID, err := s.appendTransaction(ctx, state, len(tracks))
	if err != nil {
		state.Outcome = OutcomeInternal
		return Result{State: state}, err
	}
	state.TransactionID = txID

	entry := cache.Entry{TransactionID: txID, Artist: state.Artist, Tracks: tracks}
	if err := s.cacheSet(ctx, &state, entry); err != nil {
		state.Outcome = OutcomeInternal
		return Result{State: state}, err
	}

	state.Status = CacheRebuilt
	if state.Forced {
		state.Status = CacheMiss
	}
	state.Outcome = OutcomeFresh
	return Result{Response: responseFromEntry(entry, false), State: state}, nil
}

func (s *Service) cacheGet(ctx context.Context, state *State) (cache.Entry, bool, error) {
	ctx, span := s.tracer.Start(ctx, "cache.get", trace.WithAttributes(attribute.String("cache.key", state.CacheKey)))
	defer span.End()

	start := time.Now()
	entry, ok, err := s.cache.Get(ctx, state.CacheKey)
	result := metrics.CacheResultMiss
	switch {
	case err != nil:
		result = metrics.CacheResultError
	case ok:
		result = metrics.CacheResultHit
	}
	s.metrics.ObserveCache(metrics.CacheOperationGet, result, time.Since(start))
	span.SetAttributes(attribute.Bool("cache.hit", ok))

	if err != nil {
		recordSpanError(span, err)
		if s.tolerateCacheError(ctx, state, "get", err) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("%w: get %s: %w", ErrCacheUnavailable, state.CacheKey, err)
	}
	return entry, ok, nil
}

func (s *Service) cacheDelete(ctx context.Context, state *State) error {
	ctx, span := s.tracer.Start(ctx, "cache.delete", trace.WithAttributes(attribute.String("cache.key", state.CacheKey)))
	defer span.End()

	start := time.Now()
	err := s.cache.Delete(ctx, state.CacheKey)
	s.metrics.ObserveCache(metrics.CacheOperationDelete, cacheWriteResult(err), time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		if s.tolerateCacheError(ctx, state, "delete", err) {
			return nil
		}
		return fmt.Errorf("%w: delete %s: %w", ErrCacheUnavailable, state.CacheKey, err)
	}
	state.Cache.Deleted = true
	return nil
}

func (s *Service) cacheSet(ctx context.Context, state *State, entry cache.Entry) error {
	ctx, span := s.tracer.Start(ctx, "cache.set", trace.WithAttributes(
		attribute.String("cache.key", state.CacheKey),
		attribute.Int("tracks.count", len(entry.Tracks)),
	))
	defer span.End()

	start := time.Now()
	err := s.cache.Set(ctx, state.CacheKey, entry, s.cacheTTL)
	s.metrics.ObserveCache(metrics.CacheOperationSet, cacheWriteResult(err), time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		if s.tolerateCacheError(ctx, state, "set", err) {
			return nil
		}
		return fmt.Errorf("%w: set %s: %w", ErrCacheUnavailable, state.CacheKey, err)
	}
	state.Cache.Stored = true
	return nil
}

func (s *Service) tolerateCacheError(ctx context.Context, state *State, op string, err error) bool {
	if !s.cacheFailOpen {
		return false
	}
	state.Cache.Errors++
	s.logger.LogAttrs(ctx, slog.LevelWarn, "cache operation failed, continuing",
		slog.String("operation", op),
		slog.String("cache_key", state.CacheKey),
		slog.String("correlation_id", state.CorrelationID),
		slog.Any("error", err),
	)
	return true
}

func (s *Service) resolve(ctx context.Context, artist string) (int64, bool, error) {
	ctx, span := s.tracer.Start(ctx, "genius.resolve", trace.WithAttributes(attribute.String("artist", artist)))
	defer span.End()

	start := time.Now()
	id, ok, err := s.catalog.ResolveArtistID(ctx, artist)
	s.metrics.ObserveUpstream(metrics.UpstreamResolveArtist, err != nil, time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		return 0, false, fmt.Errorf("%w: resolve %q: %w", ErrUpstream, artist, err)
	}
	span.SetAttributes(attribute.Bool("artist.found", ok), attribute.Int64("artist.id", id))
	return id, ok, nil
}

func (s *Service) fetch(ctx context.Context, artistID int64) ([]catalog.Track, error) {
	ctx, span := s.tracer.Start(ctx, "genius.fetch", trace.WithAttributes(
		attribute.Int64("artist.id", artistID),
		attribute.Int("tracks.limit", s.trackLimit),
	))
	defer span.End()

	start := time.Now()
	tracks, err := s.catalog.FetchTopTracks(ctx, artistID, s.trackLimit)
	s.metrics.ObserveUpstream(metrics.UpstreamFetchTracks, err != nil, time.Since(start))
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("%w: fetch tracks for %d: %w", ErrUpstream, artistID, err)
	}
	if len(tracks) > s.trackLimit {
		tracks = tracks[:s.trackLimit]
	}
	span.SetAttributes(attribute.Int("tracks.count", len(tracks)))
	return tracks, nil
}

func (s *Service) appendTransaction(ctx context.Context, state State, count int) (string, error) {
	ctx, span := s.tracer.Start(ctx, "transactions.append", trace.WithAttributes(
		attribute.String("transactions.backend", s.logBackend),
		attribute.Bool("cache.enabled", !state.Forced),
	))
	defer span.End()

	id, err := s.log.Append(ctx, transactions.AppendInput{
		Artist:       state.Artist,
		CacheEnabled: !state.Forced,
		Source:       catalog.Source,
		TracksCount:  count,
	})
	s.metrics.ObserveTransaction(s.logBackend, err != nil)
	if err != nil {
		recordSpanError(span, err)
		return "", err
	}
	span.SetAttributes(attribute.String("transaction.id", id))
	return id, nil
}

func responseFromEntry(entry cache.Entry, fromCache bool) Response {
	tracks := entry.Tracks
	if tracks == nil {
		tracks = []catalog.Track{}
	}
	return Response{
		TransactionID: entry.TransactionID,
		Artist:        entry.Artist,
		Count:         len(tracks),
		FromCache:     fromCache,
		Tracks:        tracks,
	}
}

func cacheWriteResult(err error) metrics.CacheResult {
	if err != nil {
		return metrics.CacheResultError
	}
	return metrics.CacheResultOK
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
