// Package middleware meters HTTP requests against hit logs kept in a
// store.Store, so several service instances can share one window per client.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/yourusername/hitcounter/core"
	"github.com/yourusername/hitcounter/metrics"
	"github.com/yourusername/hitcounter/pkg/hitcounter"
	"github.com/yourusername/hitcounter/store"
)

// errLimitReached aborts a store update once the window is full.
var errLimitReached = errors.New("limit reached")

// Meter provides HTTP middleware that records one hit per request
type Meter struct {
	window       *core.SlidingWindow
	store        store.Store
	keyExtractor hitcounter.KeyExtractor
	limit        int64
	clock        hitcounter.Clock
	logger       *zap.Logger
	metrics      *metrics.Metrics
}

// Config for creating a Meter
type Config struct {
	Window       core.Config             // Window policy; zero width means 300
	Limit        int64                   // Optional: reject once the window holds this many hits
	KeyExtractor hitcounter.KeyExtractor // Optional: defaults to the client IP behind proxies
	Store        store.Store             // Optional: defaults to in-memory
	Clock        hitcounter.Clock        // Optional: defaults to unix seconds
	Logger       *zap.Logger             // Optional
	Metrics      *metrics.Metrics        // Optional
}

// New creates a metering middleware
func New(config Config) (*Meter, error) {
	window, err := core.NewSlidingWindow(config.Window)
	if err != nil {
		return nil, err
	}
	if config.Limit < 0 {
		return nil, fmt.Errorf("%w: got %d", hitcounter.ErrInvalidLimit, config.Limit)
	}

	m := &Meter{
		window:       window,
		store:        config.Store,
		keyExtractor: config.KeyExtractor,
		limit:        config.Limit,
		clock:        config.Clock,
		logger:       config.Logger,
		metrics:      config.Metrics,
	}
	if m.store == nil {
		m.store = store.NewMemoryStore()
	}
	if m.keyExtractor == nil {
		m.keyExtractor = hitcounter.ExtractIPWithProxy()
	}
	if m.clock == nil {
		m.clock = hitcounter.UnixClock
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m, nil
}

// errorBody is the JSON body of every response the middleware writes itself
type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// record adds one hit for key at ts unless the limit is reached. The
// returned result describes the window after the call.
func (m *Meter) record(r *http.Request, key string, ts int64) (core.CountResult, bool, error) {
	var current core.CountResult
	log, err := m.store.Update(r.Context(), key, func(log *core.HitLog) (*core.HitLog, error) {
		if m.limit > 0 {
			if current = m.window.Count(log, ts); current.Hits >= m.limit {
				return nil, errLimitReached
			}
		}
		return m.window.Record(log, ts)
	})
	if errors.Is(err, errLimitReached) {
		return current, false, nil
	}
	if err != nil {
		return core.CountResult{}, false, err
	}
	return m.window.Count(log, ts), true, nil
}

// Middleware wraps an http.Handler with hit metering
func (m *Meter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, err := m.keyExtractor(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, errorBody{
				Error:   "invalid_key",
				Message: err.Error(),
			})
			return
		}

		ts := m.clock()
		result, recorded, err := m.record(r, key, ts)
		switch {
		case errors.Is(err, core.ErrInvalidTimestamp):
			// clocks of instances sharing a store can disagree slightly
			m.logger.Warn("request not counted", zap.String("key", key), zap.Int64("timestamp", ts), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		case err != nil:
			m.logger.Error("metering failed", zap.String("key", key), zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, errorBody{
				Error:   "store_unavailable",
				Message: "Hit store is unavailable. Please try again later.",
			})
			return
		}
		if m.metrics != nil {
			m.metrics.RecordHit(key, recorded)
		}

		w.Header().Set("X-Hits-Window", strconv.FormatInt(m.window.Width(), 10))
		w.Header().Set("X-Hits-Count", strconv.FormatInt(result.Hits, 10))
		if m.limit > 0 {
			remaining := m.limit - result.Hits
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(m.limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		}

		if !recorded {
			retryAfter := result.ExpiresIn(m.window.Width())
			if retryAfter < 1 {
				retryAfter = 1
			}
			m.logger.Debug("limit reached", zap.String("key", key), zap.Int64("hits", result.Hits))
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			writeError(w, http.StatusTooManyRequests, errorBody{
				Error:      "limit_exceeded",
				Message:    "Too many requests. Please try again later.",
				RetryAfter: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Hits returns the hits for key in the window ending now.
func (m *Meter) Hits(ctx context.Context, key string) (int64, error) {
	log, err := m.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	result := m.window.Count(log, m.clock())
	if m.metrics != nil {
		m.metrics.RecordQuery(key, result.Scanned)
	}
	return result.Hits, nil
}
