package hitcounter

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Meter counts hits per client key with route-specific window policies.
type Meter interface {
	// Record registers one hit for key at ts under the default policy.
	Record(key string, ts int64) (*Reading, error)

	// GetHits returns the hits for key in the default window ending at ts.
	// Unknown keys read as zero.
	GetHits(key string, ts int64) (*Reading, error)

	// RecordRequest extracts the key and route from the request, checks the
	// route's limit and records the hit when it is allowed.
	RecordRequest(r *http.Request) (*Reading, error)

	// Middleware returns an HTTP middleware that meters every request and
	// answers 429 once a route limit is reached.
	Middleware(next http.Handler) http.Handler

	// StartBackgroundCleanup starts periodic eviction of idle counters.
	// Returns a function to stop it.
	StartBackgroundCleanup() func()
}

// Reading contains the state of one key's window after a meter operation.
type Reading struct {
	// Key is the counter key that was used
	Key string

	// Route is the route path whose policy applied
	Route string

	// Timestamp is the query (or record) timestamp
	Timestamp int64

	// Hits in the window ending at Timestamp
	Hits int64

	// Window is the trailing window width
	Window int64

	// Limit is the route limit, 0 when the route only counts
	Limit int64

	// Allowed is false when the request was rejected by the limit
	Allowed bool

	// Remaining is how many more hits fit under the limit
	Remaining int64

	// RetryAfter is how many clock units until the oldest counted hit leaves
	// the window; 0 when Allowed
	RetryAfter int64
}

// meter is the concrete implementation of Meter.
type meter struct {
	config          *Config
	defaults        *Registry
	routes          map[string]*Registry
	keyExtractor    KeyExtractor
	routeExtractor  RouteExtractorFunc
	clock           Clock
	logger          *zap.Logger
	cleanupInterval time.Duration
}

// NewMeter creates a Meter with the given options. Every route policy gets
// its own registry so hits on one route never count against another.
//
// Example:
//
//	m, err := hitcounter.NewMeter(
//	    hitcounter.WithWindowWidth(60),
//	    hitcounter.WithLimit(100),
//	    hitcounter.WithKeyExtractor(hitcounter.ExtractIPWithProxy()),
//	)
func NewMeter(opts ...Option) (Meter, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}

	if s.keyExtractor == nil {
		extractor, err := ParseKeyExtractorConfig(s.config.KeyExtractor)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key extractor config: %w", err)
		}
		s.keyExtractor = extractor
	}

	cleanupAge, err := s.resolveCleanupAge()
	if err != nil {
		return nil, err
	}

	window, err := newWindow(s.config.Defaults)
	if err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}

	m := &meter{
		config:          s.config,
		defaults:        newRegistry(window, cleanupAge, s.logger),
		routes:          make(map[string]*Registry, len(s.config.Policies)),
		keyExtractor:    s.keyExtractor,
		routeExtractor:  s.routeExtractor,
		clock:           s.clock,
		logger:          s.logger,
		cleanupInterval: s.cleanupInterval,
	}
	for route, policy := range s.config.Policies {
		window, err := newWindow(policy)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", route, err)
		}
		m.routes[route] = newRegistry(window, cleanupAge, s.logger.With(zap.String("route", route)))
	}
	return m, nil
}

func (m *meter) registryFor(route string) *Registry {
	if registry, ok := m.routes[route]; ok {
		return registry
	}
	return m.defaults
}

// Record registers one hit for key at ts.
func (m *meter) Record(key string, ts int64) (*Reading, error) {
	counter, err := m.defaults.Counter(key)
	if err != nil {
		return nil, err
	}
	if err := counter.Record(ts); err != nil {
		return nil, fmt.Errorf("record %q: %w", key, err)
	}
	return m.read(key, "", m.config.Defaults.Limit, counter, ts), nil
}

// GetHits returns the hits for key in the window ending at ts.
func (m *meter) GetHits(key string, ts int64) (*Reading, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	counter, ok := m.defaults.Lookup(key)
	if !ok {
		return &Reading{
			Key:       key,
			Timestamp: ts,
			Window:    m.defaults.Window().Width(),
			Limit:     m.config.Defaults.Limit,
			Allowed:   true,
			Remaining: m.config.Defaults.Limit,
		}, nil
	}
	return m.read(key, "", m.config.Defaults.Limit, counter, ts), nil
}

// RecordRequest meters an HTTP request under its route policy.
func (m *meter) RecordRequest(r *http.Request) (*Reading, error) {
	key, err := m.keyExtractor(r)
	if err != nil {
		return nil, fmt.Errorf("key extraction failed: %w", err)
	}

	route := m.routeExtractor(r.URL.Path)
	policy := m.config.GetPolicy(route)
	ts := m.clock()

	if !policy.Enabled {
		return &Reading{
			Key:       key,
			Route:     route,
			Timestamp: ts,
			Window:    policy.Width,
			Limit:     policy.Limit,
			Allowed:   true,
			Remaining: policy.Limit,
		}, nil
	}

	counter, err := m.registryFor(route).Counter(key)
	if err != nil {
		return nil, err
	}

	result, recorded, err := counter.TryRecord(ts, policy.Limit)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", key, err)
	}

	reading := m.reading(key, route, policy.Limit, counter.WindowWidth(), ts, result.Hits)
	if !recorded {
		reading.Allowed = false
		reading.RetryAfter = result.ExpiresIn(counter.WindowWidth())
		m.logger.Debug("limit reached",
			zap.String("key", key),
			zap.String("route", route),
			zap.Int64("hits", result.Hits),
			zap.Int64("limit", policy.Limit))
	}
	return reading, nil
}

func (m *meter) read(key, route string, limit int64, counter *SlidingWindowCounter, ts int64) *Reading {
	return m.reading(key, route, limit, counter.WindowWidth(), ts, counter.GetHits(ts))
}

func (m *meter) reading(key, route string, limit, window, ts, hits int64) *Reading {
	reading := &Reading{
		Key:       key,
		Route:     route,
		Timestamp: ts,
		Hits:      hits,
		Window:    window,
		Limit:     limit,
		Allowed:   true,
	}
	if limit > 0 {
		reading.Remaining = limit - hits
		if reading.Remaining < 0 {
			reading.Remaining = 0
		}
	}
	return reading
}

// Middleware returns an HTTP middleware that meters requests.
//
// Requests to disabled routes pass through without headers. So do requests
// whose timestamp strict ordering rejects; they are logged and not counted.
//
// Headers, set on every metered response:
//   - X-Hits-Window: trailing window width
//   - X-Hits-Count: hits in the window, this request included when allowed
//   - X-RateLimit-Limit / X-RateLimit-Remaining: only for routes with a limit
//   - Retry-After: clock units until capacity frees up (when rejected)
func (m *meter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.config.GetPolicy(m.routeExtractor(r.URL.Path)).Enabled {
			next.ServeHTTP(w, r)
			return
		}

		reading, err := m.RecordRequest(r)
		if errors.Is(err, ErrKeyExtractionFailed) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		if errors.Is(err, ErrInvalidTimestamp) {
			// clock stepped back under strict ordering, let the request through uncounted
			m.logger.Warn("hit not counted", zap.String("path", r.URL.Path), zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			m.logger.Error("metering failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-Hits-Window", strconv.FormatInt(reading.Window, 10))
		w.Header().Set("X-Hits-Count", strconv.FormatInt(reading.Hits, 10))
		if reading.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(reading.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(reading.Remaining, 10))
		}

		if !reading.Allowed {
			retryAfter := reading.RetryAfter
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// StartBackgroundCleanup starts cleanup on every route registry.
func (m *meter) StartBackgroundCleanup() func() {
	stops := []func(){m.defaults.StartBackgroundCleanup(m.cleanupInterval)}
	for _, registry := range m.routes {
		stops = append(stops, registry.StartBackgroundCleanup(m.cleanupInterval))
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}
