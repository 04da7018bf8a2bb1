package hitcounter

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hitcounter/core"
)

// Option is a functional option for configuring counters, registries and meters.
type Option func(*settings) error

// settings collects option values before a component is built.
type settings struct {
	config          *Config
	logger          *zap.Logger
	keyExtractor    KeyExtractor
	routeExtractor  RouteExtractorFunc
	clock           Clock
	cleanupAge      *time.Duration
	cleanupInterval time.Duration
}

func newSettings(opts []Option) (*settings, error) {
	s := &settings{
		config:          NewConfig(),
		logger:          zap.NewNop(),
		routeExtractor:  func(path string) string { return path },
		clock:           UnixClock,
		cleanupInterval: 10 * time.Minute,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return s, nil
}

// Clock supplies the timestamps a Meter records for HTTP requests.
type Clock func() int64

// UnixClock returns the current unix time in seconds.
func UnixClock() int64 {
	return time.Now().Unix()
}

// WithConfig sets the full configuration. Options applied afterwards
// adjust a copy, never the caller's value.
func WithConfig(config *Config) Option {
	return func(s *settings) error {
		if config == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		s.config = config.clone()
		return nil
	}
}

// WithConfigFile loads configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(s *settings) error {
		config, err := LoadConfigFromFile(path)
		if err != nil {
			return err
		}
		s.config = config
		return nil
	}
}

// WithWindowWidth sets the default trailing window width.
func WithWindowWidth(width int64) Option {
	return func(s *settings) error {
		if width <= 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidWindow, width)
		}
		s.config.Defaults.Width = width
		return nil
	}
}

// WithRetention bounds the history kept per counter. Hits at least
// retention behind the newest one are dropped on each record.
func WithRetention(retention int64) Option {
	return func(s *settings) error {
		if retention < 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidRetention, retention)
		}
		s.config.Defaults.Retention = retention
		return nil
	}
}

// WithStrictOrdering rejects timestamps lower than the last recorded one
// with ErrInvalidTimestamp.
func WithStrictOrdering() Option {
	return func(s *settings) error {
		s.config.Defaults.Ordering = core.Strict.String()
		return nil
	}
}

// WithPermissiveOrdering accepts out-of-order timestamps. Queries issued
// after such a record may undercount.
func WithPermissiveOrdering() Option {
	return func(s *settings) error {
		s.config.Defaults.Ordering = core.Permissive.String()
		return nil
	}
}

// WithLookup selects the query strategy.
func WithLookup(lookup core.Lookup) Option {
	return func(s *settings) error {
		if lookup != core.LookupScan && lookup != core.LookupSearch {
			return fmt.Errorf("%w: unknown lookup %v", ErrInvalidConfig, lookup)
		}
		s.config.Defaults.Lookup = lookup.String()
		return nil
	}
}

// WithLimit sets the default per-key limit enforced by Meter.Middleware.
func WithLimit(limit int64) Option {
	return func(s *settings) error {
		if limit < 0 {
			return fmt.Errorf("%w: got %d", ErrInvalidLimit, limit)
		}
		s.config.Defaults.Limit = limit
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) error {
		if logger == nil {
			return fmt.Errorf("%w: logger cannot be nil", ErrInvalidConfig)
		}
		s.logger = logger
		return nil
	}
}

// WithKeyExtractor sets a custom key extractor function.
func WithKeyExtractor(extractor KeyExtractor) Option {
	return func(s *settings) error {
		if extractor == nil {
			return fmt.Errorf("%w: key extractor cannot be nil", ErrInvalidConfig)
		}
		s.keyExtractor = extractor
		return nil
	}
}

// RouteExtractorFunc maps a request path to the route used for policy lookup.
type RouteExtractorFunc func(path string) string

// WithRouteExtractor sets a function to extract the route from a request path.
// By default the path is used as is.
func WithRouteExtractor(fn RouteExtractorFunc) Option {
	return func(s *settings) error {
		if fn == nil {
			return fmt.Errorf("%w: route extractor cannot be nil", ErrInvalidConfig)
		}
		s.routeExtractor = fn
		return nil
	}
}

// WithClock sets the timestamp source used for HTTP requests.
func WithClock(clock Clock) Option {
	return func(s *settings) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		s.clock = clock
		return nil
	}
}

// WithCleanupAge sets how long idle counters are kept. Overrides the
// configured cleanup_age; 0 disables cleanup.
func WithCleanupAge(age time.Duration) Option {
	return func(s *settings) error {
		if age < 0 {
			return fmt.Errorf("%w: cleanup age cannot be negative", ErrInvalidConfig)
		}
		s.cleanupAge = &age
		return nil
	}
}

// WithCleanupInterval sets how often the background cleanup runs.
// Default: 10 minutes
func WithCleanupInterval(interval time.Duration) Option {
	return func(s *settings) error {
		if interval < 0 {
			return fmt.Errorf("%w: cleanup interval cannot be negative", ErrInvalidConfig)
		}
		s.cleanupInterval = interval
		return nil
	}
}

func (s *settings) resolveCleanupAge() (time.Duration, error) {
	if s.cleanupAge != nil {
		return *s.cleanupAge, nil
	}
	age, err := s.config.CleanupDuration()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return age, nil
}
