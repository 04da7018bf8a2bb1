package hitcounter

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/hitcounter/core"
)

// Config holds the hit counting configuration.
// It supports a default window policy and per-route overrides.
type Config struct {
	// Defaults apply to every route without its own policy
	Defaults PolicyConfig `yaml:"defaults"`

	// Policies maps route paths to their window policy
	// Example: "/api/login" -> narrow window with a limit
	Policies map[string]PolicyConfig `yaml:"policies,omitempty"`

	// KeyExtractor specifies how clients are identified
	// Examples: "ip", "header:X-API-Key", "bearer"
	KeyExtractor string `yaml:"key_extractor,omitempty"`

	// CleanupAge is how long idle counters are kept
	// Format: "1h", "30m", "0" to disable
	CleanupAge string `yaml:"cleanup_age,omitempty"`
}

// PolicyConfig defines the window parameters for a route or the defaults.
type PolicyConfig struct {
	// Width of the trailing window, in the unit of the meter's clock
	Width int64 `yaml:"width"`

	// Retention bounds how much history each counter keeps (0 = unbounded)
	Retention int64 `yaml:"retention,omitempty"`

	// Ordering is "permissive" (default) or "strict"
	Ordering string `yaml:"ordering,omitempty"`

	// Lookup is "scan" (default) or "search"
	Lookup string `yaml:"lookup,omitempty"`

	// Limit rejects requests once the window already holds this many hits
	// 0 only counts
	Limit int64 `yaml:"limit,omitempty"`

	// Enabled allows switching counting off for specific routes
	Enabled bool `yaml:"enabled"`
}

// NewConfig creates a new Config with the default 300-unit window.
func NewConfig() *Config {
	return &Config{
		Defaults: PolicyConfig{
			Width:    core.DefaultWidth,
			Ordering: core.Permissive.String(),
			Lookup:   core.LookupScan.String(),
			Enabled:  true,
		},
		Policies:     make(map[string]PolicyConfig),
		KeyExtractor: "ip",
		CleanupAge:   "1h",
	}
}

// LoadConfigFromFile loads configuration from a YAML file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read config file: %v", ErrInvalidConfig, err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %v", ErrInvalidConfig, err)
	}

	if config.Defaults.Width == 0 {
		config.Defaults.Width = core.DefaultWidth
	}
	if config.KeyExtractor == "" {
		config.KeyExtractor = "ip"
	}
	if config.CleanupAge == "" {
		config.CleanupAge = "1h"
	}
	if config.Policies == nil {
		config.Policies = make(map[string]PolicyConfig)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the defaults, every route policy and the cleanup age,
// reporting all problems at once.
func (c *Config) Validate() error {
	var errs error

	if err := c.Defaults.Validate(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("defaults: %w", err))
	}
	for route, policy := range c.Policies {
		if err := policy.Validate(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("policy for route %s: %w", route, err))
		}
	}
	if _, err := c.CleanupDuration(); err != nil {
		errs = multierr.Append(errs, err)
	}

	if errs != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errs)
	}
	return nil
}

// Validate checks if a PolicyConfig is valid.
func (p *PolicyConfig) Validate() error {
	var errs error
	if p.Width <= 0 {
		errs = multierr.Append(errs, ErrInvalidWindow)
	}
	if p.Retention < 0 || (p.Retention > 0 && p.Retention < p.Width) {
		errs = multierr.Append(errs, ErrInvalidRetention)
	}
	if p.Limit < 0 {
		errs = multierr.Append(errs, ErrInvalidLimit)
	}
	if _, err := core.ParsePolicy(p.Ordering); err != nil {
		errs = multierr.Append(errs, err)
	}
	if _, err := core.ParseLookup(p.Lookup); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// WindowConfig converts the policy to the core window configuration.
func (p *PolicyConfig) WindowConfig() (core.Config, error) {
	policy, err := core.ParsePolicy(p.Ordering)
	if err != nil {
		return core.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	lookup, err := core.ParseLookup(p.Lookup)
	if err != nil {
		return core.Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return core.Config{
		Width:     p.Width,
		Retention: p.Retention,
		Policy:    policy,
		Lookup:    lookup,
	}, nil
}

// GetPolicy returns the policy for a route, or the defaults.
func (c *Config) GetPolicy(route string) PolicyConfig {
	if policy, exists := c.Policies[route]; exists {
		return policy
	}
	return c.Defaults
}

// SetPolicy sets the policy for a specific route.
func (c *Config) SetPolicy(route string, policy PolicyConfig) error {
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Policies == nil {
		c.Policies = make(map[string]PolicyConfig)
	}
	c.Policies[route] = policy
	return nil
}

// CleanupDuration parses CleanupAge. An empty value or "0" disables cleanup.
func (c *Config) CleanupDuration() (time.Duration, error) {
	if c.CleanupAge == "" || c.CleanupAge == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CleanupAge)
	if err != nil {
		return 0, fmt.Errorf("cleanup_age %q: %w", c.CleanupAge, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("cleanup_age %q cannot be negative", c.CleanupAge)
	}
	return d, nil
}

func (c *Config) clone() *Config {
	out := *c
	out.Policies = make(map[string]PolicyConfig, len(c.Policies))
	for route, policy := range c.Policies {
		out.Policies[route] = policy
	}
	return &out
}
