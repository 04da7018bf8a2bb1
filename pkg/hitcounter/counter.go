package hitcounter

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/hitcounter/core"
)

// SlidingWindowCounter records timestamped hits and answers how many
// occurred in the trailing window ending at a query timestamp.
//
// It is safe for concurrent use. Record and Reset take the lock
// exclusively; GetHits, Count and Snapshot share it.
type SlidingWindowCounter struct {
	window *core.SlidingWindow
	logger *zap.Logger

	mu  sync.RWMutex
	log *core.HitLog
}

// NewCounter creates a counter from the default policy of the resolved
// configuration.
//
// Example:
//
//	counter, err := hitcounter.NewCounter(
//	    hitcounter.WithWindowWidth(60),
//	    hitcounter.WithStrictOrdering(),
//	)
func NewCounter(opts ...Option) (*SlidingWindowCounter, error) {
	s, err := newSettings(opts)
	if err != nil {
		return nil, err
	}
	window, err := newWindow(s.config.Defaults)
	if err != nil {
		return nil, err
	}
	return newCounter(window, s.logger), nil
}

func newWindow(policy PolicyConfig) (*core.SlidingWindow, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	cfg, err := policy.WindowConfig()
	if err != nil {
		return nil, err
	}
	return core.NewSlidingWindow(cfg)
}

func newCounter(window *core.SlidingWindow, logger *zap.Logger) *SlidingWindowCounter {
	return &SlidingWindowCounter{
		window: window,
		logger: logger,
		log:    &core.HitLog{},
	}
}

// Record registers one hit at ts. It fails with ErrInvalidTimestamp for
// negative timestamps, and under strict ordering for timestamps lower than
// the last one recorded. A failed record leaves the counter unchanged.
func (c *SlidingWindowCounter) Record(ts int64) error {
	return c.RecordN(ts, 1)
}

// RecordN registers n hits at ts.
func (c *SlidingWindowCounter) RecordN(ts int64, n int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasUnsorted := c.log.Unsorted
	log, err := c.window.RecordN(c.log, ts, n)
	if err != nil {
		c.logger.Debug("hit rejected", zap.Int64("timestamp", ts), zap.Int64("count", n), zap.Error(err))
		return err
	}
	if log.Unsorted && !wasUnsorted {
		c.logger.Warn("out-of-order hit accepted, window queries may undercount",
			zap.Int64("timestamp", ts))
	}
	c.log = log
	return nil
}

// TryRecord registers one hit at ts unless the window ending at ts already
// holds limit hits. The check and the record happen under one lock. The
// returned result describes the window after the call; a limit of 0 always
// records.
func (c *SlidingWindowCounter) TryRecord(ts int64, limit int64) (core.CountResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit > 0 {
		if current := c.window.Count(c.log, ts); current.Hits >= limit {
			return current, false, nil
		}
	}

	log, err := c.window.Record(c.log, ts)
	if err != nil {
		c.logger.Debug("hit rejected", zap.Int64("timestamp", ts), zap.Error(err))
		return core.CountResult{}, false, err
	}
	c.log = log
	return c.window.Count(c.log, ts), true, nil
}

// GetHits returns the number of hits in the window (ts-width, ts].
func (c *SlidingWindowCounter) GetHits(ts int64) int64 {
	return c.Count(ts).Hits
}

// Count returns the full query result for ts, including how many log
// entries were read.
func (c *SlidingWindowCounter) Count(ts int64) core.CountResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.window.Count(c.log, ts)
}

// Snapshot returns a copy of the recorded hits, oldest first.
func (c *SlidingWindowCounter) Snapshot() []core.Hit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.Clone().Hits
}

// Len returns the number of distinct timestamps held.
func (c *SlidingWindowCounter) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.log.Len()
}

// Reset discards all recorded hits.
func (c *SlidingWindowCounter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = &core.HitLog{}
}

// WindowWidth returns the trailing window width.
func (c *SlidingWindowCounter) WindowWidth() int64 {
	return c.window.Width()
}

// Policy returns the ordering policy in effect.
func (c *SlidingWindowCounter) Policy() core.Policy {
	return c.window.Config().Policy
}
