package core

import (
	"fmt"
	"math"
	"sort"
)

// SlidingWindow implements trailing-window hit counting over a HitLog.
// It holds no per-counter state; callers own the log and serialize access.
type SlidingWindow struct {
	config Config
}

// NewSlidingWindow creates a sliding window with the given configuration.
// A zero Width is replaced by DefaultWidth.
func NewSlidingWindow(config Config) (*SlidingWindow, error) {
	if config.Width == 0 {
		config.Width = DefaultWidth
	}
	if config.Width < 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWidth, config.Width)
	}
	if config.Retention < 0 || (config.Retention > 0 && config.Retention < config.Width) {
		return nil, fmt.Errorf("%w: retention %d, width %d", ErrInvalidRetention, config.Retention, config.Width)
	}
	return &SlidingWindow{config: config}, nil
}

// Config returns the window configuration.
func (w *SlidingWindow) Config() Config {
	return w.config
}

// Width returns the trailing window width.
func (w *SlidingWindow) Width() int64 {
	return w.config.Width
}

// Record adds one event at ts to the log and returns the updated log.
// A nil log is treated as empty. On error the log is returned unmodified.
func (w *SlidingWindow) Record(log *HitLog, ts int64) (*HitLog, error) {
	return w.RecordN(log, ts, 1)
}

// RecordN adds n events at ts to the log.
//
// Events at the timestamp of the newest hit are merged into it; any other
// timestamp appends a new hit. Negative timestamps are always rejected.
// Under the Strict policy a timestamp lower than the newest hit is rejected;
// under Permissive it is appended and the log is flagged unsorted.
func (w *SlidingWindow) RecordN(log *HitLog, ts int64, n int64) (*HitLog, error) {
	if log == nil {
		log = &HitLog{}
	}
	if n < 1 {
		return log, fmt.Errorf("%w: got %d", ErrInvalidCount, n)
	}
	if ts < 0 {
		return log, fmt.Errorf("%w: %d is negative", ErrInvalidTimestamp, ts)
	}

	last, ok := log.Last()
	if ok && ts < last.Timestamp {
		if w.config.Policy == Strict {
			return log, fmt.Errorf("%w: %d precedes last recorded %d", ErrInvalidTimestamp, ts, last.Timestamp)
		}
		log.Unsorted = true
	}

	if ok && ts == last.Timestamp {
		log.Hits[len(log.Hits)-1].Count += n
	} else {
		log.Hits = append(log.Hits, Hit{Timestamp: ts, Count: n})
	}

	w.prune(log)
	return log, nil
}

// Count sums the hits inside the window (q-Width, q].
// A hit at t is inside when 0 <= q-t < Width. Count never fails; an empty or
// nil log yields zero.
func (w *SlidingWindow) Count(log *HitLog, q int64) CountResult {
	result := CountResult{From: w.lowerBound(q), To: q}
	if log.Len() == 0 {
		return result
	}
	if w.config.Lookup == LookupSearch && !log.Unsorted {
		w.search(log, q, &result)
	} else {
		w.scan(log, q, &result)
	}
	return result
}

// expired reports whether a hit at t is at or beyond the window's far edge
// for query q. Callers must have checked t <= q.
func (w *SlidingWindow) expired(t, q int64) bool {
	// t is never negative, so q-t cannot overflow once t <= q
	return q-t >= w.config.Width
}

// scan walks the log from the newest hit backwards. Hits newer than q are
// skipped; the first expired hit ends the walk.
func (w *SlidingWindow) scan(log *HitLog, q int64, result *CountResult) {
	for i := len(log.Hits) - 1; i >= 0; i-- {
		h := log.Hits[i]
		result.Scanned++
		if h.Timestamp > q {
			continue
		}
		if w.expired(h.Timestamp, q) {
			break
		}
		if result.Hits == 0 || h.Timestamp < result.Oldest {
			result.Oldest = h.Timestamp
		}
		result.Hits += h.Count
	}
}

// search locates the window bounds with binary search. The log must be sorted.
func (w *SlidingWindow) search(log *HitLog, q int64, result *CountResult) {
	hits := log.Hits
	hi := sort.Search(len(hits), func(i int) bool {
		return hits[i].Timestamp > q
	})
	lo := sort.Search(hi, func(i int) bool {
		return !w.expired(hits[i].Timestamp, q)
	})
	for _, h := range hits[lo:hi] {
		result.Hits += h.Count
	}
	if hi > lo {
		result.Oldest = hits[lo].Timestamp
	}
	result.Scanned = hi - lo
}

// prune drops hits that fell out of the retention horizon of the newest hit.
func (w *SlidingWindow) prune(log *HitLog) {
	if w.config.Retention == 0 || len(log.Hits) == 0 {
		return
	}

	if !log.Unsorted {
		newest := log.Hits[len(log.Hits)-1].Timestamp
		idx := sort.Search(len(log.Hits), func(i int) bool {
			return newest-log.Hits[i].Timestamp < w.config.Retention
		})
		if idx > 0 {
			log.Hits = log.Hits[idx:]
		}
		return
	}

	newest := log.Hits[0].Timestamp
	for _, h := range log.Hits[1:] {
		if h.Timestamp > newest {
			newest = h.Timestamp
		}
	}
	kept := log.Hits[:0]
	for _, h := range log.Hits {
		if newest-h.Timestamp < w.config.Retention {
			kept = append(kept, h)
		}
	}
	log.Hits = kept
}

func (w *SlidingWindow) lowerBound(q int64) int64 {
	if q < math.MinInt64+w.config.Width {
		return math.MinInt64
	}
	return q - w.config.Width
}
