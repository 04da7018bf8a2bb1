package core

import (
	"fmt"
	"strings"
)

// DefaultWidth is the trailing window width used when none is configured.
const DefaultWidth int64 = 300

// Policy controls how a window treats timestamps that arrive out of order
type Policy int

const (
	// Permissive accepts any non-negative timestamp. A timestamp lower than
	// the last recorded one marks the log unsorted, after which reverse-scan
	// results are best effort.
	Permissive Policy = iota

	// Strict rejects timestamps lower than the last recorded one
	Strict
)

func (p Policy) String() string {
	switch p {
	case Permissive:
		return "permissive"
	case Strict:
		return "strict"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a config value ("strict", "permissive") to a Policy.
// An empty string yields Permissive.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "permissive":
		return Permissive, nil
	case "strict":
		return Strict, nil
	default:
		return Permissive, fmt.Errorf("unknown ordering policy %q", s)
	}
}

// Lookup selects how Count finds the window inside the log
type Lookup int

const (
	// LookupScan walks the log backwards from the newest hit and stops at
	// the first hit older than the window.
	LookupScan Lookup = iota

	// LookupSearch binary-searches both window bounds. Unsorted logs fall
	// back to LookupScan.
	LookupSearch
)

func (l Lookup) String() string {
	switch l {
	case LookupScan:
		return "scan"
	case LookupSearch:
		return "search"
	default:
		return fmt.Sprintf("lookup(%d)", int(l))
	}
}

// ParseLookup converts a config value ("scan", "search") to a Lookup.
// An empty string yields LookupScan.
func ParseLookup(s string) (Lookup, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "scan":
		return LookupScan, nil
	case "search":
		return LookupSearch, nil
	default:
		return LookupScan, fmt.Errorf("unknown lookup mode %q", s)
	}
}

// Config defines the window policy
type Config struct {
	Width     int64  // Trailing window width, same unit as timestamps
	Retention int64  // Hits this far behind the newest one are pruned (0 keeps everything)
	Policy    Policy // Out-of-order handling
	Lookup    Lookup // Query strategy
}

// Hit is a batch of one or more events sharing a single timestamp
type Hit struct {
	Timestamp int64 `json:"timestamp"`
	Count     int64 `json:"count"`
}

// HitLog is the ordered sequence of hits owned by one counter
type HitLog struct {
	Hits []Hit `json:"hits"`

	// Unsorted is set once a permissive window accepted a timestamp lower
	// than its predecessor. It is never cleared.
	Unsorted bool `json:"unsorted,omitempty"`
}

// Len returns the number of distinct hits in the log.
func (l *HitLog) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Hits)
}

// Last returns the most recently recorded hit.
func (l *HitLog) Last() (Hit, bool) {
	if l.Len() == 0 {
		return Hit{}, false
	}
	return l.Hits[len(l.Hits)-1], true
}

// Total returns the sum of all counts in the log.
func (l *HitLog) Total() int64 {
	var total int64
	if l == nil {
		return total
	}
	for _, h := range l.Hits {
		total += h.Count
	}
	return total
}

// Clone returns a deep copy of the log. Clone of nil is an empty log.
func (l *HitLog) Clone() *HitLog {
	if l == nil {
		return &HitLog{}
	}
	hits := make([]Hit, len(l.Hits))
	copy(hits, l.Hits)
	return &HitLog{Hits: hits, Unsorted: l.Unsorted}
}

// CountResult contains the result of a window query
type CountResult struct {
	Hits    int64 // Sum of counts inside the window
	Scanned int   // Log entries read to produce Hits
	Oldest  int64 // Oldest timestamp counted, meaningful only when Hits > 0
	From    int64 // Exclusive lower bound of the window
	To      int64 // Inclusive upper bound of the window (the query timestamp)
}

// ExpiresIn returns how far past the query timestamp the oldest counted hit
// leaves the window. Zero when nothing was counted.
func (r CountResult) ExpiresIn(width int64) int64 {
	if r.Hits == 0 {
		return 0
	}
	return r.Oldest + width - r.To
}
