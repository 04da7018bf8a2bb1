// Package hitcounter counts timestamped hits over a trailing window.
//
// A SlidingWindowCounter records hits and answers how many occurred in the
// window (ts-width, ts] for a query timestamp ts. The default width is 300,
// which reads as "the last five minutes" when timestamps are unix seconds.
//
// # Quick Start
//
//	counter, err := hitcounter.NewCounter()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	counter.Record(1)
//	counter.Record(2)
//	counter.Record(300)
//	counter.GetHits(300) // 3
//	counter.GetHits(301) // 2, the hit at 1 has left the window
//
// # Ordering
//
// Timestamps are expected in non-decreasing order. By default an
// out-of-order timestamp is still accepted and later queries may undercount.
// WithStrictOrdering rejects it with ErrInvalidTimestamp instead. Negative
// timestamps are always rejected.
//
// # Per-key counting
//
// A Registry holds one counter per key, and a Meter puts a Registry behind
// each route policy so it can meter HTTP traffic:
//
//	m, _ := hitcounter.NewMeter(
//	    hitcounter.WithWindowWidth(60),
//	    hitcounter.WithLimit(100),
//	    hitcounter.WithKeyExtractor(hitcounter.ExtractIPWithProxy()),
//	)
//	http.Handle("/api/", m.Middleware(yourHandler))
//
// The middleware sets X-Hits-Window and X-Hits-Count on every response, and
// X-RateLimit-Limit, X-RateLimit-Remaining and Retry-After when the route
// has a limit.
//
// # Configuration
//
//	defaults:
//	  width: 300
//	  ordering: permissive
//	  lookup: scan
//	  enabled: true
//
//	policies:
//	  "/api/login":
//	    width: 60
//	    limit: 5
//	    ordering: strict
//	    enabled: true
//
//	key_extractor: "header:X-API-Key|ip"
//	cleanup_age: "1h"
package hitcounter
