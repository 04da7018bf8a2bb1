// Package hitcounter is the entry point for metering HTTP traffic against a
// shared store. The embeddable in-process counter lives in pkg/hitcounter.
package hitcounter

import (
	"github.com/yourusername/hitcounter/middleware"
)

// Re-export main types for convenience
type (
	Config = middleware.Config
	Meter  = middleware.Meter
)

// NewMeter creates a store-backed metering middleware
var NewMeter = middleware.New
