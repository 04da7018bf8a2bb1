package hitcounter

import (
	"errors"

	"github.com/yourusername/hitcounter/core"
)

var (
	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidTimestamp is returned when a recorded timestamp is negative,
	// or lower than the last recorded one under strict ordering
	ErrInvalidTimestamp = core.ErrInvalidTimestamp

	// ErrInvalidWindow is returned when the window width is not positive
	ErrInvalidWindow = core.ErrInvalidWidth

	// ErrInvalidRetention is returned when retention is negative or shorter than the window
	ErrInvalidRetention = core.ErrInvalidRetention

	// ErrInvalidLimit is returned when a route limit is negative
	ErrInvalidLimit = errors.New("limit cannot be negative")

	// ErrInvalidKey is returned when the counter key is empty
	ErrInvalidKey = errors.New("counter key cannot be empty")

	// ErrKeyExtractionFailed is returned when key extraction from request fails
	ErrKeyExtractionFailed = errors.New("failed to extract key from request")
)
