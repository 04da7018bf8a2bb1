// Package api exposes hit counting over a JSON HTTP interface.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/yourusername/hitcounter/core"
	"github.com/yourusername/hitcounter/pkg/hitcounter"
	"github.com/yourusername/hitcounter/store"
)

// Handler handles record and query requests
type Handler struct {
	window  *core.SlidingWindow
	store   store.Store
	metrics MetricsRecorder
	logger  *zap.Logger
	now     hitcounter.Clock
}

// MetricsRecorder defines the interface for recording metrics
type MetricsRecorder interface {
	RecordHit(key string, accepted bool)
	RecordQuery(key string, scanned int)
}

// NewHandler creates a new API handler. metrics and logger may be nil.
func NewHandler(store store.Store, window *core.SlidingWindow, metrics MetricsRecorder, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		window:  window,
		store:   store,
		metrics: metrics,
		logger:  logger,
		now:     hitcounter.UnixClock,
	}
}

// RecordRequest represents the body of POST /record
type RecordRequest struct {
	Key       string `json:"key"`                 // Required: counter key (user ID, API key, IP)
	Timestamp *int64 `json:"timestamp,omitempty"` // Optional: defaults to now, in unix seconds
}

// RecordResponse represents the result of POST /record
type RecordResponse struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	Hits      int64  `json:"hits"` // Hits in the window ending at Timestamp, this one included
}

// HitsResponse represents the result of GET /hits
type HitsResponse struct {
	Key       string `json:"key"`
	Timestamp int64  `json:"timestamp"`
	Window    int64  `json:"window"`
	Hits      int64  `json:"hits"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Record handles POST /record requests
func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST requests are allowed")
		return
	}

	var req RecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	if req.Key == "" {
		h.sendError(w, http.StatusBadRequest, "missing_key", "key is required")
		return
	}

	ts := h.now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	log, err := h.store.Update(r.Context(), req.Key, func(log *core.HitLog) (*core.HitLog, error) {
		return h.window.Record(log, ts)
	})
	rejected := errors.Is(err, core.ErrInvalidTimestamp)
	// store failures are not record outcomes
	if h.metrics != nil && (err == nil || rejected) {
		h.metrics.RecordHit(req.Key, err == nil)
	}
	if rejected {
		h.logger.Debug("hit rejected", zap.String("key", req.Key), zap.Int64("timestamp", ts), zap.Error(err))
		h.sendError(w, http.StatusConflict, "invalid_timestamp", err.Error())
		return
	}
	if err != nil {
		h.logger.Error("record failed", zap.String("key", req.Key), zap.Error(err))
		h.sendError(w, http.StatusServiceUnavailable, "store_unavailable", "Hit store is unavailable")
		return
	}

	h.sendJSON(w, http.StatusOK, RecordResponse{
		Key:       req.Key,
		Timestamp: ts,
		Hits:      h.window.Count(log, ts).Hits,
	})
}

// GetHits handles GET /hits?key=<key>&timestamp=<ts> requests
func (h *Handler) GetHits(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET requests are allowed")
		return
	}

	key := r.URL.Query().Get("key")
	if key == "" {
		h.sendError(w, http.StatusBadRequest, "missing_key", "key is required")
		return
	}
	ts := h.now()
	if raw := r.URL.Query().Get("timestamp"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			h.sendError(w, http.StatusBadRequest, "invalid_timestamp", "timestamp must be an integer")
			return
		}
		ts = parsed
	}

	log, err := h.store.Get(r.Context(), key)
	if err != nil {
		h.logger.Error("query failed", zap.String("key", key), zap.Error(err))
		h.sendError(w, http.StatusServiceUnavailable, "store_unavailable", "Hit store is unavailable")
		return
	}
	result := h.window.Count(log, ts)
	if h.metrics != nil {
		h.metrics.RecordQuery(key, result.Scanned)
	}

	h.sendJSON(w, http.StatusOK, HitsResponse{
		Key:       key,
		Timestamp: ts,
		Window:    h.window.Width(),
		Hits:      result.Hits,
	})
}

// Reset handles DELETE /counters?key=<key> requests
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		h.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only DELETE requests are allowed")
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		h.sendError(w, http.StatusBadRequest, "missing_key", "key is required")
		return
	}
	if err := h.store.Delete(r.Context(), key); err != nil {
		h.logger.Error("reset failed", zap.String("key", key), zap.Error(err))
		h.sendError(w, http.StatusServiceUnavailable, "store_unavailable", "Hit store is unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}

func (h *Handler) sendError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	h.sendJSON(w, statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}
