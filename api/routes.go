package api

import (
	"net/http"

	"github.com/yourusername/hitcounter/metrics"
)

// Routes registers the service endpoints on a new mux. tracker may be nil,
// in which case the metrics endpoints are left out.
func Routes(h *Handler, tracker *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/record", h.Record)
	mux.HandleFunc("/hits", h.GetHits)
	mux.HandleFunc("/counters", h.Reset)
	if tracker != nil {
		mux.Handle("/metrics", NewMetricsHandler(tracker))
		mux.Handle("/metrics/prometheus", PrometheusHandler(tracker.Registry()))
	}
	return mux
}
