// Package metrics collects statistics about recorded hits and window
// queries, both as a JSON snapshot and as Prometheus collectors.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const topKeys = 10

// Metrics tracks hit counter statistics
type Metrics struct {
	totalRecords    atomic.Int64
	acceptedRecords atomic.Int64
	rejectedRecords atomic.Int64
	totalQueries    atomic.Int64

	// Per-key stats
	mu        sync.RWMutex
	keyStats  map[string]*KeyStats
	startTime time.Time

	registry *prometheus.Registry
	records  *prometheus.CounterVec
	queries  prometheus.Counter
	scanned  prometheus.Histogram
}

// KeyStats tracks statistics for a specific counter key
type KeyStats struct {
	Key             string    `json:"key"`
	Records         int64     `json:"records"`
	RejectedRecords int64     `json:"rejected_records"`
	Queries         int64     `json:"queries"`
	FirstSeenAt     time.Time `json:"first_seen_at"`
	LastSeenAt      time.Time `json:"last_seen_at"`
}

// NewMetrics creates a metrics tracker with its own Prometheus registry,
// which also carries the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		keyStats:  make(map[string]*KeyStats),
		startTime: time.Now(),
		registry:  prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hitcounter_records_total",
			Help: "Record calls by result (accepted or rejected).",
		}, []string{"result"}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hitcounter_queries_total",
			Help: "Window queries answered.",
		}),
		scanned: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hitcounter_query_scanned_entries",
			Help:    "Log entries read per window query.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	m.registry.MustRegister(
		m.records,
		m.queries,
		m.scanned,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the Prometheus registry holding this tracker's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) stats(key string, now time.Time) *KeyStats {
	stats, exists := m.keyStats[key]
	if !exists {
		stats = &KeyStats{Key: key, FirstSeenAt: now}
		m.keyStats[key] = stats
	}
	stats.LastSeenAt = now
	return stats
}

// RecordHit counts a record attempt for key.
func (m *Metrics) RecordHit(key string, accepted bool) {
	m.totalRecords.Add(1)
	result := "accepted"
	if accepted {
		m.acceptedRecords.Add(1)
	} else {
		m.rejectedRecords.Add(1)
		result = "rejected"
	}
	m.records.WithLabelValues(result).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats(key, time.Now())
	if accepted {
		stats.Records++
	} else {
		stats.RejectedRecords++
	}
}

// RecordQuery counts a window query for key that read scanned log entries.
func (m *Metrics) RecordQuery(key string, scanned int) {
	m.totalQueries.Add(1)
	m.queries.Inc()
	m.scanned.Observe(float64(scanned))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats(key, time.Now()).Queries++
}

// GetSnapshot returns a snapshot of current metrics
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	top := make([]*KeyStats, 0, len(m.keyStats))
	for _, stats := range m.keyStats {
		copied := *stats
		top = append(top, &copied)
	}
	uniqueKeys := int64(len(m.keyStats))
	m.mu.RUnlock()

	sort.Slice(top, func(i, j int) bool {
		ai, aj := top[i].Records+top[i].Queries, top[j].Records+top[j].Queries
		if ai != aj {
			return ai > aj
		}
		return top[i].Key < top[j].Key
	})
	if len(top) > topKeys {
		top = top[:topKeys]
	}

	return &Snapshot{
		TotalRecords:    m.totalRecords.Load(),
		AcceptedRecords: m.acceptedRecords.Load(),
		RejectedRecords: m.rejectedRecords.Load(),
		TotalQueries:    m.totalQueries.Load(),
		UniqueKeys:      uniqueKeys,
		TopKeys:         top,
		UptimeSeconds:   int64(time.Since(m.startTime).Seconds()),
		StartTime:       m.startTime,
	}
}

// Snapshot represents a point-in-time view of metrics
type Snapshot struct {
	TotalRecords    int64       `json:"total_records"`
	AcceptedRecords int64       `json:"accepted_records"`
	RejectedRecords int64       `json:"rejected_records"`
	TotalQueries    int64       `json:"total_queries"`
	UniqueKeys      int64       `json:"unique_keys"`
	TopKeys         []*KeyStats `json:"top_keys"`
	UptimeSeconds   int64       `json:"uptime_seconds"`
	StartTime       time.Time   `json:"start_time"`
}
