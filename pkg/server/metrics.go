package server

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds process-wide counters. Counters are atomic; the rolling
// request window uses its own lock. Snapshots may be slightly stale, which
// is fine for a read-only ops endpoint.
type Metrics struct {
	startTime time.Time

	totalConnections  atomic.Int64
	activeConnections atomic.Int64
	totalSessions     atomic.Int64
	errorsTotal       atomic.Int64

	// audioMillis accumulates processed audio duration in milliseconds.
	audioMillis atomic.Int64

	mu       sync.Mutex
	requests []time.Time
}

// NewMetrics creates a metrics collector anchored at the current time.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// ConnectionOpened records an accepted connection and a request for the
// rolling per-minute window.
func (m *Metrics) ConnectionOpened() {
	m.totalConnections.Add(1)
	m.activeConnections.Add(1)
	m.totalSessions.Add(1)

	now := time.Now()
	m.mu.Lock()
	m.requests = append(m.requests, now)
	m.prune(now)
	m.mu.Unlock()
}

// ConnectionClosed records a connection teardown.
func (m *Metrics) ConnectionClosed() {
	m.activeConnections.Add(-1)
}

// AddAudioSeconds accumulates processed audio duration.
func (m *Metrics) AddAudioSeconds(seconds float64) {
	m.audioMillis.Add(int64(seconds * 1000))
}

// IncErrors bumps the error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Add(1)
}

// requestsPerMinute counts requests within the last minute.
func (m *Metrics) requestsPerMinute() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prune(now)
	return len(m.requests)
}

func (m *Metrics) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	i := 0
	for i < len(m.requests) && m.requests[i].Before(cutoff) {
		i++
	}
	m.requests = m.requests[i:]
}

// MetricsSnapshot is the JSON shape served by the metrics endpoint.
type MetricsSnapshot struct {
	Server struct {
		UptimeSeconds float64 `json:"uptime_seconds"`
		StartTime     string  `json:"start_time"`
	} `json:"server"`
	Connections struct {
		Total  int64 `json:"total"`
		Active int64 `json:"active"`
	} `json:"connections"`
	Sessions struct {
		Total int64 `json:"total"`
	} `json:"sessions"`
	Audio struct {
		TotalSecondsProcessed float64 `json:"total_seconds_processed"`
	} `json:"audio"`
	Requests struct {
		PerMinute   int   `json:"per_minute"`
		ErrorsTotal int64 `json:"errors_total"`
	} `json:"requests"`
}

// Snapshot captures current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var s MetricsSnapshot
	s.Server.UptimeSeconds = time.Since(m.startTime).Seconds()
	s.Server.StartTime = m.startTime.UTC().Format(time.RFC3339)
	s.Connections.Total = m.totalConnections.Load()
	s.Connections.Active = m.activeConnections.Load()
	s.Sessions.Total = m.totalSessions.Load()
	s.Audio.TotalSecondsProcessed = float64(m.audioMillis.Load()) / 1000.0
	s.Requests.PerMinute = m.requestsPerMinute()
	s.Requests.ErrorsTotal = m.errorsTotal.Load()
	return s
}
