package server

import (
	"sync/atomic"
	"time"
)

// Metrics counts what the server has done since it started. All fields are
// updated atomically from connection goroutines.
type Metrics struct {
	connections atomic.Int64
	active      atomic.Int64

	byClass [6]atomic.Int64 // index is status/100; 0 holds anything out of range
	bytes   atomic.Int64
	latency atomic.Int64 // summed nanoseconds

	lookups        atomic.Int64
	lookupFailures atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// connOpened and connClosed bracket one connection.
func (m *Metrics) connOpened() {
	m.connections.Add(1)
	m.active.Add(1)
}

func (m *Metrics) connClosed() {
	m.active.Add(-1)
}

// RecordRequest records one answered request.
func (m *Metrics) RecordRequest(statusCode int, bytes int64, duration time.Duration) {
	class := statusCode / 100
	if class < 1 || class >= len(m.byClass) {
		class = 0
	}
	m.byClass[class].Add(1)
	m.bytes.Add(bytes)
	m.latency.Add(duration.Nanoseconds())
}

// RecordLookup records a backend lookup and whether it got an answer.
func (m *Metrics) RecordLookup(failed bool) {
	m.lookups.Add(1)
	if failed {
		m.lookupFailures.Add(1)
	}
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Connections       int64
	ActiveConnections int64
	RequestsTotal     int64
	Success           int64
	Errors4xx         int64
	Errors5xx         int64
	ErrorsTotal       int64
	BytesSent         int64
	AverageLatency    time.Duration
	Lookups           int64
	LookupFailures    int64
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	var total int64
	for i := range m.byClass {
		total += m.byClass[i].Load()
	}

	s := MetricsSnapshot{
		Connections:       m.connections.Load(),
		ActiveConnections: m.active.Load(),
		RequestsTotal:     total,
		Success:           m.byClass[2].Load(),
		Errors4xx:         m.byClass[4].Load(),
		Errors5xx:         m.byClass[5].Load(),
		BytesSent:         m.bytes.Load(),
		Lookups:           m.lookups.Load(),
		LookupFailures:    m.lookupFailures.Load(),
	}
	s.ErrorsTotal = s.Errors4xx + s.Errors5xx
	if total > 0 {
		s.AverageLatency = time.Duration(m.latency.Load() / total)
	}
	return s
}
