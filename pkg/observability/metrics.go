// Package observability provides lightweight counters for a switchio node's
// data and control planes.
package observability

import (
	"sync"
	"sync/atomic"
	"time"
)

// latencyWindow is the number of retransmission round trips kept for the
// percentile summary.
const latencyWindow = 1024

// Metrics holds atomic counters for the receive worker, the sender and the
// control plane. A nil *Metrics is valid and discards everything.
type Metrics struct {
	datagrams     atomic.Int64
	malformed     atomic.Int64
	stale         atomic.Int64
	duplicate     atomic.Int64
	segments      atomic.Int64
	retransmitted atomic.Int64
	packetsSent   atomic.Int64
	bytesSent     atomic.Int64
	jobsStarted   atomic.Int64
	jobsCompleted atomic.Int64
	jobsActive    atomic.Int64
	controlCalls  atomic.Int64
	controlErrors atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	next      int
}

// NewMetrics returns a zero-initialised Metrics.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) IncDatagram() {
	if m != nil {
		m.datagrams.Add(1)
	}
}

func (m *Metrics) IncMalformed() {
	if m != nil {
		m.malformed.Add(1)
	}
}

func (m *Metrics) IncStale() {
	if m != nil {
		m.stale.Add(1)
	}
}

func (m *Metrics) IncDuplicate() {
	if m != nil {
		m.duplicate.Add(1)
	}
}

func (m *Metrics) IncSegment() {
	if m != nil {
		m.segments.Add(1)
	}
}

func (m *Metrics) AddRetransmitted(n int) {
	if m != nil {
		m.retransmitted.Add(int64(n))
	}
}

func (m *Metrics) AddSent(packets, bytes int) {
	if m != nil {
		m.packetsSent.Add(int64(packets))
		m.bytesSent.Add(int64(bytes))
	}
}

func (m *Metrics) IncJobStarted() {
	if m != nil {
		m.jobsStarted.Add(1)
		m.jobsActive.Add(1)
	}
}

func (m *Metrics) IncJobCompleted() {
	if m != nil {
		m.jobsCompleted.Add(1)
	}
}

// DecJobActive is called when a job leaves the session registry.
func (m *Metrics) DecJobActive() {
	if m != nil {
		m.jobsActive.Add(-1)
	}
}

func (m *Metrics) IncControlCall() {
	if m != nil {
		m.controlCalls.Add(1)
	}
}

func (m *Metrics) IncControlError() {
	if m != nil {
		m.controlErrors.Add(1)
	}
}

// ObserveRetransmit records one check-and-retransmit round trip.
func (m *Metrics) ObserveRetransmit(d time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.latencies) < latencyWindow {
		m.latencies = append(m.latencies, d)
		return
	}
	m.latencies[m.next] = d
	m.next = (m.next + 1) % latencyWindow
}

// LatencySnapshot returns a copy of the retransmit latency window.
func (m *Metrics) LatencySnapshot() []time.Duration {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.latencies...)
}

// GetMetrics returns a snapshot of the counters.
func (m *Metrics) GetMetrics() map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return map[string]int64{
		"datagrams_received":     m.datagrams.Load(),
		"datagrams_malformed":    m.malformed.Load(),
		"datagrams_stale":        m.stale.Load(),
		"segments_duplicate":     m.duplicate.Load(),
		"segments_recorded":      m.segments.Load(),
		"segments_retransmitted": m.retransmitted.Load(),
		"packets_sent":           m.packetsSent.Load(),
		"bytes_sent":             m.bytesSent.Load(),
		"jobs_started":           m.jobsStarted.Load(),
		"jobs_completed":         m.jobsCompleted.Load(),
		"jobs_active":            m.jobsActive.Load(),
		"control_calls":          m.controlCalls.Load(),
		"control_errors":         m.controlErrors.Load(),
	}
}
