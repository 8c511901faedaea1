// Package metrics collects daemon counters with atomics. The numbers are
// surfaced through the status method, not exported anywhere else.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics holds daemon counters using atomics for thread safety.
type Metrics struct {
	// Request handling
	requestsTotal   atomic.Int64
	requestErrors   atomic.Int64
	requestLatencyN atomic.Int64

	// Execution outcomes
	executed atomic.Int64
	blocked  atomic.Int64
	declined atomic.Int64

	// Approval round-trips sent to clients
	elicitations atomic.Int64
}

// RecordRequest records one handled request with its duration and outcome.
func (m *Metrics) RecordRequest(duration time.Duration, err error) {
	m.requestsTotal.Add(1)
	m.requestLatencyN.Add(duration.Nanoseconds())
	if err != nil {
		m.requestErrors.Add(1)
	}
}

// RecordExecuted records a broadcast transaction.
func (m *Metrics) RecordExecuted() { m.executed.Add(1) }

// RecordBlocked records a policy hard block.
func (m *Metrics) RecordBlocked() { m.blocked.Add(1) }

// RecordDeclined records a human decline.
func (m *Metrics) RecordDeclined() { m.declined.Add(1) }

// RecordElicitation records an approval request sent to a client.
func (m *Metrics) RecordElicitation() { m.elicitations.Add(1) }

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	RequestsTotal int64   `json:"requests_total"`
	RequestErrors int64   `json:"request_errors"`
	LatencyAvgMs  float64 `json:"latency_avg_ms"`
	Executed      int64   `json:"executed"`
	Blocked       int64   `json:"blocked"`
	Declined      int64   `json:"declined"`
	Elicitations  int64   `json:"elicitations"`
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		RequestsTotal: m.requestsTotal.Load(),
		RequestErrors: m.requestErrors.Load(),
		LatencyAvgMs:  m.LatencyAvgMs(),
		Executed:      m.executed.Load(),
		Blocked:       m.blocked.Load(),
		Declined:      m.declined.Load(),
		Elicitations:  m.elicitations.Load(),
	}
}

// RequestsTotal returns the total number of handled requests.
func (m *Metrics) RequestsTotal() int64 {
	return m.requestsTotal.Load()
}

// RequestErrors returns the number of requests that returned an error.
func (m *Metrics) RequestErrors() int64 {
	return m.requestErrors.Load()
}

// LatencyAvgMs returns the average request latency in milliseconds.
// Returns 0 if no requests have been handled.
func (m *Metrics) LatencyAvgMs() float64 {
	calls := m.requestsTotal.Load()
	if calls == 0 {
		return 0
	}
	nanos := m.requestLatencyN.Load()
	return float64(nanos) / float64(calls) / 1e6
}

// Reset resets all counters to zero. Useful for testing.
func (m *Metrics) Reset() {
	m.requestsTotal.Store(0)
	m.requestErrors.Store(0)
	m.requestLatencyN.Store(0)
	m.executed.Store(0)
	m.blocked.Store(0)
	m.declined.Store(0)
	m.elicitations.Store(0)
}
