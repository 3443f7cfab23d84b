package server

import (
	"sync/atomic"
)

// DNSStats collects query statistics for the gateway's decision outcomes
// (spec.md §4.E: gateway answer, forward, refuse, or SERVFAIL). The daemon
// is UDP-only (spec.md Non-goals exclude TCP), so unlike the teacher's
// DNSStats there is no per-transport split.
// All methods are safe for concurrent use.
type DNSStats struct {
	queriesTotal      atomic.Uint64
	responsesGateway  atomic.Uint64
	responsesForward  atomic.Uint64
	responsesRefused  atomic.Uint64
	responsesServfail atomic.Uint64
	latencyTotalNs    atomic.Uint64
}

// NewDNSStats creates a new DNS statistics collector.
func NewDNSStats() *DNSStats {
	return &DNSStats{}
}

// RecordQuery records a dequeued query about to be processed.
func (s *DNSStats) RecordQuery() {
	s.queriesTotal.Add(1)
}

// RecordGatewayAnswer records a synthesized gateway response.
func (s *DNSStats) RecordGatewayAnswer() {
	s.responsesGateway.Add(1)
}

// RecordForwarded records a response relayed from the upstream resolver.
func (s *DNSStats) RecordForwarded() {
	s.responsesForward.Add(1)
}

// RecordRefused records a REFUSED response (out-of-suffix query or failed
// forward).
func (s *DNSStats) RecordRefused() {
	s.responsesRefused.Add(1)
}

// RecordServfail records a SERVFAIL response (hop limit reached).
func (s *DNSStats) RecordServfail() {
	s.responsesServfail.Add(1)
}

// RecordLatency records query latency in nanoseconds.
func (s *DNSStats) RecordLatency(ns int64) {
	if ns > 0 {
		s.latencyTotalNs.Add(uint64(ns))
	}
}

// DNSStatsSnapshot is a point-in-time snapshot of DNS server statistics.
type DNSStatsSnapshot struct {
	QueriesTotal      uint64
	ResponsesGateway  uint64
	ResponsesForward  uint64
	ResponsesRefused  uint64
	ResponsesServfail uint64
	AvgLatencyMs      float64
}

// Snapshot returns the current statistics.
func (s *DNSStats) Snapshot() DNSStatsSnapshot {
	total := s.queriesTotal.Load()
	latencyNs := s.latencyTotalNs.Load()

	avgLatencyMs := 0.0
	if total > 0 {
		avgLatencyMs = float64(latencyNs) / float64(total) / 1e6
	}

	return DNSStatsSnapshot{
		QueriesTotal:      total,
		ResponsesGateway:  s.responsesGateway.Load(),
		ResponsesForward:  s.responsesForward.Load(),
		ResponsesRefused:  s.responsesRefused.Load(),
		ResponsesServfail: s.responsesServfail.Load(),
		AvgLatencyMs:      avgLatencyMs,
	}
}
