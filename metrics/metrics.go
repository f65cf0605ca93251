// Package metrics defines the instrumentation hooks for the payment flow
// and a Prometheus-backed implementation.
package metrics

import "time"

// Recorder receives payment flow measurements. Implementations must be
// safe for concurrent use.
type Recorder interface {
	// RecordEvent counts a payment lifecycle event, labeled by outcome
	// (e.g., "challenge_issued", "verified", "rejected", "settled").
	RecordEvent(event, network, scheme string)

	// RecordLatency observes how long a payment operation took, labeled by
	// operation ("verify", "settle", "round_trip").
	RecordLatency(operation, network string, d time.Duration)
}

// NopRecorder discards all measurements.
type NopRecorder struct{}

// NewNop returns a Recorder that discards everything.
func NewNop() *NopRecorder { return &NopRecorder{} }

func (n *NopRecorder) RecordEvent(event, network, scheme string)              {}
func (n *NopRecorder) RecordLatency(operation, network string, d time.Duration) {}
