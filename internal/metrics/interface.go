// Package metrics exposes pingscan's Prometheus metrics. The scan engine only
// sees the Recorder interface so it can run without a registry.
package metrics

import "time"

//go:generate mockgen -destination=mocks/mock_metrics.go -package=mocks github.com/anstrom/pingscan/internal/metrics Recorder,HTTPObserver

// Recorder receives scan and probe events.
type Recorder interface {
	// ObserveProbe counts one completed probe. d is nil when no latency was
	// measured.
	ObserveProbe(protocol, state string, d *time.Duration)

	// ScanStarted and ScanFinished bracket one scan.
	ScanStarted()
	ScanFinished(status string, d time.Duration)

	// ObserveHosts adds the final host state counts of a scan.
	ObserveHosts(up, down, unknown int)
}

// HTTPObserver receives API request timings.
type HTTPObserver interface {
	ObserveHTTP(method, path, status string, d time.Duration)
}

// NopRecorder discards everything.
type NopRecorder struct{}

func (NopRecorder) ObserveProbe(string, string, *time.Duration) {}
func (NopRecorder) ScanStarted()                                {}
func (NopRecorder) ScanFinished(string, time.Duration)          {}
func (NopRecorder) ObserveHosts(int, int, int)                  {}

var (
	_ Recorder = NopRecorder{}
	_ Recorder     = (*PrometheusMetrics)(nil)
	_ HTTPObserver = (*PrometheusMetrics)(nil)
)
