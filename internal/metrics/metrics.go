// Package metrics provides interfaces and implementations for collecting
// agent metrics and exporting sendmail statistics to Prometheus. This
// package defines the Collector interface for recording metrics and the
// Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording agent metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()

	// Request metrics. result is "ok" or the failure kind.
	RequestProcessed(key string, result string)

	// Snapshot publisher metrics
	SnapshotPublished(success bool)
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
