package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// RequestProcessed is a no-op.
func (n *NoopCollector) RequestProcessed(key string, result string) {}

// SnapshotPublished is a no-op.
func (n *NoopCollector) SnapshotPublished(success bool) {}
