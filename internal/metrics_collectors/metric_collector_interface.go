package metrics_collectors

import (
	"context"
)

// MetricCollector collects one scalar host metric for the status report.
type MetricCollector interface {
	Name() string                                 // Name of the metric (e.g., "cpu", "memory")
	Collect(ctx context.Context) (float64, error) // Collect the metric value
	Unit() string                                 // Unit of the metric (e.g., "percentage", "seconds")
}
