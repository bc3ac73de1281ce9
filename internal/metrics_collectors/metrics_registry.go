package metrics_collectors

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// MetricsRegistry holds the enabled collectors in registration order.
type MetricsRegistry struct {
	collectors []MetricCollector
	logger     zerolog.Logger
}

// NewMetricsRegistry creates a new MetricsRegistry instance.
func NewMetricsRegistry(logger zerolog.Logger) *MetricsRegistry {
	return &MetricsRegistry{logger: logger}
}

// NewDefaultRegistry registers the named built-in collectors. An empty list enables all.
func NewDefaultRegistry(names []string, logger zerolog.Logger) (*MetricsRegistry, error) {
	builtins := map[string]MetricCollector{
		"cpu":    &CPUMetricCollector{Logger: logger},
		"memory": &MemoryMetricCollector{Logger: logger},
		"disk":   &DiskMetricCollector{Logger: logger, Path: "/"},
		"uptime": &UptimeMetricCollector{Logger: logger},
	}
	if len(names) == 0 {
		names = []string{"uptime", "cpu", "memory", "disk"}
	}

	r := NewMetricsRegistry(logger)
	for _, name := range names {
		c, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown metric %q", name)
		}
		r.Register(c)
	}
	return r, nil
}

// Register adds a new metric collector to the registry.
func (r *MetricsRegistry) Register(collector MetricCollector) {
	r.collectors = append(r.collectors, collector)
}

// Collect runs every collector. Failing collectors are logged and left out.
func (r *MetricsRegistry) Collect(ctx context.Context) map[string]float64 {
	values := make(map[string]float64, len(r.collectors))
	for _, c := range r.collectors {
		v, err := c.Collect(ctx)
		if err != nil {
			r.logger.Warn().Err(err).Str("metric", c.Name()).Msg("Failed to collect metric")
			continue
		}
		values[c.Name()] = v
	}
	return values
}
