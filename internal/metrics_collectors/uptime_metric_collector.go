package metrics_collectors

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"
)

// UptimeMetricCollector reports seconds since host boot.
type UptimeMetricCollector struct {
	Logger zerolog.Logger
}

func (u *UptimeMetricCollector) Name() string {
	return "uptime"
}

func (u *UptimeMetricCollector) Collect(ctx context.Context) (float64, error) {
	uptime, err := host.UptimeWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return float64(uptime), nil
}

func (u *UptimeMetricCollector) Unit() string {
	return "seconds"
}
