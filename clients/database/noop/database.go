package noop

import (
	"context"

	"github.com/kava-labs/kava-rpc-gateway/clients/database"
)

// Noop is a metrics database that drops every metric,
// used when metric collection is disabled
type Noop struct{}

var _ database.MetricsDatabase = (*Noop)(nil)

func New() *Noop {
	return &Noop{}
}

func (e *Noop) SaveProxiedRequestMetric(ctx context.Context, metric *database.ProxiedRequestMetric) error {
	return nil
}

func (e *Noop) ListProxiedRequestMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*database.ProxiedRequestMetric, int64, error) {
	return []*database.ProxiedRequestMetric{}, 0, nil
}

func (e *Noop) DeleteProxiedRequestMetricsOlderThanNDays(ctx context.Context, n int64) error {
	return nil
}

func (e *Noop) HealthCheck(ctx context.Context) error {
	return nil
}
