package database

import "context"

// MetricsDatabase stores metrics of requests served by the gateway
type MetricsDatabase interface {
	SaveProxiedRequestMetric(ctx context.Context, prm *ProxiedRequestMetric) error
	ListProxiedRequestMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*ProxiedRequestMetric, int64, error)
	DeleteProxiedRequestMetricsOlderThanNDays(ctx context.Context, n int64) error
	HealthCheck(ctx context.Context) error
}
