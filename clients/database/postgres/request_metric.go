package postgres

import (
	"context"

	"github.com/kava-labs/kava-rpc-gateway/clients/database"
)

const (
	ProxiedRequestMetricsTableName = "proxied_request_metrics"
)

// SaveProxiedRequestMetric saves metric to the database, returning error (if any)
func (c *Client) SaveProxiedRequestMetric(ctx context.Context, metric *database.ProxiedRequestMetric) error {
	if c.db == nil {
		return ErrNoDatabase
	}

	prm := convertProxiedRequestMetric(metric)
	if _, err := c.db.NewInsert().Model(prm).Exec(ctx); err != nil {
		return err
	}

	metric.ID = prm.ID

	return nil
}

// ListProxiedRequestMetricsWithPagination returns a page of max
// `limit` ProxiedRequestMetrics from the offset specified by`cursor`
// error (if any) along with a cursor to use to fetch the next page
// if the cursor is 0 no more pages exists.
func (c *Client) ListProxiedRequestMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*database.ProxiedRequestMetric, int64, error) {
	if c.db == nil {
		return nil, 0, ErrNoDatabase
	}

	var proxiedRequestMetrics []ProxiedRequestMetric
	var nextCursor int64

	err := c.db.NewSelect().
		Model(&proxiedRequestMetrics).
		Where("id > ?", cursor).
		Order("id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, 0, err
	}

	// otherwise leave nextCursor as 0 to signal no more rows
	if limit > 0 && len(proxiedRequestMetrics) == limit {
		nextCursor = proxiedRequestMetrics[len(proxiedRequestMetrics)-1].ID
	}

	metrics := make([]*database.ProxiedRequestMetric, 0, len(proxiedRequestMetrics))
	for i := range proxiedRequestMetrics {
		metrics = append(metrics, proxiedRequestMetrics[i].ToProxiedRequestMetric())
	}

	return metrics, nextCursor, nil
}

// DeleteProxiedRequestMetricsOlderThanNDays deletes
// all proxied request metrics older than the specified
// days, returning error (if any).
func (c *Client) DeleteProxiedRequestMetricsOlderThanNDays(ctx context.Context, n int64) error {
	if c.db == nil {
		return ErrNoDatabase
	}

	_, err := c.db.NewDelete().
		Model((*ProxiedRequestMetric)(nil)).
		Where("request_time < now() - make_interval(days => ?)", n).
		Exec(ctx)

	return err
}
