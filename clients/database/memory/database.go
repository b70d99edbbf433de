// package memory provides a metrics database kept in process memory,
// for tests and for running the gateway without postgres
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/kava-labs/kava-rpc-gateway/clients/database"
)

// Memory is a metrics database safe for concurrent use
type Memory struct {
	mu      sync.Mutex
	nextID  int64
	metrics []database.ProxiedRequestMetric
	now     func() time.Time
	// saved is signalled after every save, if set
	saved chan struct{}
}

var _ database.MetricsDatabase = (*Memory)(nil)

func New() *Memory {
	return &Memory{now: time.Now}
}

// NewNotifying returns a Memory that sends on the returned channel
// after each saved metric, the channel holds up to buffer signals
func NewNotifying(buffer int) (*Memory, <-chan struct{}) {
	saved := make(chan struct{}, buffer)
	return &Memory{now: time.Now, saved: saved}, saved
}

func (m *Memory) SaveProxiedRequestMetric(ctx context.Context, metric *database.ProxiedRequestMetric) error {
	m.mu.Lock()
	m.nextID++
	stored := *metric
	stored.ID = m.nextID
	metric.ID = stored.ID
	m.metrics = append(m.metrics, stored)
	m.mu.Unlock()

	if m.saved != nil {
		select {
		case m.saved <- struct{}{}:
		default:
		}
	}

	return nil
}

// ListProxiedRequestMetricsWithPagination returns up to limit metrics with an
// id above cursor, and the cursor of the next page or 0 when there is none
func (m *Memory) ListProxiedRequestMetricsWithPagination(ctx context.Context, cursor int64, limit int) ([]*database.ProxiedRequestMetric, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	page := []*database.ProxiedRequestMetric{}
	for i := range m.metrics {
		if m.metrics[i].ID <= cursor {
			continue
		}
		if len(page) == limit {
			break
		}
		metric := m.metrics[i]
		page = append(page, &metric)
	}

	var nextCursor int64
	if limit > 0 && len(page) == limit {
		nextCursor = page[len(page)-1].ID
	}

	return page, nextCursor, nil
}

func (m *Memory) DeleteProxiedRequestMetricsOlderThanNDays(ctx context.Context, n int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-time.Duration(n) * 24 * time.Hour)

	kept := m.metrics[:0]
	for _, metric := range m.metrics {
		if !metric.RequestTime.Before(cutoff) {
			kept = append(kept, metric)
		}
	}
	m.metrics = kept

	return nil
}

func (m *Memory) HealthCheck(ctx context.Context) error {
	return nil
}

// Metrics returns a copy of every stored metric in insertion order
func (m *Memory) Metrics() []database.ProxiedRequestMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]database.ProxiedRequestMetric(nil), m.metrics...)
}
