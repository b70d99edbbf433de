// package metricmdw records a request metric for every call passing
// through a call chain. It runs as the outermost stage so the recorded
// latency covers injection, caching and the upstream round trip.
package metricmdw

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/kava-labs/kava-rpc-gateway/clients/database"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/cachemdw"
	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
)

const saveTimeout = 10 * time.Second

// MetricMiddleware times calls and saves their metrics asynchronously,
// failures to save are logged and never reach the caller
type MetricMiddleware struct {
	db  database.MetricsDatabase
	now func() time.Time
	wg  sync.WaitGroup
	*logging.ServiceLogger
}

var _ callmdw.Middleware = (*MetricMiddleware)(nil)

func NewMetricMiddleware(db database.MetricsDatabase, logger *logging.ServiceLogger) *MetricMiddleware {
	return &MetricMiddleware{
		db:            db,
		now:           time.Now,
		ServiceLogger: logger,
	}
}

// Handle implements middleware.Middleware
func (m *MetricMiddleware) Handle(ctx context.Context, req callmdw.CallRequest, next callmdw.Next) (json.RawMessage, error) {
	ctx, status := cachemdw.WithCacheStatus(ctx)

	requestTime := m.now()
	result, err := next(ctx, req)
	latency := m.now().Sub(requestTime)

	metric := &database.ProxiedRequestMetric{
		MethodName:                  req.Method,
		ResponseLatencyMilliseconds: latency.Milliseconds(),
		RequestTime:                 requestTime,
		CacheHit:                    status.Hit(),
	}
	if err != nil {
		code := middleware.CodeOf(err)
		metric.ErrorCode = &code
	}

	m.wg.Add(1)
	go m.save(metric)

	return result, err
}

func (m *MetricMiddleware) save(metric *database.ProxiedRequestMetric) {
	defer m.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := m.db.SaveProxiedRequestMetric(ctx, metric); err != nil {
		m.Logger.Error().
			Str("method", metric.MethodName).
			Err(err).
			Msg("error saving request metric")
	}
}

// Wait blocks until every pending metric has been saved
func (m *MetricMiddleware) Wait() {
	m.wg.Wait()
}
