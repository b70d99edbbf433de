package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/kava-labs/kava-rpc-gateway/clients/database"
)

// ProxiedRequestMetric is the row stored for a single call
// served by the gateway
type ProxiedRequestMetric struct {
	bun.BaseModel `bun:"table:proxied_request_metrics,alias:prm"`

	ID                          int64 `bun:",pk,autoincrement"`
	MethodName                  string
	ResponseLatencyMilliseconds int64
	RequestTime                 time.Time
	CacheHit                    bool
	ErrorCode                   *int
}

func (prm *ProxiedRequestMetric) ToProxiedRequestMetric() *database.ProxiedRequestMetric {
	return &database.ProxiedRequestMetric{
		ID:                          prm.ID,
		MethodName:                  prm.MethodName,
		ResponseLatencyMilliseconds: prm.ResponseLatencyMilliseconds,
		RequestTime:                 prm.RequestTime,
		CacheHit:                    prm.CacheHit,
		ErrorCode:                   prm.ErrorCode,
	}
}

func convertProxiedRequestMetric(metric *database.ProxiedRequestMetric) *ProxiedRequestMetric {
	return &ProxiedRequestMetric{
		ID:                          metric.ID,
		MethodName:                  metric.MethodName,
		ResponseLatencyMilliseconds: metric.ResponseLatencyMilliseconds,
		RequestTime:                 metric.RequestTime,
		CacheHit:                    metric.CacheHit,
		ErrorCode:                   metric.ErrorCode,
	}
}
