package metricmdw_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-rpc-gateway/clients/cache"
	"github.com/kava-labs/kava-rpc-gateway/clients/database"
	"github.com/kava-labs/kava-rpc-gateway/clients/database/memory"
	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/cachemdw"
	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/metricmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
)

var testContext = context.Background()

func headerRequest() callmdw.CallRequest {
	return callmdw.CallRequest{Method: "chain_getHeader", Params: []json.RawMessage{}}
}

func answer(result string, err error) callmdw.Next {
	return func(context.Context, callmdw.CallRequest) (json.RawMessage, error) {
		if err != nil {
			return nil, err
		}
		return json.RawMessage(result), nil
	}
}

func TestUnitTestMetricIsRecordedForSuccessfulCall(t *testing.T) {
	db := memory.New()
	stage := metricmdw.NewMetricMiddleware(db, logging.Nop())
	chain := middleware.NewChainWithTerminal(answer(`{"number":"0x1"}`, nil), callmdw.Middleware(stage))

	result, err := chain.Call(testContext, headerRequest())
	require.NoError(t, err)
	require.JSONEq(t, `{"number":"0x1"}`, string(result))

	stage.Wait()

	metrics := db.Metrics()
	require.Len(t, metrics, 1)
	require.Equal(t, "chain_getHeader", metrics[0].MethodName)
	require.False(t, metrics[0].CacheHit)
	require.False(t, metrics[0].Failed())
	require.False(t, metrics[0].RequestTime.IsZero())
	require.GreaterOrEqual(t, metrics[0].ResponseLatencyMilliseconds, int64(0))
}

func TestUnitTestMetricRecordsErrorCode(t *testing.T) {
	db := memory.New()
	stage := metricmdw.NewMetricMiddleware(db, logging.Nop())

	rpcErr := &upstream.Error{Code: -32601, Message: "Method not found"}
	chain := middleware.NewChainWithTerminal(answer("", rpcErr), callmdw.Middleware(stage))

	_, err := chain.Call(testContext, headerRequest())
	require.Same(t, rpcErr, err)

	stage.Wait()

	metrics := db.Metrics()
	require.Len(t, metrics, 1)
	require.True(t, metrics[0].Failed())
	require.Equal(t, -32601, *metrics[0].ErrorCode)
}

func TestUnitTestMetricRecordsCacheHits(t *testing.T) {
	db := memory.New()
	stage := metricmdw.NewMetricMiddleware(db, logging.Nop())

	lru, err := cache.NewLRUCache(4)
	require.NoError(t, err)
	cacheStage, err := cachemdw.NewCacheMiddleware(lru, "test", logging.Nop())
	require.NoError(t, err)

	chain := middleware.NewChainWithTerminal(
		answer(`"0xhash"`, nil),
		callmdw.Middleware(stage),
		callmdw.Middleware(cacheStage),
	)

	for i := 0; i < 2; i++ {
		_, err := chain.Call(testContext, headerRequest())
		require.NoError(t, err)
	}

	stage.Wait()

	// metrics are saved concurrently, their order is not the call order
	var hits int
	metrics := db.Metrics()
	require.Len(t, metrics, 2)
	for _, metric := range metrics {
		if metric.CacheHit {
			hits++
		}
	}
	require.Equal(t, 1, hits)
}

type failingDatabase struct {
	memory.Memory
}

func (f *failingDatabase) SaveProxiedRequestMetric(context.Context, *database.ProxiedRequestMetric) error {
	return errors.New("database down")
}

func TestUnitTestMetricSaveFailureDoesNotReachCaller(t *testing.T) {
	stage := metricmdw.NewMetricMiddleware(&failingDatabase{}, logging.Nop())
	chain := middleware.NewChainWithTerminal(answer(`true`, nil), callmdw.Middleware(stage))

	result, err := chain.Call(testContext, headerRequest())
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`true`), result)

	stage.Wait()
}
