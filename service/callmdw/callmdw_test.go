package callmdw_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/callmdw"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
)

var testContext = context.Background()

type fakeCaller struct {
	result json.RawMessage
	err    error
	calls  []callmdw.CallRequest
}

func (f *fakeCaller) Call(_ context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	f.calls = append(f.calls, callmdw.CallRequest{Method: method, Params: params})
	return f.result, f.err
}

func TestUnitTestWithParamsLeavesOriginalUnchanged(t *testing.T) {
	original := callmdw.CallRequest{Method: "state_getStorage", Params: []json.RawMessage{json.RawMessage(`"0x01"`)}}

	updated := original.WithParams([]json.RawMessage{json.RawMessage(`"0x01"`), json.RawMessage(`"0xhash"`)})

	require.Len(t, original.Params, 1)
	require.Len(t, updated.Params, 2)
	require.Equal(t, original.Method, updated.Method)
}

func TestUnitTestUpstreamMiddlewareForwardsVerbatim(t *testing.T) {
	caller := &fakeCaller{result: json.RawMessage(`{"free":"0x10"}`)}
	chain := callmdw.NewChain(callmdw.NewUpstreamMiddleware(caller, logging.Nop()))

	req := callmdw.CallRequest{Method: "system_account", Params: []json.RawMessage{json.RawMessage(`"alice"`)}}
	result, err := chain.Call(testContext, req)

	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`{"free":"0x10"}`), result)
	require.Equal(t, []callmdw.CallRequest{req}, caller.calls)
}

func TestUnitTestUpstreamMiddlewarePassesRPCErrorsThrough(t *testing.T) {
	rpcErr := &upstream.Error{Code: -32601, Message: "Method not found"}
	chain := callmdw.NewChain(callmdw.NewUpstreamMiddleware(&fakeCaller{err: rpcErr}, logging.Nop()))

	_, err := chain.Call(testContext, callmdw.CallRequest{Method: "nope"})

	require.Same(t, rpcErr, err)
}

func TestUnitTestUpstreamMiddlewareWrapsTransportFailures(t *testing.T) {
	chain := callmdw.NewChain(callmdw.NewUpstreamMiddleware(&fakeCaller{err: upstream.ErrConnectionLost}, logging.Nop()))

	_, err := chain.Call(testContext, callmdw.CallRequest{Method: "chain_getHeader"})

	require.Equal(t, middleware.UpstreamFailure, middleware.KindOf(err))
	require.True(t, errors.Is(err, upstream.ErrConnectionLost))
}

func TestUnitTestUpstreamMiddlewareNeverCallsNext(t *testing.T) {
	calledNext := false
	next := func(context.Context, callmdw.CallRequest) (json.RawMessage, error) {
		calledNext = true
		return nil, nil
	}

	_, err := callmdw.NewUpstreamMiddleware(&fakeCaller{result: json.RawMessage(`1`)}, logging.Nop()).
		Handle(testContext, callmdw.CallRequest{Method: "m"}, next)

	require.NoError(t, err)
	require.False(t, calledNext)
}
