// package callmdw provides the unary call request flowing through
// method chains and the stage forwarding it to the upstream node
package callmdw

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
)

// CallRequest is a single method invocation. It is never modified in place,
// stages changing the params build a new request with WithParams.
type CallRequest struct {
	Method string
	Params []json.RawMessage
}

// WithParams returns a copy of the request carrying params
func (r CallRequest) WithParams(params []json.RawMessage) CallRequest {
	return CallRequest{
		Method: r.Method,
		Params: params,
	}
}

type (
	Middleware = middleware.Middleware[CallRequest, json.RawMessage]
	Next       = middleware.Next[CallRequest, json.RawMessage]
	Chain      = middleware.Chain[CallRequest, json.RawMessage]
)

// NewChain returns a call chain of stages
func NewChain(stages ...Middleware) *Chain {
	return middleware.NewChain(stages...)
}

// UpstreamMiddleware forwards calls to the upstream node and never calls next
type UpstreamMiddleware struct {
	upstream upstream.Caller
	*logging.ServiceLogger
}

var _ Middleware = (*UpstreamMiddleware)(nil)

func NewUpstreamMiddleware(caller upstream.Caller, logger *logging.ServiceLogger) *UpstreamMiddleware {
	return &UpstreamMiddleware{
		upstream:      caller,
		ServiceLogger: logger,
	}
}

// Handle implements middleware.Middleware. Results and JSON-RPC errors of the
// node are returned verbatim, failing to reach the node is an UpstreamFailure.
func (m *UpstreamMiddleware) Handle(ctx context.Context, req CallRequest, _ Next) (json.RawMessage, error) {
	result, err := m.upstream.Call(ctx, req.Method, req.Params)
	if err == nil {
		return result, nil
	}

	var rpcErr *upstream.Error
	if errors.As(err, &rpcErr) {
		return nil, rpcErr
	}

	m.Logger.Debug().
		Str("method", req.Method).
		Err(err).
		Msg("error forwarding call upstream")

	return nil, middleware.WrapError(middleware.UpstreamFailure, err, "error calling %s upstream", req.Method)
}
