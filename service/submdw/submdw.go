// package submdw provides the subscription request flowing through
// subscription chains and the stage relaying an upstream subscription
// to the client that opened it
package submdw

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
)

// Sink receives the items of one client subscription. It is owned by the
// transport, relays write to it until it is closed.
type Sink interface {
	// Send delivers an item to the client, failing once the sink is closed
	Send(item json.RawMessage) error
	// Closed is closed when the client unsubscribed or disconnected
	Closed() <-chan struct{}
	// Close ends the client subscription
	Close()
}

// SubscriptionRequest opens a subscription on behalf of the client owning Sink
type SubscriptionRequest struct {
	Subscribe   string
	Unsubscribe string
	Params      []json.RawMessage
	Sink        Sink
}

// WithParams returns a copy of the request carrying params
func (r SubscriptionRequest) WithParams(params []json.RawMessage) SubscriptionRequest {
	return SubscriptionRequest{
		Subscribe:   r.Subscribe,
		Unsubscribe: r.Unsubscribe,
		Params:      params,
		Sink:        r.Sink,
	}
}

type (
	Middleware = middleware.Middleware[SubscriptionRequest, struct{}]
	Next       = middleware.Next[SubscriptionRequest, struct{}]
	Chain      = middleware.Chain[SubscriptionRequest, struct{}]
)

// NewChain returns a subscription chain of stages
func NewChain(stages ...Middleware) *Chain {
	return middleware.NewChain(stages...)
}

// State is the lifecycle of a relayed subscription
type State int

const (
	Requested State = iota
	Streaming
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// UpstreamMiddleware opens the subscription upstream and relays it to the
// request sink from a goroutine of its own, it never calls next
type UpstreamMiddleware struct {
	upstream upstream.Subscriber
	*logging.ServiceLogger
}

var _ Middleware = (*UpstreamMiddleware)(nil)

func NewUpstreamMiddleware(subscriber upstream.Subscriber, logger *logging.ServiceLogger) *UpstreamMiddleware {
	return &UpstreamMiddleware{
		upstream:      subscriber,
		ServiceLogger: logger,
	}
}

// Handle implements middleware.Middleware. It returns once the upstream
// confirmed the subscription, or with the error that prevented it.
func (m *UpstreamMiddleware) Handle(ctx context.Context, req SubscriptionRequest, _ Next) (struct{}, error) {
	m.Logger.Trace().Str("method", req.Subscribe).Stringer("state", Requested).Msg("opening upstream subscription")

	sub, err := m.upstream.Subscribe(ctx, req.Subscribe, req.Unsubscribe, req.Params)
	if err != nil {
		var rpcErr *upstream.Error
		if errors.As(err, &rpcErr) {
			return struct{}{}, rpcErr
		}

		m.Logger.Debug().
			Str("method", req.Subscribe).
			Err(err).
			Msg("error opening upstream subscription")

		return struct{}{}, middleware.WrapError(middleware.UpstreamFailure, err, "error calling %s upstream", req.Subscribe)
	}

	go Relay(req.Subscribe, sub, req.Sink, m.ServiceLogger)

	return struct{}{}, nil
}

// Relay pushes items of sub to sink in arrival order until one side ends,
// returning the terminal state. Every terminal transition releases both sides:
// the sink is closed when the upstream ends or fails, the upstream subscription
// is cancelled when the sink is closed.
func Relay(name string, sub upstream.Subscription, sink Sink, logger *logging.ServiceLogger) State {
	logger.Trace().Str("method", name).Stringer("state", Streaming).Msg("relaying subscription")

	for {
		// a closed sink wins over queued items
		select {
		case <-sink.Closed():
			sub.Unsubscribe()
			logger.Trace().Str("method", name).Stringer("state", Closed).Msg("client ended subscription")
			return Closed
		default:
		}

		select {
		case item, ok := <-sub.Items():
			if !ok {
				sink.Close()
				logger.Trace().Str("method", name).Stringer("state", Closed).Msg("upstream ended subscription")
				return Closed
			}

			if err := sink.Send(item); err != nil {
				sub.Unsubscribe()
				sink.Close()
				logger.Debug().Str("method", name).Err(err).Msg("error sending subscription item to client")
				return Closed
			}
		case err := <-sub.Err():
			drain(sub, sink)
			sink.Close()
			logger.Error().Str("method", name).Err(err).Stringer("state", Failed).Msg("upstream subscription failed")
			return Failed
		case <-sink.Closed():
			sub.Unsubscribe()
			logger.Trace().Str("method", name).Stringer("state", Closed).Msg("client ended subscription")
			return Closed
		}
	}
}

// drain sends the items sub already delivered, without waiting for more
func drain(sub upstream.Subscription, sink Sink) {
	for {
		select {
		case item, ok := <-sub.Items():
			if !ok {
				return
			}
			if err := sink.Send(item); err != nil {
				return
			}
		default:
			return
		}
	}
}
