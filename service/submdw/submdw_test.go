package submdw_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
	"github.com/kava-labs/kava-rpc-gateway/service/submdw"
)

const waitTimeout = 5 * time.Second

type fakeSubscription struct {
	items        chan json.RawMessage
	errs         chan error
	unsubscribed chan struct{}
	once         sync.Once
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{
		items:        make(chan json.RawMessage, 16),
		errs:         make(chan error, 1),
		unsubscribed: make(chan struct{}),
	}
}

func (f *fakeSubscription) Items() <-chan json.RawMessage { return f.items }
func (f *fakeSubscription) Err() <-chan error             { return f.errs }
func (f *fakeSubscription) Unsubscribe() {
	f.once.Do(func() { close(f.unsubscribed) })
}

func (f *fakeSubscription) isUnsubscribed() bool {
	select {
	case <-f.unsubscribed:
		return true
	default:
		return false
	}
}

type fakeSink struct {
	mu     sync.Mutex
	items  []json.RawMessage
	closed chan struct{}
	once   sync.Once
	// received is signalled for every item sent
	received chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		closed:   make(chan struct{}),
		received: make(chan struct{}, 16),
	}
}

func (s *fakeSink) Send(item json.RawMessage) error {
	select {
	case <-s.closed:
		return errors.New("sink closed")
	default:
	}

	s.mu.Lock()
	s.items = append(s.items, item)
	s.mu.Unlock()

	s.received <- struct{}{}
	return nil
}

func (s *fakeSink) Closed() <-chan struct{} { return s.closed }
func (s *fakeSink) Close()                  { s.once.Do(func() { close(s.closed) }) }

func (s *fakeSink) Items() []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]json.RawMessage(nil), s.items...)
}

func (s *fakeSink) waitForItems(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.received:
		case <-time.After(waitTimeout):
			t.Fatalf("received %d of %d items", i, n)
		}
	}
}

type fakeSubscriber struct {
	sub      *fakeSubscription
	err      error
	requests []submdw.SubscriptionRequest
}

func (f *fakeSubscriber) Subscribe(_ context.Context, subscribe, unsubscribe string, params []json.RawMessage) (upstream.Subscription, error) {
	f.requests = append(f.requests, submdw.SubscriptionRequest{Subscribe: subscribe, Unsubscribe: unsubscribe, Params: params})
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

func runRelay(sub upstream.Subscription, sink submdw.Sink) <-chan submdw.State {
	done := make(chan submdw.State, 1)
	go func() {
		done <- submdw.Relay("newHeads", sub, sink, logging.Nop())
	}()
	return done
}

func waitForState(t *testing.T, done <-chan submdw.State) submdw.State {
	t.Helper()
	select {
	case state := <-done:
		return state
	case <-time.After(waitTimeout):
		t.Fatal("relay did not finish")
		return submdw.Requested
	}
}

func TestUnitTestRelayDeliversInOrderAndStopsAfterUnsubscribe(t *testing.T) {
	sub := newFakeSubscription()
	sink := newFakeSink()
	done := runRelay(sub, sink)

	sub.items <- json.RawMessage(`"H1"`)
	sub.items <- json.RawMessage(`"H2"`)
	sub.items <- json.RawMessage(`"H3"`)
	sink.waitForItems(t, 3)

	// the client unsubscribes
	sink.Close()

	require.Equal(t, submdw.Closed, waitForState(t, done))
	require.True(t, sub.isUnsubscribed())

	// emitted after unsubscribe, never relayed
	sub.items <- json.RawMessage(`"H4"`)

	require.Equal(t, []json.RawMessage{
		json.RawMessage(`"H1"`),
		json.RawMessage(`"H2"`),
		json.RawMessage(`"H3"`),
	}, sink.Items())
}

func TestUnitTestRelayClosesSinkWhenUpstreamEnds(t *testing.T) {
	sub := newFakeSubscription()
	sink := newFakeSink()
	done := runRelay(sub, sink)

	sub.items <- json.RawMessage(`1`)
	close(sub.items)

	require.Equal(t, submdw.Closed, waitForState(t, done))
	require.Equal(t, []json.RawMessage{json.RawMessage(`1`)}, sink.Items())

	select {
	case <-sink.Closed():
	default:
		t.Fatal("sink not closed")
	}
}

func TestUnitTestRelayClosesSinkWhenUpstreamFails(t *testing.T) {
	sub := newFakeSubscription()
	sink := newFakeSink()
	done := runRelay(sub, sink)

	sub.errs <- upstream.ErrConnectionLost

	require.Equal(t, submdw.Failed, waitForState(t, done))

	select {
	case <-sink.Closed():
	default:
		t.Fatal("sink not closed")
	}
}

func TestUnitTestRelayDeliversQueuedItemsBeforeFailing(t *testing.T) {
	for i := 0; i < 50; i++ {
		sub := newFakeSubscription()
		sink := newFakeSink()

		// items and the error are all ready before the relay starts
		sub.items <- json.RawMessage(`"H1"`)
		sub.items <- json.RawMessage(`"H2"`)
		sub.items <- json.RawMessage(`"H3"`)
		sub.errs <- upstream.ErrConnectionLost

		require.Equal(t, submdw.Failed, waitForState(t, runRelay(sub, sink)))
		require.Equal(t, []json.RawMessage{
			json.RawMessage(`"H1"`),
			json.RawMessage(`"H2"`),
			json.RawMessage(`"H3"`),
		}, sink.Items())
	}
}

func TestUnitTestUpstreamMiddlewareStartsRelay(t *testing.T) {
	sub := newFakeSubscription()
	subscriber := &fakeSubscriber{sub: sub}
	chain := submdw.NewChain(submdw.NewUpstreamMiddleware(subscriber, logging.Nop()))
	sink := newFakeSink()

	_, err := chain.Call(context.Background(), submdw.SubscriptionRequest{
		Subscribe:   "newHeads",
		Unsubscribe: "unsubscribeHeads",
		Params:      []json.RawMessage{json.RawMessage(`true`)},
		Sink:        sink,
	})
	require.NoError(t, err)

	require.Len(t, subscriber.requests, 1)
	require.Equal(t, "newHeads", subscriber.requests[0].Subscribe)
	require.Equal(t, "unsubscribeHeads", subscriber.requests[0].Unsubscribe)
	require.Equal(t, []json.RawMessage{json.RawMessage(`true`)}, subscriber.requests[0].Params)

	sub.items <- json.RawMessage(`"H1"`)
	sink.waitForItems(t, 1)

	sink.Close()
	require.Eventually(t, sub.isUnsubscribed, waitTimeout, 10*time.Millisecond)
}

func TestUnitTestUpstreamMiddlewareReturnsSubscribeErrors(t *testing.T) {
	rpcErr := &upstream.Error{Code: -32601, Message: "Method not found"}
	chain := submdw.NewChain(submdw.NewUpstreamMiddleware(&fakeSubscriber{err: rpcErr}, logging.Nop()))

	_, err := chain.Call(context.Background(), submdw.SubscriptionRequest{Subscribe: "newHeads", Sink: newFakeSink()})
	require.Same(t, rpcErr, err)

	chain = submdw.NewChain(submdw.NewUpstreamMiddleware(&fakeSubscriber{err: upstream.ErrNotConnected}, logging.Nop()))

	_, err = chain.Call(context.Background(), submdw.SubscriptionRequest{Subscribe: "newHeads", Sink: newFakeSink()})
	require.Equal(t, middleware.UpstreamFailure, middleware.KindOf(err))
	require.ErrorIs(t, err, upstream.ErrNotConnected)
}

func TestUnitTestSubscriptionChainWithoutForwarderIsBadConfiguration(t *testing.T) {
	_, err := submdw.NewChain().Call(context.Background(), submdw.SubscriptionRequest{Subscribe: "newHeads"})

	require.ErrorIs(t, err, middleware.ErrBadConfiguration)
}

func TestUnitTestWithParamsKeepsSink(t *testing.T) {
	sink := newFakeSink()
	req := submdw.SubscriptionRequest{Subscribe: "s", Unsubscribe: "u", Sink: sink}

	updated := req.WithParams([]json.RawMessage{json.RawMessage(`1`)})

	require.Nil(t, req.Params)
	require.Equal(t, "s", updated.Subscribe)
	require.Equal(t, "u", updated.Unsubscribe)
	require.Same(t, sink, updated.Sink)
}
