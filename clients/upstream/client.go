// package upstream provides a JSON-RPC client for the node the gateway
// fronts, multiplexing calls and subscriptions over one websocket connection
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"

	"github.com/kava-labs/kava-rpc-gateway/logging"
)

const (
	DefaultRequestTimeout         = 30 * time.Second
	DefaultDialTimeout            = 30 * time.Second
	DefaultSubscriptionBufferSize = 256

	reconnectInitialInterval = 100 * time.Millisecond
	reconnectMaxInterval     = 10 * time.Second
)

// Config wraps values used to create a new Client
type Config struct {
	URL string
	// RequestTimeout bounds calls made with a context that has no deadline
	RequestTimeout time.Duration
	// DialTimeout bounds each connection attempt
	DialTimeout time.Duration
	// SubscriptionBufferSize is how many items a subscription queues
	// for a slow consumer before it is terminated
	SubscriptionBufferSize int
}

// Caller sends a single JSON-RPC call upstream
type Caller interface {
	Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error)
}

// Subscriber opens upstream subscriptions
type Subscriber interface {
	Subscribe(ctx context.Context, subscribe, unsubscribe string, params []json.RawMessage) (Subscription, error)
}

type callResult struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	done chan callResult
	// set for subscribe calls
	sub *subscription
	// the caller stopped waiting, a confirmed subscription must be cancelled
	abandoned bool
}

// Client is a concurrency safe upstream JSON-RPC client. On connection loss
// every pending call and subscription fails and the client redials in the
// background with exponential backoff.
type Client struct {
	config Config
	dialer *websocket.Dialer
	nextID atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu sync.Mutex

	mu      sync.Mutex
	conn    *websocket.Conn
	ready   chan struct{}
	pending map[uint64]*pendingCall
	subs    map[string]*subscription

	*logging.ServiceLogger
}

var (
	_ Caller     = (*Client)(nil)
	_ Subscriber = (*Client)(nil)
)

// Dial connects to the upstream node, retrying with backoff until
// a connection is established or ctx is done
func Dial(ctx context.Context, config Config, logger *logging.ServiceLogger) (*Client, error) {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultRequestTimeout
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.SubscriptionBufferSize <= 0 {
		config.SubscriptionBufferSize = DefaultSubscriptionBufferSize
	}

	clientCtx, cancel := context.WithCancel(context.Background())

	client := &Client{
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout: config.DialTimeout,
		},
		ctx:           clientCtx,
		cancel:        cancel,
		ready:         make(chan struct{}),
		pending:       make(map[uint64]*pendingCall),
		subs:          make(map[string]*subscription),
		ServiceLogger: logger,
	}

	if err := client.connect(ctx, backoff.DefaultMaxElapsedTime); err != nil {
		cancel()
		return nil, fmt.Errorf("error %w connecting to upstream %s", err, config.URL)
	}

	return client, nil
}

// connect dials until a connection is attached, ctx is done or
// maxElapsed passes (0 retries forever)
func (c *Client) connect(ctx context.Context, maxElapsed time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = reconnectInitialInterval
	b.MaxInterval = reconnectMaxInterval
	b.MaxElapsedTime = maxElapsed

	var lastErr error
	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return nil
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
		defer cancel()

		conn, _, err := c.dialer.DialContext(attemptCtx, c.config.URL, nil)
		if err != nil {
			lastErr = err
			c.Logger.Debug().
				Str("url", c.config.URL).
				Err(err).
				Msg("error dialing upstream")
			return err
		}

		c.attach(conn)
		return nil
	}, backoff.WithContext(b, ctx))

	if ctx.Err() != nil {
		if lastErr != nil {
			return fmt.Errorf("%w: %s", ctx.Err(), lastErr)
		}
		return ctx.Err()
	}

	return err
}

func (c *Client) attach(conn *websocket.Conn) {
	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	close(c.ready)
	c.mu.Unlock()

	c.Logger.Info().Str("url", c.config.URL).Msg("connected to upstream")

	c.wg.Add(1)
	go c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.Logger.Error().
			Err(err).
			Str("message", string(data)).
			Msg("error decoding upstream message")
		return
	}

	switch {
	case msg.isResponse():
		c.handleResponse(&msg)
	case msg.isNotification():
		c.handleNotification(&msg)
	default:
		c.Logger.Debug().Str("message", string(data)).Msg("ignoring unexpected upstream message")
	}
}

func (c *Client) handleResponse(msg *message) {
	id, err := msg.requestID()
	if err != nil {
		c.Logger.Debug().Str("id", string(msg.ID)).Msg("ignoring upstream response with foreign id")
		return
	}

	c.mu.Lock()
	call, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		c.Logger.Trace().Uint64("id", id).Msg("ignoring upstream response for unknown request")
		return
	}
	delete(c.pending, id)

	result := callResult{result: msg.Result}
	if msg.Error != nil {
		result = callResult{err: msg.Error}
	}

	var cancelSubscription *subscription
	if call.sub != nil && result.err == nil {
		key := subscriptionKey(msg.Result)
		switch {
		case key == "" || key == "null":
			result = callResult{err: fmt.Errorf("%w: %s", ErrInvalidSubscriptionID, string(msg.Result))}
		case call.abandoned:
			call.sub.id, call.sub.key = msg.Result, key
			cancelSubscription = call.sub
		default:
			// registered before the caller sees the id so no notification is missed
			call.sub.id, call.sub.key = msg.Result, key
			c.subs[key] = call.sub
		}
	}
	c.mu.Unlock()

	if cancelSubscription != nil {
		go c.unsubscribeUpstream(cancelSubscription.unsubscribe, cancelSubscription.id)
		return
	}

	call.done <- result
}

func (c *Client) handleNotification(msg *message) {
	key := subscriptionKey(msg.Params.Subscription)

	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[key]
	if !ok {
		c.Logger.Trace().Str("subscription", key).Msg("ignoring notification for unknown subscription")
		return
	}

	if sub.deliver(msg.Params.Result) {
		return
	}

	c.Logger.Error().
		Str("method", msg.Method).
		Str("subscription", key).
		Int("buffer_size", c.config.SubscriptionBufferSize).
		Msg("subscription consumer fell behind, terminating subscription")

	delete(c.subs, key)
	sub.finish(ErrSubscriptionQueueOverflow)
	go c.unsubscribeUpstream(sub.unsubscribe, sub.id)
}

func (c *Client) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.ready = make(chan struct{})

	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)

	lost := fmt.Errorf("%w: %s", ErrConnectionLost, cause)
	for key, sub := range c.subs {
		sub.finish(lost)
		delete(c.subs, key)
	}
	c.mu.Unlock()

	conn.Close()

	for _, call := range pending {
		if !call.abandoned {
			call.done <- callResult{err: lost}
		}
	}

	if c.ctx.Err() != nil {
		return
	}

	c.Logger.Error().
		Err(cause).
		Int("pending_calls", len(pending)).
		Msg("lost upstream connection, reconnecting")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if err := c.connect(c.ctx, 0); err != nil && c.ctx.Err() == nil {
			c.Logger.Error().Err(err).Msg("giving up reconnecting to upstream")
		}
	}()
}

// waitConnected returns the current connection, waiting for
// a reconnect in progress until ctx is done
func (c *Client) waitConnected(ctx context.Context) (*websocket.Conn, error) {
	for {
		if c.ctx.Err() != nil {
			return nil, ErrClosed
		}

		c.mu.Lock()
		conn, ready := c.conn, c.ready
		c.mu.Unlock()

		if conn != nil {
			return conn, nil
		}

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrNotConnected, ctx.Err())
		case <-c.ctx.Done():
			return nil, ErrClosed
		}
	}
}

func (c *Client) withRequestTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}

func (c *Client) send(ctx context.Context, method string, params []json.RawMessage, sub *subscription) (json.RawMessage, error) {
	conn, err := c.waitConnected(ctx)
	if err != nil {
		return nil, err
	}

	if params == nil {
		params = []json.RawMessage{}
	}

	id := c.nextID.Add(1)
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, err
	}

	call := &pendingCall{
		done: make(chan callResult, 1),
		sub:  sub,
	}

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return nil, ErrConnectionLost
	}
	c.pending[id] = call
	c.mu.Unlock()

	c.Logger.Trace().
		Uint64("id", id).
		Str("method", method).
		Msg("sending upstream request")

	c.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	err = conn.WriteMessage(websocket.TextMessage, body)
	c.writeMu.Unlock()

	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrConnectionLost, err)
	}

	select {
	case result := <-call.done:
		return result.result, result.err
	case <-ctx.Done():
		c.mu.Lock()
		if _, stillPending := c.pending[id]; stillPending {
			if sub == nil {
				delete(c.pending, id)
			} else {
				call.abandoned = true
			}
			c.mu.Unlock()
			return nil, ctx.Err()
		}
		c.mu.Unlock()

		// the response raced the cancellation
		result := <-call.done
		if sub != nil && result.err == nil {
			sub.Unsubscribe()
		}
		if result.err != nil {
			return nil, result.err
		}
		return nil, ctx.Err()
	}
}

// Call sends method with params upstream and returns the result verbatim.
// A JSON-RPC error returned by the node is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params []json.RawMessage) (json.RawMessage, error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	return c.send(ctx, method, params, nil)
}

// Subscribe opens an upstream subscription, returning once the node confirmed it
func (c *Client) Subscribe(ctx context.Context, subscribe, unsubscribe string, params []json.RawMessage) (Subscription, error) {
	ctx, cancel := c.withRequestTimeout(ctx)
	defer cancel()

	sub := newSubscription(c, unsubscribe, c.config.SubscriptionBufferSize)

	if _, err := c.send(ctx, subscribe, params, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

func (c *Client) unsubscribeUpstream(method string, id json.RawMessage) {
	ctx, cancel := context.WithTimeout(c.ctx, c.config.RequestTimeout)
	defer cancel()

	if _, err := c.send(ctx, method, []json.RawMessage{id}, nil); err != nil {
		c.Logger.Debug().
			Str("method", method).
			Str("subscription", string(id)).
			Err(err).
			Msg("error cancelling upstream subscription")
	}
}

// Healthcheck returns an error when the client is not currently connected
func (c *Client) Healthcheck(ctx context.Context) error {
	c.mu.Lock()
	connected := c.conn != nil
	c.mu.Unlock()

	if c.ctx.Err() != nil {
		return ErrClosed
	}
	if !connected {
		return ErrNotConnected
	}
	return nil
}

// Close ends every subscription, fails every pending call
// and closes the connection
func (c *Client) Close() error {
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.ready = make(chan struct{})

	pending := c.pending
	c.pending = make(map[uint64]*pendingCall)

	for key, sub := range c.subs {
		sub.finish(nil)
		delete(c.subs, key)
	}
	c.mu.Unlock()

	for _, call := range pending {
		if !call.abandoned {
			call.done <- callResult{err: ErrClosed}
		}
	}

	var err error
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.writeMu.Unlock()
		err = conn.Close()
	}

	c.wg.Wait()

	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}
