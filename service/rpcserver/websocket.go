package rpcserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kava-labs/kava-rpc-gateway/decode"
	"github.com/kava-labs/kava-rpc-gateway/service/submdw"
)

// wsConn is a client websocket connection. Messages are handled concurrently,
// writes are serialized.
type wsConn struct {
	server *Server
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu            sync.Mutex
	subscriptions map[string]*sink

	closeOnce sync.Once
	handlers  sync.WaitGroup
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.connections.Add(1) > s.maxConnections {
		s.connections.Add(-1)
		s.Logger.Debug().Int64("max_connections", s.maxConnections).Msg("rejecting websocket connection")
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	defer s.connections.Add(-1)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader already answered the client
		s.Logger.Debug().Err(err).Msg("error upgrading websocket connection")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		server:        s,
		conn:          conn,
		ctx:           ctx,
		cancel:        cancel,
		subscriptions: make(map[string]*sink),
	}

	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()

	c.readLoop()

	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

func (c *wsConn) readLoop() {
	defer func() {
		c.close()
		c.handlers.Wait()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.server.Logger.Debug().Err(err).Msg("websocket connection closed")
			}
			return
		}

		c.handlers.Add(1)
		go func() {
			defer c.handlers.Done()

			res, afterWrite := c.server.handleMessage(c.ctx, data, c)
			if res != nil {
				if err := c.write(res); err != nil {
					c.server.Logger.Debug().Err(err).Msg("error writing response")
				}
			}

			for _, callback := range afterWrite {
				callback()
			}
		}()
	}
}

func (c *wsConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// close ends every subscription of the connection and closes it
func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		sinks := make([]*sink, 0, len(c.subscriptions))
		for _, s := range c.subscriptions {
			sinks = append(sinks, s)
		}
		c.mu.Unlock()

		for _, s := range sinks {
			s.Close()
		}

		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()

		c.conn.Close()
	})
}

func (c *wsConn) subscribe(ctx context.Context, id json.RawMessage, m *method, params []json.RawMessage) (*response, func()) {
	s := &sink{
		id:           uuid.New().String(),
		notification: m.notification,
		unsubscribe:  m.unsubscribe,
		conn:         c,
		ready:        make(chan struct{}),
		closed:       make(chan struct{}),
	}

	c.mu.Lock()
	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return errorResponse(id, newErrorObject(InternalErrorCode, "connection closed")), nil
	}
	c.subscriptions[s.id] = s
	c.mu.Unlock()

	if err := m.subscribe(ctx, params, s); err != nil {
		s.Close()
		c.server.Logger.Debug().Str("method", m.name).Err(err).Msg("subscribe failed")
		return errorResponse(id, errorObjectFor(err)), nil
	}

	c.server.Logger.Trace().Str("method", m.name).Str("subscription", s.id).Msg("subscription opened")

	return resultResponse(id, mustMarshal(s.id)), s.open
}

func (c *wsConn) unsubscribe(id json.RawMessage, m *method, params []json.RawMessage) *response {
	var subscriptionID string
	if len(params) < 1 || json.Unmarshal(params[0], &subscriptionID) != nil {
		return errorResponse(id, newErrorObject(InvalidParamsCode, decode.ErrInvalidParams.Error()+": expected a subscription id"))
	}

	c.mu.Lock()
	s, exists := c.subscriptions[subscriptionID]
	c.mu.Unlock()

	if !exists || s.unsubscribe != m.name {
		return resultResponse(id, json.RawMessage("false"))
	}

	s.Close()
	c.server.Logger.Trace().Str("method", m.name).Str("subscription", s.id).Msg("subscription closed by client")

	return resultResponse(id, json.RawMessage("true"))
}

func (c *wsConn) removeSubscription(id string) {
	c.mu.Lock()
	delete(c.subscriptions, id)
	c.mu.Unlock()
}

// sink delivers the items of one subscription to the client connection.
// Items are held back until the subscribe call has been answered.
type sink struct {
	id           string
	notification string
	unsubscribe  string
	conn         *wsConn

	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

var _ submdw.Sink = (*sink)(nil)

func (s *sink) open() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// Send implements submdw.Sink
func (s *sink) Send(item json.RawMessage) error {
	select {
	case <-s.ready:
	case <-s.closed:
		return ErrSinkClosed
	}

	select {
	case <-s.closed:
		return ErrSinkClosed
	default:
	}

	return s.conn.write(mustMarshal(notification{
		JSONRPC: decode.JSONRPCVersion,
		Method:  s.notification,
		Params: notificationParams{
			Subscription: s.id,
			Result:       item,
		},
	}))
}

// Closed implements submdw.Sink
func (s *sink) Closed() <-chan struct{} {
	return s.closed
}

// Close implements submdw.Sink
func (s *sink) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.removeSubscription(s.id)
	})
}
