// package rpcserver serves the methods and subscriptions of the gateway
// as JSON-RPC 2.0 over http POST and websocket connections
package rpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kava-labs/kava-rpc-gateway/decode"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service/submdw"
)

const (
	maxMessageBytes = 10 * 1024 * 1024
	writeTimeout    = 10 * time.Second
)

// MethodHandler answers a call with its positional params
type MethodHandler func(ctx context.Context, params []json.RawMessage) (json.RawMessage, error)

// SubscriptionHandler opens a subscription whose items are sent to sink.
// It returns once the subscription is established, the server answers the
// subscribe call with the subscription id and only then lets items through.
type SubscriptionHandler func(ctx context.Context, params []json.RawMessage, sink submdw.Sink) error

type methodKind int

const (
	callMethod methodKind = iota
	subscribeMethod
	unsubscribeMethod
)

// method is a registered name, aliases share the method of the name they alias
type method struct {
	name         string
	kind         methodKind
	call         MethodHandler
	subscribe    SubscriptionHandler
	notification string
	unsubscribe  string
}

// Config contains the values a Server is created with
type Config struct {
	MaxConnections int
}

// Server is a JSON-RPC server. Methods are registered before it starts
// serving, the method table is read only afterwards.
type Server struct {
	mu      sync.Mutex
	frozen  bool
	methods map[string]*method
	names   []string

	mux            *http.ServeMux
	handler        http.Handler
	upgrader       websocket.Upgrader
	maxConnections int64
	connections    atomic.Int64

	connMu sync.Mutex
	conns  map[*wsConn]struct{}

	httpServer *http.Server
	shutdown   bool
	*logging.ServiceLogger
}

// New returns a Server accepting up to config.MaxConnections websocket connections
func New(config Config, logger *logging.ServiceLogger) *Server {
	return &Server{
		methods: make(map[string]*method),
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		maxConnections: int64(config.MaxConnections),
		conns:          make(map[*wsConn]struct{}),
		ServiceLogger:  logger,
	}
}

// RegisterMethod exposes handler under name
func (s *Server) RegisterMethod(name string, handler MethodHandler) error {
	return s.register(name, &method{name: name, kind: callMethod, call: handler})
}

// RegisterSubscription exposes a subscription opened by calling subscribe,
// pushing items as notifications named notification and ended by calling
// unsubscribe with the subscription id
func (s *Server) RegisterSubscription(subscribe, notification, unsubscribe string, handler SubscriptionHandler) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRegistrable(subscribe); err != nil {
		return err
	}
	if subscribe == unsubscribe {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, unsubscribe)
	}
	if err := s.checkRegistrable(unsubscribe); err != nil {
		return err
	}

	s.add(subscribe, &method{
		name:         subscribe,
		kind:         subscribeMethod,
		subscribe:    handler,
		notification: notification,
		unsubscribe:  unsubscribe,
	})
	s.add(unsubscribe, &method{
		name: unsubscribe,
		kind: unsubscribeMethod,
	})

	return nil
}

// RegisterAlias exposes the already registered name existing under alias
func (s *Server) RegisterAlias(alias, existing string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRegistrable(alias); err != nil {
		return err
	}

	m, exists := s.methods[existing]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownMethod, existing)
	}

	s.add(alias, m)

	return nil
}

func (s *Server) register(name string, m *method) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkRegistrable(name); err != nil {
		return err
	}

	s.add(name, m)

	return nil
}

// checkRegistrable must be called with s.mu held
func (s *Server) checkRegistrable(name string) error {
	if s.frozen {
		return ErrRegistrationClosed
	}
	if _, exists := s.methods[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	return nil
}

func (s *Server) add(name string, m *method) {
	s.methods[name] = m
	s.names = append(s.names, name)
}

// Methods returns every registered name, aliases included, in registration order
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.names...)
}

// HandleFunc registers an http handler for pattern next to the JSON-RPC endpoint
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Handler returns the http handler serving JSON-RPC on "/" and the handlers
// registered with HandleFunc. No methods can be registered afterwards.
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.frozen {
		s.frozen = true
		s.mux.HandleFunc("/", s.serveRPC)
		s.handler = createRequestLoggingMiddleware(s.mux, s.ServiceLogger)
	}

	return s.handler
}

// Serve accepts connections on listener until Shutdown is called,
// it always returns a non nil error
func (s *Server) Serve(listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.connMu.Lock()
	if s.shutdown {
		s.connMu.Unlock()
		listener.Close()
		return http.ErrServerClosed
	}
	s.httpServer = server
	s.connMu.Unlock()

	s.Logger.Info().Str("address", listener.Addr().String()).Msg("rpc server listening")

	return server.Serve(listener)
}

// ListenAndServe listens on addr and serves until Shutdown is called
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown stops accepting connections, closes every websocket connection
// and waits for in flight http requests until ctx is done
func (s *Server) Shutdown(ctx context.Context) error {
	s.connMu.Lock()
	s.shutdown = true
	server := s.httpServer
	conns := make([]*wsConn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.connMu.Unlock()

	for _, conn := range conns {
		conn.close()
	}

	if server == nil {
		return nil
	}

	err := server.Shutdown(ctx)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) serveRPC(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebsocket(w, r)
		return
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "json-rpc requests must be POSTed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		s.Logger.Debug().Err(err).Msg("error reading request body")
		writeJSON(w, http.StatusOK, mustMarshal(errorResponse(nil, newErrorObject(ParseErrorCode, "Parse error"))))
		return
	}

	res, afterWrite := s.handleMessage(r.Context(), body, nil)
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, res)

	for _, callback := range afterWrite {
		callback()
	}
}

// handleMessage answers a single request or a batch received from a client,
// conn is nil for http requests. A nil result means nothing is written back.
func (s *Server) handleMessage(ctx context.Context, body []byte, conn *wsConn) ([]byte, []func()) {
	if !json.Valid(body) {
		return mustMarshal(errorResponse(nil, newErrorObject(ParseErrorCode, "Parse error"))), nil
	}

	handler := func(ctx context.Context, raw json.RawMessage) (*response, func()) {
		return s.handleRequest(ctx, raw, conn)
	}

	if !decode.IsBatch(body) {
		res, afterWrite := handler(ctx, body)
		var callbacks []func()
		if afterWrite != nil {
			callbacks = append(callbacks, afterWrite)
		}
		if res == nil {
			return nil, callbacks
		}
		return mustMarshal(res), callbacks
	}

	requests, err := decode.DecodeRPCRequestBatch(body)
	if err != nil {
		return mustMarshal(errorResponse(nil, newErrorObject(InvalidRequestCode, "Invalid request: "+err.Error()))), nil
	}

	responses, callbacks := NewBatchProcessor(handler, requests).Process(ctx)
	if len(responses) == 0 {
		return nil, callbacks
	}

	return mustMarshal(responses), callbacks
}

// handleRequest answers one request, returning nil for notifications
func (s *Server) handleRequest(ctx context.Context, raw json.RawMessage, conn *wsConn) (*response, func()) {
	req, err := decode.DecodeRPCRequest(raw)
	if err != nil {
		return errorResponse(nil, newErrorObject(InvalidRequestCode, "Invalid request")), nil
	}
	if err := req.Validate(); err != nil {
		return errorResponse(req.ID, newErrorObject(InvalidRequestCode, "Invalid request: "+err.Error())), nil
	}

	res, afterWrite := s.dispatch(ctx, req, conn)
	if req.IsNotification() {
		return nil, afterWrite
	}

	return res, afterWrite
}

func (s *Server) dispatch(ctx context.Context, req *decode.RPCRequestEnvelope, conn *wsConn) (*response, func()) {
	// the method table is read only once frozen
	m, exists := s.methods[req.Method]
	if !exists {
		return errorResponse(req.ID, newErrorObject(MethodNotFoundCode, "Method not found")), nil
	}

	params, err := decode.ParseParams(req.Params)
	if err != nil {
		return errorResponse(req.ID, newErrorObject(InvalidParamsCode, err.Error())), nil
	}

	s.Logger.Trace().Str("method", req.Method).Msg("handling request")

	switch m.kind {
	case callMethod:
		result, err := m.call(ctx, params)
		if err != nil {
			s.Logger.Debug().Str("method", req.Method).Err(err).Msg("call failed")
			return errorResponse(req.ID, errorObjectFor(err)), nil
		}
		return resultResponse(req.ID, result), nil

	case subscribeMethod:
		if conn == nil {
			return errorResponse(req.ID, newErrorObject(InvalidRequestCode, "subscriptions require a websocket connection")), nil
		}
		return conn.subscribe(ctx, req.ID, m, params)

	case unsubscribeMethod:
		if conn == nil {
			return resultResponse(req.ID, json.RawMessage("false")), nil
		}
		return conn.unsubscribe(req.ID, m, params), nil

	default:
		return errorResponse(req.ID, newErrorObject(InternalErrorCode, "Internal error")), nil
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxMessageBytes))
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// mustMarshal encodes values built from already valid json
func mustMarshal(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("error %s encoding response", err))
	}
	return data
}
