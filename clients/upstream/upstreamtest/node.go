// package upstreamtest provides an in process websocket JSON-RPC node
// for testing code that talks to the upstream
package upstreamtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
)

// Handler answers one call, returning either a result or an error
type Handler func(params []json.RawMessage) (json.RawMessage, *upstream.Error)

// Call is a request received by the node
type Call struct {
	Method string
	Params []json.RawMessage
}

type nodeConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *nodeConn) write(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Node is a fake upstream node served over websocket
type Node struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu                 sync.Mutex
	handlers           map[string]Handler
	subscribeMethods   map[string]bool
	unsubscribeMethods map[string]bool
	calls              []Call
	conns              map[*nodeConn]bool
	subscriptions      map[string]*nodeConn
	unsubscribed       []string
	nextSub            int

	// receives the id of every subscription opened
	subscribed chan string
}

// NewNode starts a node that is closed when the test ends
func NewNode(t testing.TB) *Node {
	node := &Node{
		handlers:           make(map[string]Handler),
		subscribeMethods:   make(map[string]bool),
		unsubscribeMethods: make(map[string]bool),
		conns:              make(map[*nodeConn]bool),
		subscriptions:      make(map[string]*nodeConn),
		subscribed:         make(chan string, 64),
	}
	node.server = httptest.NewServer(http.HandlerFunc(node.serve))

	t.Cleanup(node.Close)

	return node
}

// URL returns the ws:// url of the node
func (n *Node) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

// Close drops every connection and stops the node
func (n *Node) Close() {
	n.DropConnections()
	n.server.Close()
}

// Handle registers h as the handler of method
func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.handlers[method] = h
}

// HandleResult registers a handler always returning result
func (n *Node) HandleResult(method string, result string) {
	n.Handle(method, func([]json.RawMessage) (json.RawMessage, *upstream.Error) {
		return json.RawMessage(result), nil
	})
}

// HandleSubscription registers a subscription returning ids "sub-1", "sub-2", ...
// unsubscribe answers true for a known id and false otherwise
func (n *Node) HandleSubscription(subscribe, unsubscribe string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.subscribeMethods[subscribe] = true
	n.unsubscribeMethods[unsubscribe] = true
}

// Calls returns every call received for method, in arrival order
func (n *Node) Calls(method string) []Call {
	n.mu.Lock()
	defer n.mu.Unlock()

	var calls []Call
	for _, call := range n.calls {
		if call.Method == method {
			calls = append(calls, call)
		}
	}
	return calls
}

// Unsubscribed returns the ids of every subscription cancelled by a client
func (n *Node) Unsubscribed() []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	return append([]string(nil), n.unsubscribed...)
}

// WaitForSubscription returns the id of the next subscription opened
func (n *Node) WaitForSubscription(t testing.TB, timeout time.Duration) string {
	t.Helper()

	select {
	case id := <-n.subscribed:
		return id
	case <-time.After(timeout):
		t.Fatalf("no subscription opened within %s", timeout)
		return ""
	}
}

// Notify pushes result to the client owning subscription id
func (n *Node) Notify(id, method string, result json.RawMessage) error {
	n.mu.Lock()
	conn, ok := n.subscriptions[id]
	n.mu.Unlock()

	if !ok {
		return fmt.Errorf("unknown subscription %s", id)
	}

	return conn.write(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  method,
		"params": map[string]interface{}{
			"subscription": id,
			"result":       result,
		},
	})
}

// DropConnections closes every client connection without a close handshake
func (n *Node) DropConnections() {
	n.mu.Lock()
	conns := n.conns
	n.conns = make(map[*nodeConn]bool)
	n.subscriptions = make(map[string]*nodeConn)
	n.mu.Unlock()

	for conn := range conns {
		conn.ws.Close()
	}
}

// Connections returns the number of open client connections
func (n *Node) Connections() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.conns)
}

type nodeRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type nodeResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *upstream.Error `json:"error,omitempty"`
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	ws, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	conn := &nodeConn{ws: ws}

	n.mu.Lock()
	n.conns[conn] = true
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.conns, conn)
		n.mu.Unlock()
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var req nodeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}

		response, subscriptionID := n.answer(conn, req)
		if err := conn.write(response); err != nil {
			return
		}

		if subscriptionID != "" {
			n.subscribed <- subscriptionID
		}
	}
}

// answer handles req, returning the response and the id of the subscription it opened (if any)
func (n *Node) answer(conn *nodeConn, req nodeRequest) (nodeResponse, string) {
	response := nodeResponse{JSONRPC: "2.0", ID: req.ID}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, Call{Method: req.Method, Params: req.Params})

	if n.subscribeMethods[req.Method] {
		n.nextSub++
		id := fmt.Sprintf("sub-%d", n.nextSub)
		n.subscriptions[id] = conn
		response.Result = json.RawMessage(`"` + id + `"`)
		return response, id
	}

	if n.unsubscribeMethods[req.Method] {
		var id string
		if len(req.Params) > 0 {
			_ = json.Unmarshal(req.Params[0], &id)
		}
		_, known := n.subscriptions[id]
		delete(n.subscriptions, id)
		if known {
			n.unsubscribed = append(n.unsubscribed, id)
		}
		response.Result = json.RawMessage(fmt.Sprintf("%t", known))
		return response, ""
	}

	handler, ok := n.handlers[req.Method]
	if !ok {
		response.Error = &upstream.Error{Code: -32601, Message: "Method not found"}
		return response, ""
	}

	result, rpcErr := handler(req.Params)
	if rpcErr != nil {
		response.Error = rpcErr
		return response, ""
	}
	response.Result = result

	return response, ""
}
