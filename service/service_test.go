package service_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kava-labs/kava-rpc-gateway/clients/upstream/upstreamtest"
	"github.com/kava-labs/kava-rpc-gateway/config"
	"github.com/kava-labs/kava-rpc-gateway/logging"
	"github.com/kava-labs/kava-rpc-gateway/service"
)

const (
	waitTimeout = 5 * time.Second

	testRPCConfig = `
server:
  port: 9944
rpcs:
  methods:
    - method: system_health
    - method: getBalance
      cache: 2
    - method: state_getStorage
      with_block_hash: 1
  subscriptions:
    - name: chain_newHead
      subscribe: chain_subscribeNewHeads
      unsubscribe: chain_unsubscribeNewHeads
  aliases:
    - [system_health, health]
    - [chain_unsubscribeNewHeads, chain_unsubscribeNewHead]
`
	testBlockHash = "0x0102030405060708091011121314151617181920212223242526272829303132"
)

var testDefaultContext = context.TODO()

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Method string `json:"method"`
	Params struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

func newTestConfig(upstreamURL string) config.Config {
	return config.Config{
		LogLevel:                       "ERROR",
		UpstreamURL:                    upstreamURL,
		UpstreamRequestTimeout:         waitTimeout,
		UpstreamDialTimeout:            waitTimeout,
		UpstreamSubscriptionBufferSize: 16,
		ChainStateFlavor:               "substrate",
		CacheBackend:                   config.CacheBackendMemory,
		CachePrefix:                    "test",
	}
}

// startGateway serves a gateway backed by node on a random local port,
// returning its address
func startGateway(t *testing.T, node *upstreamtest.Node) (*service.GatewayService, string) {
	t.Helper()

	rpcConfig, err := config.ParseRPCConfig([]byte(testRPCConfig))
	require.NoError(t, err)

	gateway, err := service.New(testDefaultContext, newTestConfig(node.URL()), rpcConfig, logging.Nop())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() {
		served <- gateway.Serve(testDefaultContext, listener)
	}()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(testDefaultContext, waitTimeout)
		defer cancel()

		assert.NoError(t, gateway.Shutdown(ctx))
		assert.NoError(t, <-served)
	})

	return gateway, listener.Addr().String()
}

func postRPC(t *testing.T, addr string, body string) rpcResponse {
	t.Helper()

	res, err := http.Post("http://"+addr, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var response rpcResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&response))
	return response
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	res, err := http.Get(url)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	return res.StatusCode, string(body)
}

func TestUnitTestNewRejectsInvalidConfig(t *testing.T) {
	rpcConfig, err := config.ParseRPCConfig([]byte(testRPCConfig))
	require.NoError(t, err)

	_, err = service.New(testDefaultContext, newTestConfig("http://localhost:9944"), rpcConfig, logging.Nop())
	require.Error(t, err)

	rpcConfig.RPCs.Aliases = append(rpcConfig.RPCs.Aliases, config.Alias{Old: "missing", New: "other"})
	_, err = service.New(testDefaultContext, newTestConfig("ws://localhost:9944"), rpcConfig, logging.Nop())
	require.Error(t, err)
}

func TestUnitTestGatewayForwardsCallsAndAliases(t *testing.T) {
	node := upstreamtest.NewNode(t)
	node.HandleResult("system_health", `{"peers":3,"isSyncing":false}`)
	_, addr := startGateway(t, node)

	res := postRPC(t, addr, `{"jsonrpc":"2.0","id":1,"method":"system_health","params":[]}`)
	require.Nil(t, res.Error)
	require.JSONEq(t, `{"peers":3,"isSyncing":false}`, string(res.Result))

	aliased := postRPC(t, addr, `{"jsonrpc":"2.0","id":2,"method":"health","params":[]}`)
	require.Nil(t, aliased.Error)
	require.JSONEq(t, string(res.Result), string(aliased.Result))
	require.JSONEq(t, `2`, string(aliased.ID))

	// upstream only ever sees the configured name
	require.Len(t, node.Calls("system_health"), 2)
	require.Empty(t, node.Calls("health"))

	unknown := postRPC(t, addr, `{"jsonrpc":"2.0","id":3,"method":"author_submitExtrinsic","params":[]}`)
	require.NotNil(t, unknown.Error)
	require.Equal(t, -32601, unknown.Error.Code)
}

func TestUnitTestGatewayListsRPCMethods(t *testing.T) {
	node := upstreamtest.NewNode(t)
	_, addr := startGateway(t, node)

	res := postRPC(t, addr, `{"jsonrpc":"2.0","id":1,"method":"rpc_methods","params":[]}`)
	require.Nil(t, res.Error)

	var methods service.RPCMethodsResponse
	require.NoError(t, json.Unmarshal(res.Result, &methods))
	require.Equal(t, []string{
		"system_health",
		"getBalance",
		"state_getStorage",
		"chain_subscribeNewHeads",
		"chain_unsubscribeNewHeads",
		"health",
		"chain_unsubscribeNewHead",
	}, methods.Methods)
}

func TestUnitTestGatewayCachesResults(t *testing.T) {
	node := upstreamtest.NewNode(t)
	node.HandleResult("getBalance", `"0x10"`)
	_, addr := startGateway(t, node)

	for _, account := range []string{"alice", "bob", "carol"} {
		for i := 0; i < 2; i++ {
			res := postRPC(t, addr, `{"jsonrpc":"2.0","id":1,"method":"getBalance","params":["`+account+`"]}`)
			require.Nil(t, res.Error)
			require.JSONEq(t, `"0x10"`, string(res.Result))
		}
	}

	require.Len(t, node.Calls("getBalance"), 3)
}

func TestUnitTestGatewayInjectsBlockHash(t *testing.T) {
	node := upstreamtest.NewNode(t)
	node.HandleResult("chain_getBlockHash", `"`+testBlockHash+`"`)
	node.HandleResult("state_getStorage", `"0xff"`)
	_, addr := startGateway(t, node)

	res := postRPC(t, addr, `{"jsonrpc":"2.0","id":1,"method":"state_getStorage","params":["0x26aa"]}`)
	require.Nil(t, res.Error)
	require.JSONEq(t, `"0xff"`, string(res.Result))

	calls := node.Calls("state_getStorage")
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Params, 2)
	require.JSONEq(t, `"0x26aa"`, string(calls[0].Params[0]))
	require.JSONEq(t, `"`+testBlockHash+`"`, string(calls[0].Params[1]))
}

func TestUnitTestGatewayRelaysSubscriptions(t *testing.T) {
	node := upstreamtest.NewNode(t)
	node.HandleSubscription("chain_subscribeNewHeads", "chain_unsubscribeNewHeads")
	_, addr := startGateway(t, node)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() rpcResponse {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitTimeout)))
		var res rpcResponse
		require.NoError(t, conn.ReadJSON(&res))
		return res
	}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":1,"method":"chain_subscribeNewHeads","params":[]}`)))

	subscribed := read()
	require.Nil(t, subscribed.Error)
	var subscriptionID string
	require.NoError(t, json.Unmarshal(subscribed.Result, &subscriptionID))

	upstreamID := node.WaitForSubscription(t, waitTimeout)
	for _, head := range []string{`{"number":"0x1"}`, `{"number":"0x2"}`, `{"number":"0x3"}`} {
		require.NoError(t, node.Notify(upstreamID, "chain_newHead", json.RawMessage(head)))

		item := read()
		require.Equal(t, "chain_newHead", item.Method)
		require.Equal(t, subscriptionID, item.Params.Subscription)
		require.JSONEq(t, head, string(item.Params.Result))
	}

	// unsubscribe through the alias
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"jsonrpc":"2.0","id":2,"method":"chain_unsubscribeNewHead","params":["`+subscriptionID+`"]}`)))
	unsubscribed := read()
	require.Nil(t, unsubscribed.Error)
	require.JSONEq(t, `true`, string(unsubscribed.Result))

	require.Eventually(t, func() bool {
		return len(node.Unsubscribed()) == 1
	}, waitTimeout, 10*time.Millisecond)
	require.Equal(t, []string{upstreamID}, node.Unsubscribed())
}

func TestUnitTestGatewaySubscribeOverHTTPIsRejected(t *testing.T) {
	node := upstreamtest.NewNode(t)
	node.HandleSubscription("chain_subscribeNewHeads", "chain_unsubscribeNewHeads")
	_, addr := startGateway(t, node)

	res := postRPC(t, addr, `{"jsonrpc":"2.0","id":1,"method":"chain_subscribeNewHeads","params":[]}`)
	require.NotNil(t, res.Error)
	require.Equal(t, -32600, res.Error.Code)
}

func TestUnitTestGatewayHealthEndpoints(t *testing.T) {
	node := upstreamtest.NewNode(t)
	_, addr := startGateway(t, node)

	status, body := get(t, "http://"+addr+service.ServicecheckPath)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "gateway is in service", body)

	status, body = get(t, "http://"+addr+service.HealthcheckPath)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "gateway is healthy", body)

	client, err := service.NewGatewayClient(service.GatewayClientConfig{GatewayHostname: "http://" + addr})
	require.NoError(t, err)
	require.NoError(t, client.Healthcheck(testDefaultContext))
}

func TestUnitTestGatewayMethodsStatus(t *testing.T) {
	node := upstreamtest.NewNode(t)
	node.HandleResult("getBalance", `"0x10"`)
	_, addr := startGateway(t, node)

	postRPC(t, addr, `{"jsonrpc":"2.0","id":1,"method":"getBalance","params":["alice"]}`)

	client, err := service.NewGatewayClient(service.GatewayClientConfig{GatewayHostname: "http://" + addr})
	require.NoError(t, err)

	status, err := client.GetMethodsStatus(testDefaultContext)
	require.NoError(t, err)

	require.Len(t, status.Methods, 3)
	require.Equal(t, "getBalance", status.Methods[1].Name)
	require.Equal(t, 2, status.Methods[1].CacheSize)
	require.NotNil(t, status.Methods[1].CachedEntries)
	require.Equal(t, 1, *status.Methods[1].CachedEntries)

	require.Equal(t, "state_getStorage", status.Methods[2].Name)
	require.Equal(t, []string{"block_hash@1"}, status.Methods[2].Injections)
	require.Nil(t, status.Methods[2].CachedEntries)

	require.Equal(t, []service.SubscriptionStatus{{
		Name:        "chain_newHead",
		Subscribe:   "chain_subscribeNewHeads",
		Unsubscribe: "chain_unsubscribeNewHeads",
	}}, status.Subscriptions)
	require.Equal(t, map[string]string{
		"health":                   "system_health",
		"chain_unsubscribeNewHead": "chain_unsubscribeNewHeads",
	}, status.Aliases)
}

func TestUnitTestGatewayClientReportsUnhealthyGateway(t *testing.T) {
	node := upstreamtest.NewNode(t)
	gateway, addr := startGateway(t, node)

	// a closed upstream client fails the healthcheck
	require.NoError(t, gateway.Upstream.Close())

	client, err := service.NewGatewayClient(service.GatewayClientConfig{GatewayHostname: "http://" + addr, Timeout: waitTimeout})
	require.NoError(t, err)

	err = client.Healthcheck(testDefaultContext)
	var requestErr *service.RequestError
	require.ErrorAs(t, err, &requestErr)
	require.Equal(t, http.StatusInternalServerError, requestErr.StatusCode)
}
