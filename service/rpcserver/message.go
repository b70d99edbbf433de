package rpcserver

import (
	"encoding/json"

	"github.com/kava-labs/kava-rpc-gateway/decode"
)

var nullID = json.RawMessage("null")

// response is a JSON-RPC response object, exactly one of Result and Error is set
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorObject    `json:"error,omitempty"`
}

func resultResponse(id json.RawMessage, result json.RawMessage) *response {
	if len(result) == 0 {
		result = json.RawMessage("null")
	}
	return &response{
		JSONRPC: decode.JSONRPCVersion,
		ID:      responseID(id),
		Result:  result,
	}
}

func errorResponse(id json.RawMessage, object *ErrorObject) *response {
	return &response{
		JSONRPC: decode.JSONRPCVersion,
		ID:      responseID(id),
		Error:   object,
	}
}

func responseID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return nullID
	}
	return id
}

// notification pushes one subscription item to the client
type notification struct {
	JSONRPC string             `json:"jsonrpc"`
	Method  string             `json:"method"`
	Params  notificationParams `json:"params"`
}

type notificationParams struct {
	Subscription string          `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}
