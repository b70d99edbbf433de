package decode

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// JSONRPCVersion is the only version of the JSON-RPC protocol the gateway speaks
// https://www.jsonrpc.org/specification
const JSONRPCVersion = "2.0"

// Errors that might result from decoding parts or the whole of
// a JSON-RPC request
var (
	ErrEmptyRequest    = errors.New("empty request body")
	ErrEmptyBatch      = errors.New("empty batch")
	ErrInvalidVersion  = fmt.Errorf("jsonrpc version must be %s", JSONRPCVersion)
	ErrMissingMethod   = errors.New("method is required")
	ErrInvalidParams   = errors.New("invalid params")
	ErrNamedParams     = fmt.Errorf("%w: named params are not supported", ErrInvalidParams)
	ErrMalformedParams = fmt.Errorf("%w: params must be an array", ErrInvalidParams)
)

// RPCRequestEnvelope wraps the values present in a single JSON-RPC request.
// ID and Params are kept raw so they can be echoed and forwarded verbatim.
type RPCRequestEnvelope struct {
	JSONRPCVersion string          `json:"jsonrpc"`
	ID             json.RawMessage `json:"id,omitempty"`
	Method         string          `json:"method"`
	Params         json.RawMessage `json:"params,omitempty"`
}

// IsNotification returns true when the request carries no id
// and so expects no response
func (r *RPCRequestEnvelope) IsNotification() bool {
	return len(r.ID) == 0
}

// Validate checks the envelope carries the fields every request must have
func (r *RPCRequestEnvelope) Validate() error {
	if r.JSONRPCVersion != JSONRPCVersion {
		return ErrInvalidVersion
	}
	if r.Method == "" {
		return ErrMissingMethod
	}
	return nil
}

// DecodeRPCRequest attempts to decode the provided bytes into
// a RPCRequestEnvelope, returning the decoded request and error (if any)
func DecodeRPCRequest(body []byte) (*RPCRequestEnvelope, error) {
	var request RPCRequestEnvelope
	err := json.Unmarshal(body, &request)
	return &request, err
}

// DecodeRPCRequestBatch attempts to decode the provided bytes into
// a list of raw requests, each of which can be decoded with DecodeRPCRequest
func DecodeRPCRequestBatch(body []byte) ([]json.RawMessage, error) {
	var batch []json.RawMessage
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return nil, ErrEmptyBatch
	}
	return batch, nil
}

// IsBatch returns true when the body holds a JSON array of requests
func IsBatch(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// ParseParams converts the raw params of a request into a positional list.
// Missing or null params are an empty list, named (object) params are rejected.
func ParseParams(raw json.RawMessage) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []json.RawMessage{}, nil
	}

	switch trimmed[0] {
	case '{':
		return nil, ErrNamedParams
	case '[':
	default:
		return nil, ErrMalformedParams
	}

	var params []json.RawMessage
	if err := json.Unmarshal(trimmed, &params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedParams, err)
	}
	if params == nil {
		params = []json.RawMessage{}
	}

	return params, nil
}
