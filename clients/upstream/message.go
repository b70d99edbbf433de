package upstream

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type request struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      uint64            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// message is any frame the upstream node sends: a response
// carries an id, a subscription notification carries method and params
type message struct {
	JSONRPC string              `json:"jsonrpc"`
	ID      json.RawMessage     `json:"id,omitempty"`
	Method  string              `json:"method,omitempty"`
	Params  *notificationParams `json:"params,omitempty"`
	Result  json.RawMessage     `json:"result,omitempty"`
	Error   *Error              `json:"error,omitempty"`
}

type notificationParams struct {
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

func (m *message) isResponse() bool {
	return len(m.ID) > 0 && !bytes.Equal(m.ID, []byte("null"))
}

func (m *message) isNotification() bool {
	return !m.isResponse() && m.Method != "" && m.Params != nil
}

func (m *message) requestID() (uint64, error) {
	return strconv.ParseUint(string(bytes.Trim(m.ID, `" `)), 10, 64)
}

// subscriptionKey normalises a subscription id so the value returned by a
// subscribe call matches the one carried by notifications
func subscriptionKey(id json.RawMessage) string {
	return string(bytes.TrimSpace(id))
}
