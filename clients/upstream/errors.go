package upstream

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrClosed                    = errors.New("upstream client closed")
	ErrNotConnected              = errors.New("upstream not connected")
	ErrConnectionLost            = errors.New("upstream connection lost")
	ErrSubscriptionQueueOverflow = errors.New("subscription queue overflow")
	ErrInvalidSubscriptionID     = errors.New("upstream returned an invalid subscription id")
)

// Error is a JSON-RPC error object returned by the upstream node,
// it is passed to clients of the gateway unchanged
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("upstream error %d: %s (%s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("upstream error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the JSON-RPC error code
func (e *Error) ErrorCode() int {
	return e.Code
}

// ErrorData returns the raw data member of the error, nil if absent
func (e *Error) ErrorData() interface{} {
	if len(e.Data) == 0 {
		return nil
	}
	return e.Data
}
