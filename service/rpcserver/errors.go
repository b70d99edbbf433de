package rpcserver

import (
	"errors"

	"github.com/kava-labs/kava-rpc-gateway/clients/upstream"
	"github.com/kava-labs/kava-rpc-gateway/service/middleware"
)

// JSON-RPC 2.0 error codes
// https://www.jsonrpc.org/specification#error_object
const (
	ParseErrorCode     = -32700
	InvalidRequestCode = -32600
	MethodNotFoundCode = -32601
	InvalidParamsCode  = -32602
	InternalErrorCode  = -32603
)

var (
	ErrRegistrationClosed = errors.New("methods can not be registered once the server is serving")
	ErrAlreadyRegistered  = errors.New("method already registered")
	ErrUnknownMethod      = errors.New("unknown method")
	ErrSinkClosed         = errors.New("subscription closed")
)

// ErrorObject is the error member of a JSON-RPC response
type ErrorObject struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func newErrorObject(code int, message string) *ErrorObject {
	return &ErrorObject{Code: code, Message: message}
}

// errorObjectFor converts an error returned by a handler into the error
// member of the response. Upstream errors keep their code, message and data.
func errorObjectFor(err error) *ErrorObject {
	var rpcErr *upstream.Error
	if errors.As(err, &rpcErr) {
		return &ErrorObject{
			Code:    rpcErr.Code,
			Message: rpcErr.Message,
			Data:    rpcErr.ErrorData(),
		}
	}

	object := &ErrorObject{
		Code:    middleware.CodeOf(err),
		Message: err.Error(),
	}

	var dataErr middleware.DataError
	if errors.As(err, &dataErr) {
		object.Data = dataErr.ErrorData()
	}

	return object
}
