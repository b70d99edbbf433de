package middleware

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures produced by the gateway itself,
// upstream JSON-RPC errors are passed through unchanged and have no kind
type ErrorKind int

const (
	InvalidParams ErrorKind = iota + 1
	UpstreamFailure
	ResolutionFailure
	BadConfiguration
)

const (
	invalidParamsCode = -32602
	// call execution failed
	callExecutionFailedCode = -32000
)

func (k ErrorKind) String() string {
	switch k {
	case InvalidParams:
		return "invalid params"
	case UpstreamFailure:
		return "upstream failure"
	case ResolutionFailure:
		return "resolution failure"
	case BadConfiguration:
		return "bad configuration"
	default:
		return "unknown"
	}
}

// Error is a failure of kind Kind returned by a chain
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

// ErrBadConfiguration is returned when a request falls off the end of a chain
// that has no stage answering it
var ErrBadConfiguration = &Error{Kind: BadConfiguration, Message: "Bad configuration"}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrorCode returns the JSON-RPC error code reported for the error
func (e *Error) ErrorCode() int {
	if e.Kind == InvalidParams {
		return invalidParamsCode
	}
	return callExecutionFailedCode
}

// Is reports errors of the same kind as equal
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// NewError returns an error of kind with the formatted message
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError returns an error of kind caused by cause,
// the message is the formatted text followed by the cause
func WrapError(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...) + ": " + cause.Error(),
		Cause:   cause,
	}
}

// KindOf returns the kind of err, 0 if err is not an *Error
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Coder is implemented by errors carrying their own JSON-RPC error code
type Coder interface {
	ErrorCode() int
}

// DataError is implemented by errors carrying JSON-RPC error data
type DataError interface {
	ErrorData() interface{}
}

// CodeOf returns the JSON-RPC error code reported for err,
// errors without a code of their own are call execution failures
func CodeOf(err error) int {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.ErrorCode()
	}
	return callExecutionFailedCode
}
