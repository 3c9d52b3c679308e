package rpcerrors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a JSON-RPC / EIP-1193 error code.
type Code int

const (
	CodeParseError        Code = -32700
	CodeInvalidRequest    Code = -32600
	CodeMethodNotFound    Code = -32601
	CodeInvalidParams     Code = -32602
	CodeInternal          Code = -32603
	CodeServerError       Code = -32000
	CodeUserRejected      Code = 4001
	CodeUnauthorized      Code = 4100
	CodeUnsupportedMethod Code = 4200
)

// RPCError is the single error shape surfaced across the request interface,
// regardless of where the failure originated.
type RPCError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// New creates a new RPCError with the given code and message.
func New(code Code, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// Newf creates a new RPCError with a formatted message.
func Newf(code Code, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Normalise wraps any error into an RPCError, preserving an existing RPCError
// anywhere in the chain and falling back to an internal error with the
// original message otherwise.
func Normalise(err error) *RPCError {
	if err == nil {
		return nil
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	return &RPCError{Code: CodeInternal, Message: err.Error()}
}

// HasCode reports whether err carries an RPCError with the given code.
func HasCode(err error, code Code) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return rpcErr.Code == code
	}
	return false
}
