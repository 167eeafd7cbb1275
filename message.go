//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen/src/model.rs (Negotiate, Message<T>, Error).
//

package nitrogen

import (
	"context"
	"errors"
	"fmt"
)

// Negotiate is the first record exchanged on every new bidirectional
// stream; it selects a service by name. See [readNegotiate] and
// [writeNegotiate].
type Negotiate struct {
	Name string `msgpack:"name"`
}

// Message wraps a correlation id around a typed payload.
//
// ID is assigned by the client side of a stream: unique and monotonically
// increasing within that stream, starting from 1. The server never
// originates an id — it echoes back the id of the request it is
// answering.
type Message[T any] struct {
	ID      uint64 `msgpack:"id"`
	Payload T      `msgpack:"payload"`
}

// RpcError is a string-carrying, serializable error value. It is a
// signal, not an identity: two RpcErrors with the same message are
// interchangeable as far as this package is concerned.
type RpcError struct {
	Message string `msgpack:"message"`
}

// Error implements the error interface.
func (e *RpcError) Error() string {
	if e == nil {
		return "<nil RpcError>"
	}
	return e.Message
}

// NewRpcError builds an [*RpcError] from a formatted message.
func NewRpcError(format string, args ...any) *RpcError {
	return &RpcError{Message: fmt.Sprintf(format, args...)}
}

// Result is the wire shape of Rust's Result<T, RpcError>: exactly one of
// Value or Err is meaningful, selected by whether Err is nil.
type Result[T any] struct {
	Value T         `msgpack:"value,omitempty"`
	Err   *RpcError `msgpack:"err,omitempty"`
}

// Ok wraps a successful value.
func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

// Err wraps a failure.
func Err[T any](err *RpcError) Result[T] {
	return Result[T]{Err: err}
}

// Unwrap returns the value and a non-nil error when Err is set.
func (r Result[T]) Unwrap() (T, error) {
	if r.Err != nil {
		return r.Value, r.Err
	}
	return r.Value, nil
}

// Unit is the wire representation of an operation with no declared
// return value (Rust's ()).
type Unit struct{}

// Invoke calls op and converts its outcome into a [Result]: a nil error
// becomes Ok(out); a non-nil error becomes the Err case, unwrapped as-is
// if it already is an [*RpcError], or carried by its message otherwise.
// This is how a derived route signals an application-level error (see
// "Application errors" in the error handling design) distinctly from a
// transport or protocol failure, which never reaches this far.
func Invoke[In, Out any](ctx context.Context, op func(context.Context, In) (Out, error), in In) Result[Out] {
	out, err := op(ctx, in)
	if err == nil {
		return Ok(out)
	}
	var rpcErr *RpcError
	if errors.As(err, &rpcErr) {
		return Err[Out](rpcErr)
	}
	return Err[Out](NewRpcError("%v", err))
}
