//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package nitrogen

import "errors"

// Sentinel errors returned by the transport, negotiation, and session
// layers. RPC-level failures observed by a caller are [*RpcError]s (see
// message.go); these are the lower-level Go errors that get wrapped into
// an [*RpcError] at the client/dispatcher boundary.
var (
	// ErrServiceNotFound is logged by a [*Peer] when an inbound stream
	// negotiates a service name that has no registered handler; the peer
	// then closes that stream only.
	ErrServiceNotFound = errors.New("nitrogen: service not found")

	// ErrSessionClosed is wrapped into the send or receive [*RpcError] a
	// client call returns once that client's driver has been closed.
	ErrSessionClosed = errors.New("nitrogen: session closed")

	// ErrServerNotRunning is returned by ServerAddr when Serve has not
	// been called yet.
	ErrServerNotRunning = errors.New("nitrogen: server not running")

	// ErrEndpointClosed is returned by Accept once the owning endpoint
	// has shut down; this is the only expected Accept failure mode.
	ErrEndpointClosed = errors.New("nitrogen: endpoint closed")
)

// newTimeoutError builds the [*RpcError] returned when a call exceeds its
// deadline. The message must contain "timeout" — spec property 4 checks
// for that substring.
func newTimeoutError(service string) *RpcError {
	return NewRpcError("%sClient::request timeout error: deadline exceeded", service)
}

// newSendError builds the [*RpcError] returned when placing a request on
// the driver's channel fails.
func newSendError(service string, err error) *RpcError {
	return NewRpcError("%sClient::request send error: %v", service, err)
}

// newRecvError builds the [*RpcError] returned when the reply channel is
// dropped without a value.
func newRecvError(service string, err error) *RpcError {
	return NewRpcError("%sClient::request recv error: %v", service, err)
}

// newProtocolMismatchError builds the [*RpcError] returned when a
// response variant's case does not match the request's case.
func newProtocolMismatchError(service string) *RpcError {
	return NewRpcError("%sClient::request protocol mismatch", service)
}
