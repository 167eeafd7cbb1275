//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen/src/bin/main.rs's MyService.ping
// ("|name: {}, time: {:?}|", Self::NAME, time).
//

// Package testservice holds hand-derived services exercising the
// nitrogen RPC engine end to end: Echo, Counter, and Sleep. Each service
// is written the way the original's #[rpc_service] macro would have
// generated it — a Request/Response tagged-union pair (one pointer
// field per operation, exactly one non-nil, each response case wrapping
// a [nitrogen.Result]), a route function, and a thin per-service client
// — since this package has no macro of its own.
package testservice

import (
	"context"
	"fmt"
	"strings"

	"github.com/bassosimone/nitrogen"
)

// EchoRequest is Echo's whole request tagged union.
type EchoRequest struct {
	Ping *EchoPingRequest `msgpack:"ping,omitempty"`
}

// EchoPingRequest carries ping's argument.
type EchoPingRequest struct {
	Time []byte `msgpack:"time"`
}

// EchoResponse is Echo's whole response tagged union. Ping wraps its
// declared return (string) in a [nitrogen.Result] so an application-level
// failure can be signaled distinctly from a transport or protocol one.
type EchoResponse struct {
	Ping *nitrogen.Result[string] `msgpack:"ping,omitempty"`
}

// pingOp implements ping: it renders name and time, but rejects an empty
// payload as an application-level error (there is nothing to echo).
func pingOp(ctx context.Context, req EchoPingRequest) (string, error) {
	if len(req.Time) == 0 {
		return "", nitrogen.NewRpcError("Echo.ping: empty payload")
	}
	return fmt.Sprintf("|name: Echo, time: %s|", debugBytes(req.Time)), nil
}

// EchoRoute implements Echo's single operation, ping.
func EchoRoute(ctx context.Context, req EchoRequest) EchoResponse {
	switch {
	case req.Ping != nil:
		result := nitrogen.Invoke(ctx, pingOp, *req.Ping)
		return EchoResponse{Ping: &result}
	default:
		return EchoResponse{}
	}
}

// debugBytes renders a byte slice the way Rust's {:?} renders a Vec<u8>
// ("[1, 2, 3]"), since Go's %v uses space rather than comma separators.
func debugBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// EchoClient is Echo's per-service client handle.
type EchoClient struct {
	client *nitrogen.Client[EchoRequest, EchoResponse]
}

// NewEchoClient opens an Echo client against session.
func NewEchoClient(session *nitrogen.Session, opts ...nitrogen.ClientOption) *EchoClient {
	return &EchoClient{client: nitrogen.NewClient[EchoRequest, EchoResponse](session, "Echo", opts...)}
}

// Ping calls Echo's ping operation. The returned error may be a
// transport/protocol failure (send error, timeout, mismatch) or the
// application-level error pingOp itself returned — both surface the
// same way to the caller.
func (c *EchoClient) Ping(ctx context.Context, time []byte) (string, error) {
	resp, err := c.client.Request(ctx, EchoRequest{Ping: &EchoPingRequest{Time: time}})
	if err != nil {
		return "", err
	}
	if resp.Ping == nil {
		return "", nitrogen.NewRpcError("EchoClient::request protocol mismatch")
	}
	return resp.Ping.Unwrap()
}

// Close terminates the client's background driver.
func (c *EchoClient) Close() { c.client.Close() }
