//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen-macro/src/rpc.rs, which generates a
// Request/Response enum pair, a route function, a serve entrypoint, and
// a {Name}Client struct from one #[rpc] trait definition. Go has no
// macros, so this file provides the runtime registration API the
// original's codegen would otherwise produce by hand: callers write the
// Request/Response types and the route function themselves (see
// internal/testservice), and wire them up with [NewClient] and
// [NewServiceHandler].
//

package nitrogen

import "context"

// Client is the generic per-service client handle (C8): it owns a
// [*clientDriver] multiplexing every operation of one service's
// Req/Resp tagged-union types over one stream. Hand-derived per-service
// clients (e.g. EchoClient) wrap a *Client[EchoRequest, EchoResponse]
// and expose one method per operation, each constructing the
// appropriate Req case and unwrapping the matching Resp case.
type Client[Req any, Resp any] struct {
	driver *clientDriver[Req, Resp]
}

// NewClient opens a client for serviceName against session. The
// returned client is ready for use immediately; its driver connects (or
// reconnects) in the background.
func NewClient[Req any, Resp any](session *Session, serviceName string, opts ...ClientOption) *Client[Req, Resp] {
	return &Client[Req, Resp]{driver: newClientDriver[Req, Resp](session, serviceName, opts...)}
}

// Request sends req and returns the matching reply, or an [*RpcError]
// describing a send failure, receive failure, or timeout. If ctx is done
// first, it returns ctx's error instead.
func (c *Client[Req, Resp]) Request(ctx context.Context, req Req) (Resp, error) {
	return c.driver.request(ctx, req)
}

// Close terminates the client's background driver. Call this when the
// client is no longer needed; it does not close the underlying session.
func (c *Client[Req, Resp]) Close() {
	c.driver.Close()
}

// NewServiceHandler builds a [ServiceHandler] to register with
// [*Peer.AddService], running route over every request on a negotiated
// stream via [Dispatch].
func NewServiceHandler[Req any, Resp any](route Route[Req, Resp]) ServiceHandler {
	return func(ctx context.Context, stream *FramedConn, session *Session, peer *Peer) error {
		Dispatch(ctx, stream, peer, route)
		return nil
	}
}
