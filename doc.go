// SPDX-License-Identifier: GPL-3.0-or-later

// Package nitrogen implements a small RPC framework over a multiplexed,
// stream-oriented, mTLS-authenticated QUIC transport.
//
// A process hosts both a listener and a dialer on the same endpoint
// through [*Peer]. Peers form bidirectional [*Session]s keyed by remote
// address, and each session multiplexes many independent request/response
// streams. Services are declared as named sets of operations; this package
// does not parse or generate that declaration (no macro, no code
// generator) — instead it provides the generic building blocks a derived
// service is built from, and [internal/testservice] shows the derived
// shape by hand for three example services.
//
// The moving parts, leaf first:
//
//  1. [FramedConn] implements the wire framing: a 4-byte big-endian
//     length-delimited frame (capped at 16 MiB) carrying a MessagePack
//     payload. The lighter 2-byte-length framing used only for the
//     handshake record is separate (see step 3).
//
//  2. [Listener], [Dialer], [Connection], [Opener], [Acceptor] abstract
//     over the transport; [NewClientEndpoint] and [NewServerEndpoint]
//     implement them against QUIC with mTLS.
//
//  3. On every new bidirectional stream, [writeNegotiate]/[readNegotiate]
//     exchange a [Negotiate] record selecting a service by name before any
//     other traffic crosses the stream.
//
//  4. [*Session] is the client-facing handle to a peer connection:
//     [*Session.NewStream] opens a stream, negotiates, and returns it
//     ready for typed exchange.
//
//  5. [*Peer] owns the session registry and the service registry, accepts
//     inbound connections, and routes each inbound stream to a registered
//     [ServiceHandler] after negotiation.
//
//  6. The RPC engine has two generic halves sharing [Message]: a client
//     driver ([newClientDriver]) that assigns correlation ids and matches
//     replies back to callers under a timeout, and [Dispatch], a server
//     dispatcher that spawns one task per inbound request and replies on
//     the same stream. [Client], [NewClient], and [NewServiceHandler] wire
//     a service's Req/Resp types into both halves without hand-written
//     framing or correlation code.
//
// For example, a minimal echo-style server and client, given a
// peer-to-peer mTLS config (see internal/nitrotest for how the test
// suite builds one):
//
//	peer, _ := nitrogen.NewPeer(nitrogen.WithTLSConfig(tlsConfig))
//	peer.AddService("echo", nitrogen.NewServiceHandler(func(ctx context.Context, req string) string {
//		return req
//	}))
//	_ = peer.Serve(ctx, "127.0.0.1:0")
//
//	session, _ := peer.Connect(ctx, addr)
//	client := nitrogen.NewClient[string, string](session, "echo")
//	reply, _ := client.Request(ctx, "ping")
//
// The code in this package is a Go-idiomatic reimplementation of the core
// of the zsl99a/nitrogen RPC crate, adapted to Go's concurrency and error
// handling model rather than translated line for line.
package nitrogen
