//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen/src/rpc_service.rs (the generated
// `serve` loop: read a Message<Request> off the stream, spawn a task
// per request, write its Message<Response> back independently — no
// ordering guarantee between concurrent requests on one stream).
//

package nitrogen

import (
	"context"
	"errors"
	"io"
	"sync"
)

// Route handles one decoded request and produces the response to send
// back under the same correlation id. Route implementations are the
// per-service business logic (see internal/testservice for examples);
// they do not see correlation ids or framing. Resp's per-operation
// fields carry a [Result], so Route can report an application-level
// failure (built with [Invoke]) without that failure looking like a
// transport or protocol error to the caller.
type Route[Req any, Resp any] func(ctx context.Context, req Req) Resp

// Dispatch runs the server-side RPC engine (C7) for one negotiated
// stream: it decodes [Message[Req]] frames, invokes route for each in
// its own goroutine, and writes the matching [Message[Resp]] back. A
// panic inside route is recovered and logged; the offending request is
// dropped without a reply rather than crashing the stream.
//
// Dispatch blocks until the stream's read side fails (peer closed the
// stream, or a frame fails to decode), at which point it waits for any
// still-running routes to finish their in-flight writes before
// returning. It has no return value: a clean peer-initiated close (EOF)
// ends it silently, and any other read or decode failure is logged.
func Dispatch[Req any, Resp any](ctx context.Context, framed *FramedConn, peer *Peer, route Route[Req, Resp]) {
	var writeMu sync.Mutex
	var wg sync.WaitGroup

	writeReply := func(msg Message[Resp]) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := WriteMessage(framed, msg); err != nil {
			peer.logger.WithError(err).Warn("nitrogen: dispatcher reply write failed")
		}
	}

	for {
		msg, err := ReadMessage[Message[Req]](framed)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				peer.logger.WithError(err).Warn("nitrogen: dispatcher read failed")
			}
			break
		}

		wg.Add(1)
		go func(msg Message[Req]) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					peer.logger.WithField("panic", r).WithField("id", msg.ID).
						Error("nitrogen: dispatcher route panicked")
				}
			}()
			resp := route(ctx, msg.Payload)
			writeReply(Message[Resp]{ID: msg.ID, Payload: resp})
		}(msg)
	}

	wg.Wait()
}
