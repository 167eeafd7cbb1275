//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen/src/client.rs (ServiceClient::spawn):
// a per-service background task that owns one negotiated stream, assigns
// a monotonically increasing correlation id per outgoing request, and
// matches replies back to callers by id via a pending-reply table.
//

package nitrogen

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// clientDriverRequest is one call queued on a driver's request channel:
// its driver-wide call id (the key [*clientDriver.evictPending] uses), the
// outgoing payload, and the channel the driver delivers the matching
// reply on (or closes without a value, on abandonment). The correlation
// id sent on the wire is assigned per stream by runStream.
type clientDriverRequest[Req any, Resp any] struct {
	id      uint64
	payload Req
	reply   chan Resp
}

// clientDriver is the generic client-side half of the RPC engine (C7).
// Req and Resp are a service's whole request/response tagged-union types
// (e.g. EchoRequest/EchoResponse), not a single operation's types — one
// driver instance multiplexes every operation of one service over one
// stream.
type clientDriver[Req any, Resp any] struct {
	serviceName string
	session     *Session
	cfg         *clientConfig

	requests chan clientDriverRequest[Req, Resp]
	evict    chan uint64
	cursor   atomic.Uint64

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// newClientDriver creates and starts a driver for serviceName against
// session. The driver begins opening its stream immediately in the
// background.
func newClientDriver[Req any, Resp any](session *Session, serviceName string, opts ...ClientOption) *clientDriver[Req, Resp] {
	cfg := newClientConfig(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	d := &clientDriver[Req, Resp]{
		serviceName: serviceName,
		session:     session,
		cfg:         cfg,
		requests:    make(chan clientDriverRequest[Req, Resp], cfg.ChannelCapacity),
		evict:       make(chan uint64, cfg.ChannelCapacity),
		ctx:         ctx,
		cancel:      cancel,
	}
	go d.run()
	return d
}

// Close terminates the driver. Any call blocked in [*clientDriver.request]
// observes the driver closing and returns an error; the underlying stream
// is closed once the driver notices.
func (d *clientDriver[Req, Resp]) Close() {
	d.closeOnce.Do(d.cancel)
}

// request places one call on the driver and awaits its reply under the
// configured timeout. ctx additionally bounds the wait (e.g. for a
// caller-supplied deadline shorter than the driver's own timeout).
func (d *clientDriver[Req, Resp]) request(ctx context.Context, payload Req) (Resp, error) {
	var zero Resp

	if d.ctx.Err() != nil {
		return zero, newSendError(d.serviceName, ErrSessionClosed)
	}

	id := d.cursor.Add(1)
	replyCh := make(chan Resp, 1)
	envelope := clientDriverRequest[Req, Resp]{id: id, payload: payload, reply: replyCh}

	select {
	case d.requests <- envelope:
	case <-d.ctx.Done():
		return zero, newSendError(d.serviceName, ErrSessionClosed)
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	timer := time.NewTimer(d.cfg.Timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-replyCh:
		if !ok {
			return zero, newRecvError(d.serviceName, errors.New("driver abandoned the in-flight request"))
		}
		return resp, nil
	case <-timer.C:
		// Proactively evict the pending-reply entry rather than leaving
		// it for a reply that may never come: an unbounded table is the
		// failure mode a slow or wedged peer would otherwise cause.
		d.evictPending(id)
		return zero, newTimeoutError(d.serviceName)
	case <-ctx.Done():
		d.evictPending(id)
		return zero, ctx.Err()
	case <-d.ctx.Done():
		return zero, newRecvError(d.serviceName, ErrSessionClosed)
	}
}

// evictPending asks the owning runStream loop to drop id's pending-reply
// entry, if still present. Best-effort: if the driver has already moved
// on to a new stream (reconnect), the id no longer exists anywhere and
// this is a no-op.
func (d *clientDriver[Req, Resp]) evictPending(id uint64) {
	select {
	case d.evict <- id:
	case <-d.ctx.Done():
	default:
	}
}

// run owns the driver's lifetime: it repeatedly opens a negotiated stream
// and multiplexes requests over it until Close is called.
func (d *clientDriver[Req, Resp]) run() {
	for {
		if d.ctx.Err() != nil {
			return
		}

		framed, err := d.session.NewStream(d.ctx, Negotiate{Name: d.serviceName})
		if err != nil {
			d.cfg.Logger.WithError(err).WithField("service", d.serviceName).
				Warn("nitrogen: client driver failed to open stream, retrying")
			if !d.sleepBackoff() {
				return
			}
			continue
		}

		if !d.runStream(framed) {
			return
		}

		if !d.sleepBackoff() {
			return
		}
	}
}

// sleepBackoff waits the reconnect backoff or returns false if the
// driver was closed while waiting.
func (d *clientDriver[Req, Resp]) sleepBackoff() bool {
	timer := time.NewTimer(d.cfg.ReconnectBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.ctx.Done():
		return false
	}
}

// runStream multiplexes requests over one negotiated stream until the
// stream fails, the peer's connection fails, or the driver is closed.
// It returns false when the driver should terminate entirely (closed),
// true when the caller should reconnect.
func (d *clientDriver[Req, Resp]) runStream(framed *FramedConn) bool {
	defer framed.Close()

	type inboundResult struct {
		msg Message[Resp]
		err error
	}
	inbound := make(chan inboundResult)
	readerDone := make(chan struct{})

	go func() {
		defer close(inbound)
		for {
			msg, err := ReadMessage[Message[Resp]](framed)
			select {
			case inbound <- inboundResult{msg: msg, err: err}:
			case <-readerDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	defer close(readerDone)

	// pending maps this stream's wire ids, which start from 1, to their
	// waiters; wireIDs maps a call id back to its wire id for eviction.
	type waiter struct {
		callID uint64
		reply  chan Resp
	}
	pending := make(map[uint64]waiter)
	wireIDs := make(map[uint64]uint64)
	var cursor uint64

	abandonPending := func() {
		for id, w := range pending {
			close(w.reply)
			delete(pending, id)
		}
		clear(wireIDs)
	}

	for {
		select {
		case <-d.ctx.Done():
			abandonPending()
			return false

		case callID := <-d.evict:
			if id, ok := wireIDs[callID]; ok {
				delete(pending, id)
				delete(wireIDs, callID)
			}

		case envelope := <-d.requests:
			cursor++
			if err := WriteMessage(framed, Message[Req]{ID: cursor, Payload: envelope.payload}); err != nil {
				d.logWarn(err, "client driver send failed")
				close(envelope.reply)
				abandonPending()
				return true
			}
			pending[cursor] = waiter{callID: envelope.id, reply: envelope.reply}
			wireIDs[envelope.id] = cursor

		case result, ok := <-inbound:
			if !ok {
				abandonPending()
				return true
			}
			if result.err != nil {
				d.logWarn(result.err, "client driver recv failed")
				abandonPending()
				return true
			}
			if w, ok := pending[result.msg.ID]; ok {
				w.reply <- result.msg.Payload
				close(w.reply)
				delete(pending, result.msg.ID)
				delete(wireIDs, w.callID)
			}
			// unknown ids are dropped silently, per spec.
		}
	}
}

func (d *clientDriver[Req, Resp]) logWarn(err error, msg string) {
	d.cfg.Logger.WithError(err).WithField("service", d.serviceName).Warn("nitrogen: " + msg)
}
