// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/netstub's FuncDialer/FuncResolver
// idiom (a struct of function fields standing in for an interface, seen
// in the teacher's own dialer_test.go) and this repository's own
// transport.go doc comment ("tests may substitute an in-memory pipe").

package nitrotest

import (
	"context"
	"net"

	"github.com/bassosimone/nitrogen"
)

// pipeStream adapts a net.Conn (as returned by net.Pipe) to
// [nitrogen.Stream]. net.Pipe connections have no true half-close, so
// CloseWrite closes the whole pipe — fine for tests that never exercise
// half-close on its own.
type pipeStream struct {
	net.Conn
}

func (s pipeStream) CloseWrite() error { return s.Conn.Close() }

// PipeOpener is an in-memory [nitrogen.Opener]: each OpenStream call
// creates a fresh net.Pipe and hands one end to a paired PipeAcceptor.
type PipeOpener struct {
	peerIncoming chan<- net.Conn
}

// OpenStream implements [nitrogen.Opener].
func (o *PipeOpener) OpenStream(ctx context.Context) (nitrogen.Stream, error) {
	clientEnd, serverEnd := net.Pipe()
	select {
	case o.peerIncoming <- serverEnd:
		return pipeStream{clientEnd}, nil
	case <-ctx.Done():
		clientEnd.Close()
		serverEnd.Close()
		return nil, ctx.Err()
	}
}

// PipeAcceptor is an in-memory [nitrogen.Acceptor] paired with a
// [PipeOpener]: it yields the stream halves the opener hands it.
type PipeAcceptor struct {
	incoming <-chan net.Conn
}

// AcceptStream implements [nitrogen.Acceptor].
func (a *PipeAcceptor) AcceptStream(ctx context.Context) (nitrogen.Stream, error) {
	select {
	case conn, ok := <-a.incoming:
		if !ok {
			return nil, nitrogen.ErrEndpointClosed
		}
		return pipeStream{conn}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewPipeTransportPair returns an ([*PipeOpener], [*PipeAcceptor]) pair
// wired together: streams opened on the returned opener are delivered to
// the returned acceptor, in order. Useful for driving a [nitrogen.Session]
// directly in tests, without a real QUIC connection underneath.
func NewPipeTransportPair() (*PipeOpener, *PipeAcceptor) {
	ch := make(chan net.Conn)
	return &PipeOpener{peerIncoming: ch}, &PipeAcceptor{incoming: ch}
}
