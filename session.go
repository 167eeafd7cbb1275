//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen/src/session.rs (Session.new_stream
// opens a bidirectional stream, sends the Negotiate record, and returns
// the stream ready for typed exchange).
//

package nitrogen

import (
	"context"
	"fmt"
	"net"
)

// Session is the client-facing handle to one live connection to a remote
// peer. It is created by a [*Peer] when it accepts or establishes a
// connection, and removed from the peer's session registry when the
// peer's inbound task for that connection exits.
//
// Cloning a session (copying the struct, or sharing a pointer) shares the
// underlying connection handle; [*Session] is safe for concurrent use.
type Session struct {
	opener     Opener
	localAddr  net.Addr
	remoteAddr net.Addr
}

// newSession builds a session over an already-split [Opener].
func newSession(opener Opener, localAddr, remoteAddr net.Addr) *Session {
	return &Session{
		opener:     opener,
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
	}
}

// NewStream opens a bidirectional stream, writes the negotiation record
// selecting a service by name, and returns the stream in length-delimited
// framing mode, ready for typed exchange.
//
// Fails if the connection is closed or the negotiate write fails.
func (s *Session) NewStream(ctx context.Context, negotiate Negotiate) (*FramedConn, error) {
	stream, err := s.opener.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("nitrogen: open stream: %w", err)
	}
	if err := writeNegotiate(stream, negotiate); err != nil {
		stream.Close()
		return nil, err
	}
	return NewFramedConn(stream), nil
}

// LocalAddr returns the local address of the underlying connection.
func (s *Session) LocalAddr() net.Addr { return s.localAddr }

// RemoteAddr returns the remote address of the underlying connection.
func (s *Session) RemoteAddr() net.Addr { return s.remoteAddr }
