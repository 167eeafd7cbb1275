//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen-utils/src/network.rs (BiListener,
// BiConnect, BiConnnectionOpener, BiConnnectionAcceptor, BiStreamSplit)
// and this repository's own interface-over-concrete-type idiom (compare
// ClientExchanger/StreamDialer/UDPDialer in the teacher's deleted
// client.go/stream.go/udp.go).
//

package nitrogen

import (
	"context"
	"io"
	"net"
)

// Stream is an in-order, reliable byte duplex supporting half-close.
//
// QUIC bidirectional streams implement this interface (see
// quic_transport.go); tests may substitute an in-memory pipe.
type Stream interface {
	io.Reader
	io.Writer

	// Close closes the stream.
	io.Closer

	// CloseWrite half-closes the write side of the stream, signaling EOF
	// to the peer while the read side remains usable.
	CloseWrite() error
}

// Opener opens new outbound streams on a connection.
type Opener interface {
	OpenStream(ctx context.Context) (Stream, error)
}

// Acceptor accepts new inbound streams on a connection.
type Acceptor interface {
	AcceptStream(ctx context.Context) (Stream, error)
}

// Connection is a single peer-to-peer connection that can be split into
// an [Opener] and an [Acceptor], each independently usable.
type Connection interface {
	LocalAddr() net.Addr
	RemoteAddr() net.Addr

	// Split divides the connection into its outbound and inbound halves.
	Split() (Opener, Acceptor)

	// Close tears down the connection.
	io.Closer
}

// Dialer establishes connections to a remote address.
type Dialer interface {
	DialContext(ctx context.Context, addr string) (Connection, error)
}

// Listener yields inbound connections. Accept fails only on endpoint
// shutdown, returning [ErrEndpointClosed].
type Listener interface {
	Accept(ctx context.Context) (Connection, error)
	Addr() net.Addr
	io.Closer
}
