//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: this repository's own deleted quic.go/quicx.go
// (QUICDialConfig, quicConn wrapping *quic.Transport/*quic.Conn for
// DNS-over-QUIC) and the original nitrogen-quic/src/quic.rs + impls.rs
// (create_client/create_server, QuicConnection/QuicStream splitting).
// Generalized from "dial one DoQ endpoint" to "bind a client endpoint
// AND a server endpoint for the RPC peer, both mTLS-authenticated."
//

package nitrogen

import (
	"context"
	"crypto/tls"
	"errors"
	"net"

	"github.com/quic-go/quic-go"
)

// fixedServerName is the server name used to verify dialed connections.
//
// This is a development convenience, not a production-grade identity
// check — see the "Fixed TLS server name" design note.
const fixedServerName = "localhost"

// quicStream adapts a *quic.Stream to [Stream].
type quicStream struct {
	stream *quic.Stream
}

func (s *quicStream) Read(p []byte) (int, error)  { return s.stream.Read(p) }
func (s *quicStream) Write(p []byte) (int, error) { return s.stream.Write(p) }
func (s *quicStream) Close() error                { return s.stream.Close() }
func (s *quicStream) CloseWrite() error           { return s.stream.Close() }

// quicConnection adapts a *quic.Conn to [Connection].
type quicConnection struct {
	conn *quic.Conn
}

func (c *quicConnection) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *quicConnection) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *quicConnection) Close() error         { return c.conn.CloseWithError(0, "closed") }

func (c *quicConnection) Split() (Opener, Acceptor) {
	return &quicOpener{conn: c.conn}, &quicAcceptor{conn: c.conn}
}

// quicOpener adapts a *quic.Conn to [Opener].
type quicOpener struct {
	conn *quic.Conn
}

func (o *quicOpener) OpenStream(ctx context.Context) (Stream, error) {
	stream, err := o.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{stream: stream}, nil
}

// quicAcceptor adapts a *quic.Conn to [Acceptor].
type quicAcceptor struct {
	conn *quic.Conn
}

func (a *quicAcceptor) AcceptStream(ctx context.Context) (Stream, error) {
	stream, err := a.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{stream: stream}, nil
}

// quicListener adapts a *quic.Listener plus its backing UDP socket to
// [Listener].
type quicListener struct {
	listener   *quic.Listener
	packetConn net.PacketConn
}

func (l *quicListener) Accept(ctx context.Context) (Connection, error) {
	conn, err := l.listener.Accept(ctx)
	if err != nil {
		if errors.Is(err, quic.ErrServerClosed) || ctx.Err() != nil {
			return nil, ErrEndpointClosed
		}
		return nil, err
	}
	return &quicConnection{conn: conn}, nil
}

func (l *quicListener) Addr() net.Addr { return l.listener.Addr() }

func (l *quicListener) Close() error {
	err1 := l.listener.Close()
	err2 := l.packetConn.Close()
	return errors.Join(err1, err2)
}

// quicDialer adapts a *quic.Transport to [Dialer].
//
// Every dial clones TLSConfig and forces ServerName to [fixedServerName],
// per spec's fixed-server-name design note.
type quicDialer struct {
	transport  *quic.Transport
	tlsConfig  *tls.Config
	quicConfig *quic.Config
}

func (d *quicDialer) DialContext(ctx context.Context, addr string) (Connection, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	tlsConfig := d.tlsConfig.Clone()
	tlsConfig.ServerName = fixedServerName
	conn, err := d.transport.Dial(ctx, udpAddr, tlsConfig, d.quicConfig)
	if err != nil {
		return nil, err
	}
	return &quicConnection{conn: conn}, nil
}

// newQUICConfig returns a [*quic.Config] with keep-alive enabled.
//
// Keep-alive is set symmetrically on both the dial path and the accept
// path: an accepted connection sits behind the same NATs and firewalls
// as a dialed one, so leaving it without keep-alive would let it hit an
// idle timeout and drop while the dialing side's stays up.
func newQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod: defaultKeepAlivePeriod,
	}
}

// NewClientEndpoint binds a UDP socket at addr and returns a [Dialer]
// backed by a QUIC client endpoint configured with tlsConfig for mTLS.
func NewClientEndpoint(addr string, tlsConfig *tls.Config) (Dialer, net.PacketConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, nil, err
	}
	packetConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, nil, err
	}
	transport := &quic.Transport{Conn: packetConn}
	return &quicDialer{
		transport:  transport,
		tlsConfig:  tlsConfig,
		quicConfig: newQUICConfig(),
	}, packetConn, nil
}

// NewServerEndpoint binds a UDP socket at addr and returns a [Listener]
// backed by a QUIC server endpoint configured with tlsConfig for mTLS.
func NewServerEndpoint(addr string, tlsConfig *tls.Config) (Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	packetConn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	transport := &quic.Transport{Conn: packetConn}
	listener, err := transport.Listen(tlsConfig, newQUICConfig())
	if err != nil {
		packetConn.Close()
		return nil, err
	}
	return &quicListener{listener: listener, packetConn: packetConn}, nil
}
