//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: original nitrogen/src/base.rs (Nitrogen: client endpoint,
// sessions map, services map, connect/serve/spawn_accept/add_service/
// services).
//

package nitrogen

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// ServiceHandler handles one negotiated inbound stream.
//
// stream has already had its [Negotiate] frame consumed and is in
// length-delimited framing mode. session is the caller's session on this
// connection; peer is the owning [*Peer], passed so a handler can look up
// other services or dial further peers.
type ServiceHandler func(ctx context.Context, stream *FramedConn, session *Session, peer *Peer) error

// Peer owns one QUIC client endpoint, an optional server endpoint, a
// session registry keyed by remote address, and a service registry keyed
// by name. Construct with [NewPeer].
//
// A [*Peer] is safe for concurrent use; its registries are guarded by
// their own mutexes, and cloning the struct is not how sharing works here
// (unlike the Rust original's Arc-backed Clone) — pass the *Peer pointer
// around instead.
type Peer struct {
	dialer           Dialer
	dialerPacketConn net.PacketConn
	localAddr        net.Addr
	tlsConfig        *tls.Config

	listenerMu sync.Mutex
	listener   Listener
	serverAddr net.Addr

	sessionsMu sync.Mutex
	sessions   map[string]*Session

	servicesMu sync.Mutex
	services   map[string]ServiceHandler

	connectGroup singleflight.Group
	inboundGroup errgroup.Group

	logger *logrus.Entry
}

// NewPeer constructs a [*Peer] with a client endpoint bound to an
// ephemeral local address. [WithTLSConfig] is required.
func NewPeer(opts ...PeerOption) (*Peer, error) {
	cfg := &peerConfig{Logger: discardLogger()}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.TLSConfig == nil {
		return nil, errors.New("nitrogen: NewPeer requires WithTLSConfig")
	}

	dialer, packetConn, err := NewClientEndpoint("0.0.0.0:0", cfg.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("nitrogen: new client endpoint: %w", err)
	}

	return &Peer{
		dialer:           dialer,
		dialerPacketConn: packetConn,
		localAddr:        packetConn.LocalAddr(),
		tlsConfig:        cfg.TLSConfig,
		sessions:         make(map[string]*Session),
		services:         make(map[string]ServiceHandler),
		logger:           loggerOrDiscard(cfg.Logger),
	}, nil
}

// LocalAddr returns the bound address of the peer's client endpoint.
func (p *Peer) LocalAddr() net.Addr { return p.localAddr }

// ServerAddr returns the bound address of the peer's server endpoint.
// Returns [ErrServerNotRunning] until [*Peer.Serve] has been called.
func (p *Peer) ServerAddr() (net.Addr, error) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()
	if p.listener == nil {
		return nil, ErrServerNotRunning
	}
	return p.serverAddr, nil
}

// Close tears down the peer's client endpoint and, if running, its server
// endpoint. It does not forcibly terminate in-flight stream handlers;
// they observe the underlying connections closing and exit naturally.
func (p *Peer) Close() error {
	var listenerErr error
	p.listenerMu.Lock()
	if p.listener != nil {
		listenerErr = p.listener.Close()
	}
	p.listenerMu.Unlock()
	return errors.Join(listenerErr, p.dialerPacketConn.Close())
}

// AddService registers handler under name, replacing any prior handler
// registered under the same name. Returns the peer for chaining.
func (p *Peer) AddService(name string, handler ServiceHandler) *Peer {
	p.servicesMu.Lock()
	defer p.servicesMu.Unlock()
	p.services[name] = handler
	return p
}

// Services returns a sorted snapshot of registered service names.
func (p *Peer) Services() []string {
	p.servicesMu.Lock()
	defer p.servicesMu.Unlock()
	names := make([]string, 0, len(p.services))
	for name := range p.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Serve binds a server endpoint at addr and spawns the inbound accept
// loop. After Serve returns, the peer is usable for dialing and accepting
// in parallel. The accept loop and all connections it owns stop when ctx
// is canceled.
func (p *Peer) Serve(ctx context.Context, addr string) error {
	listener, err := NewServerEndpoint(addr, p.tlsConfig)
	if err != nil {
		return fmt.Errorf("nitrogen: new server endpoint: %w", err)
	}

	p.listenerMu.Lock()
	p.listener = listener
	p.serverAddr = listener.Addr()
	p.listenerMu.Unlock()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	go p.acceptLoop(ctx, listener)
	return nil
}

// acceptLoop accepts inbound connections until the listener shuts down.
func (p *Peer) acceptLoop(ctx context.Context, listener Listener) {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if !errors.Is(err, ErrEndpointClosed) {
				p.logger.WithError(err).Warn("nitrogen: accept failed")
			}
			return
		}
		p.registerConnection(ctx, conn)
	}
}

// Connect returns the existing session for addr if one is registered, or
// establishes a new connection, registers it, and returns the resulting
// session. Concurrent Connect calls for the same addr converge to a
// single dial via singleflight, keyed on addr — the Go analogue of the
// original's mutex-gated registry insertion. ctx bounds the dial only;
// the connection and its session outlive it.
func (p *Peer) Connect(ctx context.Context, addr string) (*Session, error) {
	if session, ok := p.lookupSession(addr); ok {
		return session, nil
	}

	result, err, _ := p.connectGroup.Do(addr, func() (any, error) {
		if session, ok := p.lookupSession(addr); ok {
			return session, nil
		}
		conn, err := p.dialer.DialContext(ctx, addr)
		if err != nil {
			return nil, err
		}
		return p.registerConnection(context.WithoutCancel(ctx), conn), nil
	})
	if err != nil {
		return nil, fmt.Errorf("nitrogen: connect %s: %w", addr, err)
	}
	return result.(*Session), nil
}

func (p *Peer) lookupSession(addr string) (*Session, bool) {
	p.sessionsMu.Lock()
	defer p.sessionsMu.Unlock()
	session, ok := p.sessions[addr]
	return session, ok
}

// registerConnection records conn's session in the registry keyed by its
// remote address and starts the connection's inbound stream loop.
func (p *Peer) registerConnection(ctx context.Context, conn Connection) *Session {
	addr := conn.RemoteAddr().String()
	opener, acceptor := conn.Split()
	session := newSession(opener, conn.LocalAddr(), conn.RemoteAddr())

	p.sessionsMu.Lock()
	p.sessions[addr] = session
	p.sessionsMu.Unlock()

	p.inboundGroup.Go(func() error {
		p.inboundLoop(ctx, conn, acceptor, addr)
		return nil
	})

	return session
}

// inboundLoop accepts streams on one connection until it is torn down,
// evicting the session from the registry on exit.
func (p *Peer) inboundLoop(ctx context.Context, conn Connection, acceptor Acceptor, addr string) {
	defer func() {
		p.sessionsMu.Lock()
		delete(p.sessions, addr)
		p.sessionsMu.Unlock()
		conn.Close()
	}()

	for {
		stream, err := acceptor.AcceptStream(ctx)
		if err != nil {
			return
		}
		go p.handleStream(ctx, stream, addr)
	}
}

// handleStream negotiates one inbound stream and dispatches it to its
// registered handler. Failures here are fatal only to this stream.
func (p *Peer) handleStream(ctx context.Context, stream Stream, addr string) {
	negotiate, err := readNegotiate(stream)
	if err != nil {
		p.logger.WithError(err).Warn("nitrogen: negotiate failed")
		stream.Close()
		return
	}

	p.servicesMu.Lock()
	handler, ok := p.services[negotiate.Name]
	p.servicesMu.Unlock()
	if !ok {
		p.logger.WithError(ErrServiceNotFound).WithField("service", negotiate.Name).Warn("nitrogen: unknown service")
		stream.Close()
		return
	}

	session, ok := p.lookupSession(addr)
	if !ok {
		stream.Close()
		return
	}

	framed := NewFramedConn(stream)
	defer framed.Close()

	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", r).WithField("service", negotiate.Name).
				Error("nitrogen: service handler panicked")
		}
	}()

	if err := handler(ctx, framed, session, p); err != nil {
		p.logger.WithError(err).WithField("service", negotiate.Name).Warn("nitrogen: service handler failed")
	}
}
