// SPDX-License-Identifier: GPL-3.0-or-later

package nitrogen

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/bassosimone/nitrogen/internal/nitrotest"
	"github.com/stretchr/testify/require"
)

func newTestPeer(t *testing.T) *Peer {
	t.Helper()
	clientCfg, _, err := nitrotest.TLSConfigPair()
	require.NoError(t, err)
	peer, err := NewPeer(WithTLSConfig(clientCfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })
	return peer
}

func noopHandler(ctx context.Context, stream *FramedConn, session *Session, peer *Peer) error {
	return nil
}

func TestNewPeerRequiresTLSConfig(t *testing.T) {
	_, err := NewPeer()
	require.Error(t, err)
}

func TestPeerServerAddrBeforeServe(t *testing.T) {
	peer := newTestPeer(t)
	_, err := peer.ServerAddr()
	require.ErrorIs(t, err, ErrServerNotRunning)
}

func TestPeerAddServiceLastWriterWins(t *testing.T) {
	peer := newTestPeer(t)

	var firstCalled, secondCalled bool
	peer.AddService("Echo", func(ctx context.Context, stream *FramedConn, session *Session, p *Peer) error {
		firstCalled = true
		return nil
	})
	peer.AddService("Echo", func(ctx context.Context, stream *FramedConn, session *Session, p *Peer) error {
		secondCalled = true
		return nil
	})

	require.Equal(t, []string{"Echo"}, peer.Services())

	// Drive the registered handler directly to confirm the second
	// registration replaced the first rather than both firing.
	require.NoError(t, peer.services["Echo"](context.Background(), nil, nil, peer))
	require.False(t, firstCalled)
	require.True(t, secondCalled)
}

func TestPeerServicesSortedAndDeduplicated(t *testing.T) {
	peer := newTestPeer(t)
	peer.AddService("Sleep", noopHandler)
	peer.AddService("Counter", noopHandler)
	peer.AddService("Echo", noopHandler)
	peer.AddService("Sleep", noopHandler)
	require.Equal(t, []string{"Counter", "Echo", "Sleep"}, peer.Services())
}

func TestPeerConnectFailsForUnreachableAddr(t *testing.T) {
	peer := newTestPeer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	_, err := peer.Connect(ctx, "127.0.0.1:1")
	require.Error(t, err)
}

// dropConnection is a [Connection] stub whose Acceptor blocks until
// closed is closed, then fails — simulating a live connection that the
// remote peer has just torn down.
type dropConnection struct {
	local, remote net.Addr
	closed        chan struct{}
}

func (c *dropConnection) LocalAddr() net.Addr  { return c.local }
func (c *dropConnection) RemoteAddr() net.Addr { return c.remote }
func (c *dropConnection) Close() error         { return nil }

func (c *dropConnection) Split() (Opener, Acceptor) {
	return failingOpener{}, &dropAcceptor{closed: c.closed}
}

type dropAcceptor struct{ closed chan struct{} }

func (a *dropAcceptor) AcceptStream(ctx context.Context) (Stream, error) {
	<-a.closed
	return nil, net.UnknownNetworkError("nitrogen test: connection dropped")
}

// dialerFunc adapts a plain function to [Dialer], the way the teacher's
// stub types adapt a function field to an interface.
type dialerFunc func(ctx context.Context, addr string) (Connection, error)

func (f dialerFunc) DialContext(ctx context.Context, addr string) (Connection, error) {
	return f(ctx, addr)
}

// TestPeerConnectAfterConnectionDropReturnsFreshSession covers testable
// property 8: once the underlying connection for addr drops, the peer's
// session registry no longer holds it, and a subsequent Connect(addr)
// establishes (and returns) a new session rather than the defunct one.
func TestPeerConnectAfterConnectionDropReturnsFreshSession(t *testing.T) {
	peer := newTestPeer(t)
	remote := &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 1234}

	dropped := make(chan struct{})
	firstConn := &dropConnection{local: peer.LocalAddr(), remote: remote, closed: dropped}
	secondConn := &dropConnection{local: peer.LocalAddr(), remote: remote, closed: make(chan struct{})}

	dialCount := 0
	peer.dialer = dialerFunc(func(ctx context.Context, addr string) (Connection, error) {
		dialCount++
		if dialCount == 1 {
			return firstConn, nil
		}
		return secondConn, nil
	})

	session1, err := peer.Connect(context.Background(), remote.String())
	require.NoError(t, err)
	_, ok := peer.lookupSession(remote.String())
	require.True(t, ok)

	close(dropped)
	require.Eventually(t, func() bool {
		_, ok := peer.lookupSession(remote.String())
		return !ok
	}, time.Second, 10*time.Millisecond, "session was not evicted after its connection dropped")

	session2, err := peer.Connect(context.Background(), remote.String())
	require.NoError(t, err)
	require.NotSame(t, session1, session2)
	require.Equal(t, 2, dialCount)
}
