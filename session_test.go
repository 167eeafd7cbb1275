// SPDX-License-Identifier: GPL-3.0-or-later

package nitrogen

import (
	"context"
	"net"
	"testing"

	"github.com/bassosimone/nitrogen/internal/nitrotest"
	"github.com/stretchr/testify/require"
)

func TestSessionNewStreamNegotiatesThenFrames(t *testing.T) {
	opener, acceptor := nitrotest.NewPipeTransportPair()
	session := newSession(opener, nil, nil)

	serverDone := make(chan struct{})
	var serverNegotiate Negotiate
	var serverMsg Message[string]

	go func() {
		defer close(serverDone)
		stream, err := acceptor.AcceptStream(context.Background())
		require.NoError(t, err)
		serverNegotiate, err = readNegotiate(stream)
		require.NoError(t, err)
		framed := NewFramedConn(stream)
		serverMsg, err = ReadMessage[Message[string]](framed)
		require.NoError(t, err)
	}()

	framed, err := session.NewStream(context.Background(), Negotiate{Name: "Echo"})
	require.NoError(t, err)
	require.NoError(t, WriteMessage(framed, Message[string]{ID: 1, Payload: "ping"}))

	<-serverDone
	require.Equal(t, "Echo", serverNegotiate.Name)
	require.Equal(t, uint64(1), serverMsg.ID)
	require.Equal(t, "ping", serverMsg.Payload)
}

func TestSessionNewStreamFailsWhenOpenerFails(t *testing.T) {
	session := newSession(failingOpener{}, nil, nil)
	_, err := session.NewStream(context.Background(), Negotiate{Name: "Echo"})
	require.Error(t, err)
}

// failingOpener is a local Opener stub whose OpenStream always fails;
// kept here rather than in internal/nitrotest since it has no reuse
// beyond this one test.
type failingOpener struct{}

func (failingOpener) OpenStream(ctx context.Context) (Stream, error) {
	return nil, errFailingOpenerStub
}

var errFailingOpenerStub = net.UnknownNetworkError("nitrogen test: opener stub failure")

func TestSessionAddrAccessors(t *testing.T) {
	local := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1}
	remote := &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2}
	session := newSession(failingOpener{}, local, remote)
	require.Equal(t, local, session.LocalAddr())
	require.Equal(t, remote, session.RemoteAddr())
}
