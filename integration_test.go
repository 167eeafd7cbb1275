//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: this repository's own deleted integration_test.go (real
// loopback transport, no mocks) and original nitrogen/src/bin/main.rs's
// server()/client() shape (bind a server, spawn a client against it,
// exchange one call).
//

package nitrogen_test

import (
	"context"
	"crypto/tls"
	"sync"
	"testing"
	"time"

	"github.com/bassosimone/nitrogen"
	"github.com/bassosimone/nitrogen/internal/nitrotest"
	"github.com/bassosimone/nitrogen/internal/testservice"
	"github.com/stretchr/testify/require"
)

// testFixture is a server peer bound on an ephemeral loopback port plus
// the client TLS config trusted by its CA, so a test can connect any
// number of independent client peers against it.
type testFixture struct {
	server    *nitrogen.Peer
	addr      string
	clientTLS *tls.Config
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	clientTLS, serverTLS, err := nitrotest.TLSConfigPair()
	require.NoError(t, err)

	server, err := nitrogen.NewPeer(nitrogen.WithTLSConfig(serverTLS))
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, server.Serve(ctx, "127.0.0.1:0"))

	addr, err := server.ServerAddr()
	require.NoError(t, err)

	return &testFixture{server: server, addr: addr.String(), clientTLS: clientTLS}
}

// newClient returns a fresh peer and an already-connected session
// against the fixture's server.
func (f *testFixture) newClient(t *testing.T) (*nitrogen.Peer, *nitrogen.Session) {
	t.Helper()
	client, err := nitrogen.NewPeer(nitrogen.WithTLSConfig(f.clientTLS))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	session, err := client.Connect(ctx, f.addr)
	require.NoError(t, err)
	return client, session
}

// TestEchoPingMatchesExpectedFormat is the spec's canonical scenario:
// Echo.ping([1,2,3]) must equal "|name: Echo, time: [1, 2, 3]|".
func TestEchoPingMatchesExpectedFormat(t *testing.T) {
	f := newTestFixture(t)
	f.server.AddService("Echo", nitrogen.NewServiceHandler(testservice.EchoRoute))

	_, session := f.newClient(t)
	echo := testservice.NewEchoClient(session)
	defer echo.Close()

	got, err := echo.Ping(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, "|name: Echo, time: [1, 2, 3]|", got)
}

// TestEchoPingApplicationErrorOnEmptyPayload checks an application-level
// failure: the call completes — it is neither a timeout nor a protocol
// mismatch — but the service itself reports a failure, carried in the
// response's Result.
func TestEchoPingApplicationErrorOnEmptyPayload(t *testing.T) {
	f := newTestFixture(t)
	f.server.AddService("Echo", nitrogen.NewServiceHandler(testservice.EchoRoute))

	_, session := f.newClient(t)
	echo := testservice.NewEchoClient(session)
	defer echo.Close()

	_, err := echo.Ping(context.Background(), nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "empty payload")
	require.NotContains(t, err.Error(), "timeout")
	require.NotContains(t, err.Error(), "protocol mismatch")
}

// TestCounterConcurrentIncrements checks that 100 concurrent inc() calls
// return the multiset {1..100} (testable property 2: unique correlation).
func TestCounterConcurrentIncrements(t *testing.T) {
	f := newTestFixture(t)
	counter := testservice.NewCounterService()
	f.server.AddService("Counter", nitrogen.NewServiceHandler(counter.Route))

	_, session := f.newClient(t)
	client := testservice.NewCounterClient(session)
	defer client.Close()

	const n = 100
	results := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			v, err := client.Inc(context.Background())
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for _, v := range results {
		require.False(t, seen[v], "duplicate value %d", v)
		seen[v] = true
	}
	for i := uint64(1); i <= n; i++ {
		require.True(t, seen[i], "missing value %d", i)
	}
}

// TestSleepCallTimesOut checks that wait(6000) yields a timeout error
// within 5.5s, given the client's 5s default request timeout (testable
// property 4).
func TestSleepCallTimesOut(t *testing.T) {
	f := newTestFixture(t)
	f.server.AddService("Sleep", nitrogen.NewServiceHandler(testservice.SleepRoute))

	_, session := f.newClient(t)
	client := testservice.NewSleepClient(session)
	defer client.Close()

	start := time.Now()
	err := client.Wait(context.Background(), 6000)
	elapsed := time.Since(start)

	require.Error(t, err)
	require.Contains(t, err.Error(), "timeout")
	require.Less(t, elapsed, 5500*time.Millisecond)
}

// TestUnknownServiceFailsOnlyThatStream covers testable property 5: a
// client negotiating a service name the server never registered fails on
// that one stream, while a valid call on the same session, made through a
// second client that is open at the same time, succeeds.
func TestUnknownServiceFailsOnlyThatStream(t *testing.T) {
	f := newTestFixture(t)
	f.server.AddService("Echo", nitrogen.NewServiceHandler(testservice.EchoRoute))

	_, session := f.newClient(t)

	missing := testservice.NewCounterClient(session, nitrogen.WithRequestTimeout(time.Second))
	defer missing.Close()
	echo := testservice.NewEchoClient(session)
	defer echo.Close()

	_, err := missing.Inc(context.Background())
	require.Error(t, err)

	got, err := echo.Ping(context.Background(), []byte{9})
	require.NoError(t, err)
	require.Equal(t, "|name: Echo, time: [9]|", got)
}

// TestTwoClientsIndependentSessionsSeeOnlyOwnReplies covers the spec's
// two-client isolation scenario.
func TestTwoClientsIndependentSessionsSeeOnlyOwnReplies(t *testing.T) {
	f := newTestFixture(t)
	f.server.AddService("Echo", nitrogen.NewServiceHandler(testservice.EchoRoute))

	_, session1 := f.newClient(t)
	_, session2 := f.newClient(t)

	echo1 := testservice.NewEchoClient(session1)
	defer echo1.Close()
	echo2 := testservice.NewEchoClient(session2)
	defer echo2.Close()

	var wg sync.WaitGroup
	var gotA, gotB string
	var errA, errB error
	wg.Add(2)
	go func() {
		defer wg.Done()
		gotA, errA = echo1.Ping(context.Background(), []byte{65}) // 'A'
	}()
	go func() {
		defer wg.Done()
		gotB, errB = echo2.Ping(context.Background(), []byte{66}) // 'B'
	}()
	wg.Wait()

	require.NoError(t, errA)
	require.NoError(t, errB)
	require.Equal(t, "|name: Echo, time: [65]|", gotA)
	require.Equal(t, "|name: Echo, time: [66]|", gotB)
}

// TestIdempotentConnectConverges covers testable property 7: two
// concurrent Connect calls for the same address return the same session.
func TestIdempotentConnectConverges(t *testing.T) {
	f := newTestFixture(t)
	client, err := nitrogen.NewPeer(nitrogen.WithTLSConfig(f.clientTLS))
	require.NoError(t, err)
	defer client.Close()

	var wg sync.WaitGroup
	sessions := make([]*nitrogen.Session, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			session, err := client.Connect(ctx, f.addr)
			require.NoError(t, err)
			sessions[i] = session
		}(i)
	}
	wg.Wait()

	require.Same(t, sessions[0], sessions[1])
}

// TestInFlightCallFailureIsLocalizedToOneStream covers the spirit of the
// spec's server-restart scenario: a handler failure on one in-flight
// call (here, a route panic, recovered by the dispatcher) surfaces as a
// client-side error without disturbing the session — a subsequent call
// on the same session succeeds.
func TestInFlightCallFailureIsLocalizedToOneStream(t *testing.T) {
	f := newTestFixture(t)

	route := func(ctx context.Context, req int) int {
		if req == 0 {
			panic("simulated mid-call failure")
		}
		return req * req
	}
	f.server.AddService("Square", nitrogen.NewServiceHandler(route))

	_, session := f.newClient(t)
	client := nitrogen.NewClient[int, int](session, "Square", nitrogen.WithRequestTimeout(500*time.Millisecond))
	defer client.Close()

	_, err := client.Request(context.Background(), 0)
	require.Error(t, err)

	got, err := client.Request(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, 49, got)
}
