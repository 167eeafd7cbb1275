//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: this repository's own QUICDialConfig (options struct with
// documented mandatory/optional fields), generalized into PeerOption and
// ClientOption for Peer and the per-service client drivers.
//

package nitrogen

import (
	"crypto/tls"
	"time"

	"github.com/sirupsen/logrus"
)

// defaultKeepAlivePeriod is used on both the dial and accept path's
// [*quic.Config]; no PeerOption overrides it.
const defaultKeepAlivePeriod = 15 * time.Second

// defaultRequestTimeout is the per-call timeout enforced by the client
// driver (spec: 5 seconds).
const defaultRequestTimeout = 5 * time.Second

// defaultReconnectBackoff is how long the client driver sleeps before
// retrying stream acquisition after the stream or session fails.
const defaultReconnectBackoff = 1 * time.Second

// defaultRequestChannelCapacity is the client driver's request channel
// capacity (spec: 128).
const defaultRequestChannelCapacity = 128

// peerConfig collects the options a [*Peer] is constructed with.
//
// Fill the MANDATORY fields. Construct with [NewPeer].
type peerConfig struct {
	// TLSConfig is the MANDATORY mTLS configuration (CA + identity
	// certificate/key pair) used for both dialing and serving.
	TLSConfig *tls.Config

	// Logger is the OPTIONAL logger used for driver/dispatcher/inbound-loop
	// diagnostics. If nil, a disabled logger is used.
	Logger *logrus.Entry
}

// PeerOption configures a [*Peer] at construction time.
type PeerOption func(*peerConfig)

// WithTLSConfig sets the mTLS configuration used for dialing and serving.
func WithTLSConfig(cfg *tls.Config) PeerOption {
	return func(c *peerConfig) { c.TLSConfig = cfg }
}

// WithLogger sets the logger used for background diagnostics.
func WithLogger(logger *logrus.Entry) PeerOption {
	return func(c *peerConfig) { c.Logger = logger }
}

// clientConfig collects the options a derived per-service client is
// constructed with.
type clientConfig struct {
	Timeout          time.Duration
	ReconnectBackoff time.Duration
	ChannelCapacity  int
	Logger           *logrus.Entry
}

// ClientOption configures a derived service client's driver.
type ClientOption func(*clientConfig)

// WithRequestTimeout overrides the per-call timeout (default 5s).
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.Timeout = d }
}

// WithReconnectBackoff overrides the driver's reconnect sleep (default 1s).
func WithReconnectBackoff(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.ReconnectBackoff = d }
}

// WithClientLogger sets the logger used by the client driver.
func WithClientLogger(logger *logrus.Entry) ClientOption {
	return func(c *clientConfig) { c.Logger = logger }
}

func newClientConfig(opts ...ClientOption) *clientConfig {
	c := &clientConfig{
		Timeout:          defaultRequestTimeout,
		ReconnectBackoff: defaultReconnectBackoff,
		ChannelCapacity:  defaultRequestChannelCapacity,
		Logger:           discardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
