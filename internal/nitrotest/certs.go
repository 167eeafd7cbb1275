// SPDX-License-Identifier: GPL-3.0-or-later

// Package nitrotest provides test-only helpers for exercising the
// nitrogen RPC engine: a self-signed mTLS certificate authority and leaf
// issuance, used to build matching client/server *tls.Config pairs
// without checked-in fixtures.
//
// The teacher carries an indirect dependency on
// github.com/bassosimone/pkitest for exactly this purpose, but no source
// for it exists anywhere in the reference corpus, so there is no call
// shape to build against without guessing at an API. This package uses
// the standard library's own certificate-authoring surface instead.
package nitrotest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"time"
)

// CA is a self-signed certificate authority used to issue leaf
// certificates for both ends of an mTLS connection in tests.
type CA struct {
	cert    *x509.Certificate
	certDER []byte
	key     *ecdsa.PrivateKey
}

// NewCA generates a fresh self-signed CA.
func NewCA() (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("nitrotest: generate CA key: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "nitrogen-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("nitrotest: create CA certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("nitrotest: parse CA certificate: %w", err)
	}

	return &CA{cert: cert, certDER: der, key: key}, nil
}

// IssueLeaf issues a leaf certificate signed by the CA, valid for
// "localhost" and 127.0.0.1 — the fixed server name nitrogen's dialer
// verifies against.
func (ca *CA) IssueLeaf() (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("nitrotest: generate leaf key: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.cert, &key.PublicKey, ca.key)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("nitrotest: create leaf certificate: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der, ca.certDER},
		PrivateKey:  key,
	}, nil
}

// CertPool returns an *x509.CertPool trusting only this CA.
func (ca *CA) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(ca.cert)
	return pool
}

// TLSConfigPair returns a (clientConfig, serverConfig) pair configured
// for mutual TLS authentication over a single CA: each side presents a
// leaf the other trusts, and each requires the peer to present one too.
func TLSConfigPair() (clientConfig, serverConfig *tls.Config, err error) {
	ca, err := NewCA()
	if err != nil {
		return nil, nil, err
	}

	clientLeaf, err := ca.IssueLeaf()
	if err != nil {
		return nil, nil, err
	}
	serverLeaf, err := ca.IssueLeaf()
	if err != nil {
		return nil, nil, err
	}

	pool := ca.CertPool()

	clientConfig = &tls.Config{
		Certificates: []tls.Certificate{clientLeaf},
		RootCAs:      pool,
		ClientCAs:    pool,
		ServerName:   "localhost",
		NextProtos:   []string{"nitrogen"},
	}
	serverConfig = &tls.Config{
		Certificates: []tls.Certificate{serverLeaf},
		RootCAs:      pool,
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		NextProtos:   []string{"nitrogen"},
	}
	return clientConfig, serverConfig, nil
}
