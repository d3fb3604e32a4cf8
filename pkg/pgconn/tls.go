// SPDX-License-Identifier: Apache-2.0

package pgconn

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// BuildTLSContext validates the TLS material referenced by d and loads
// it into a *tls.Config. lib/pq never accepts a prepared tls.Config
// directly — it builds its own from the sslmode/sslrootcert/sslcert/
// sslkey DSN keywords — so this is used to fail fast on a bad path or
// malformed certificate before a DSN is ever handed to the driver, not
// to perform the handshake itself.
func (d *ConnectionDescriptor) BuildTLSContext() (*tls.Config, error) {
	if d.TLSMode == "" {
		return nil, nil
	}

	cfg := &tls.Config{
		ServerName:         d.Host,
		InsecureSkipVerify: d.TLSMode == TLSRequire, //nolint:gosec
	}

	if d.TLSCa != "" {
		pem, err := os.ReadFile(d.TLSCa)
		if err != nil {
			return nil, fmt.Errorf("reading TLS CA %q: %w", d.TLSCa, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, &ConfigError{Message: fmt.Sprintf("no certificates found in %q", d.TLSCa)}
		}
		cfg.RootCAs = pool
	}

	if d.TLSCert != "" && d.TLSKey != "" {
		certPEM, err := os.ReadFile(d.TLSCert)
		if err != nil {
			return nil, fmt.Errorf("reading TLS client cert %q: %w", d.TLSCert, err)
		}
		keyPEM, err := os.ReadFile(d.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("reading TLS client key %q: %w", d.TLSKey, err)
		}
		cert, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("parsing TLS client key pair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	switch d.TLSMode {
	case TLSVerifyCA:
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainOnly(cfg.RootCAs)
	case TLSVerifyFull:
		// ServerName + default verification is already hostname-checked.
	}

	return cfg, nil
}

// verifyChainOnly builds a VerifyPeerCertificate callback that checks
// the certificate chain against pool but skips the hostname check,
// implementing TLSVerifyCA's "verify chain, no hostname" semantics.
func verifyChainOnly(pool *x509.CertPool) func([][]byte, [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return &ConfigError{Message: "no certificate presented by server"}
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parsing server certificate: %w", err)
		}
		opts := x509.VerifyOptions{Roots: pool}
		_, err = cert.Verify(opts)
		return err
	}
}
