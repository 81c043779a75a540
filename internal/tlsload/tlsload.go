// Package tlsload turns a PKCS#12 bundle into a *tls.Config for the TAK
// server connection, the external credential-loading collaborator pinned in
// spec §6.
package tlsload

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// Load reads the PKCS#12 file at path, decrypts it with password, and
// returns a tls.Config carrying the client certificate and a root pool
// containing any CAs bundled alongside it. skipVerify disables server
// certificate verification (spec §6 TAK config surface).
func Load(path, password string, skipVerify bool) (*tls.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dragonsync: tlsload: reading %s: %w", path, err)
	}

	privateKey, cert, caCerts, err := pkcs12.DecodeChain(raw, password)
	if err != nil {
		return nil, fmt.Errorf("dragonsync: tlsload: decoding %s: %w", path, err)
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}

	pool := x509.NewCertPool()
	for _, ca := range caCerts {
		pool.AddCert(ca)
	}

	return &tls.Config{
		Certificates:       []tls.Certificate{tlsCert},
		RootCAs:            pool,
		InsecureSkipVerify: skipVerify,
	}, nil
}
