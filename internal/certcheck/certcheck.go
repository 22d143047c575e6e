/*
Copyright (C) 2024 Espen Stefansen <espenas+github@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package certcheck inspects the TLS certificate a server presents for a
// given SNI name.
package certcheck

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/net/idna"
)

// ErrExpired is returned when the certificate is past its NotAfter date
var ErrExpired = errors.New("certificate has expired")

// ErrNameMismatch is returned when neither CN nor SANs cover the SNI name
var ErrNameMismatch = errors.New("hostname does not match")

// Certificate holds the fields the templates report on
type Certificate struct {
	CommonName string
	DNSNames   []string
	NotAfter   time.Time
	IssuerCN   string

	leaf *x509.Certificate
}

// Matches reports whether name is the subject CN or covered by a SAN entry
func (c *Certificate) Matches(name string) bool {
	if c.CommonName == name {
		return true
	}
	if c.leaf != nil {
		return c.leaf.VerifyHostname(name) == nil
	}
	for _, n := range c.DNSNames {
		if n == name {
			return true
		}
	}
	return false
}

// DaysLeft returns the whole days until expiry
func (c *Certificate) DaysLeft(now time.Time) (int, error) {
	left := c.NotAfter.Sub(now)
	if left <= 0 {
		return 0, ErrExpired
	}
	return int(left / (24 * time.Hour)), nil
}

// Checker fetches certificates
type Checker struct {
	Timeout time.Duration
	// RootCAs verifies the chain; nil means the system pool
	RootCAs *x509.CertPool
}

// LoadCABundle reads a PEM bundle
func LoadCABundle(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA bundle: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// Fetch connects to host:port, sends sni and returns the verified leaf.
// Host and SNI may be internationalized names.
func (c *Checker) Fetch(ctx context.Context, host string, port int, sni string) (*Certificate, error) {
	if sni == "" {
		sni = host
	}

	asciiHost, err := toASCII(host)
	if err != nil {
		return nil, err
	}
	asciiSNI, err := toASCII(sni)
	if err != nil {
		return nil, err
	}

	var leaf *x509.Certificate

	cfg := &tls.Config{
		ServerName: asciiSNI,
		// Chain is verified below without tying it to the host name, which
		// Matches checks separately.
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("server sent no certificate")
			}
			leaf = cs.PeerCertificates[0]

			inter := x509.NewCertPool()
			for _, cert := range cs.PeerCertificates[1:] {
				inter.AddCert(cert)
			}
			_, err := leaf.Verify(x509.VerifyOptions{
				Roots:         c.RootCAs,
				Intermediates: inter,
			})
			return err
		},
	}

	dialer := tls.Dialer{
		NetDialer: &net.Dialer{Timeout: c.Timeout},
		Config:    cfg,
	}

	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(asciiHost, strconv.Itoa(port)))
	if err != nil {
		var invalid x509.CertificateInvalidError
		if errors.As(err, &invalid) && invalid.Reason == x509.Expired {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("tls handshake with %s:%d: %w", host, port, err)
	}
	conn.Close()

	return &Certificate{
		CommonName: leaf.Subject.CommonName,
		DNSNames:   leaf.DNSNames,
		NotAfter:   leaf.NotAfter,
		IssuerCN:   leaf.Issuer.CommonName,
		leaf:       leaf,
	}, nil
}

// Check fetches the certificate and fails unless it matches sni
func (c *Checker) Check(ctx context.Context, host string, port int, sni string) (*Certificate, error) {
	if sni == "" {
		sni = host
	}

	cert, err := c.Fetch(ctx, host, port, sni)
	if err != nil {
		return nil, err
	}

	name, err := toASCII(sni)
	if err != nil {
		return nil, err
	}
	if !cert.Matches(name) {
		return cert, fmt.Errorf("%w: %s", ErrNameMismatch, sni)
	}

	return cert, nil
}

func toASCII(name string) (string, error) {
	if net.ParseIP(name) != nil {
		return name, nil
	}
	ascii, err := idna.Lookup.ToASCII(name)
	if err != nil {
		return "", fmt.Errorf("invalid host name %q: %w", name, err)
	}
	return ascii, nil
}
