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

package certcheck

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tlsServer(t *testing.T) (*httptest.Server, *Checker, int) {
	t.Helper()

	srv := httptest.NewTLSServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	t.Cleanup(srv.Close)

	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	pool := srv.Client().Transport.(*http.Transport).TLSClientConfig.RootCAs
	return srv, &Checker{Timeout: 2 * time.Second, RootCAs: pool}, port
}

func TestCheckMatchingName(t *testing.T) {
	srv, c, port := tlsServer(t)

	cert, err := c.Check(context.Background(), "127.0.0.1", port, "example.com")
	require.NoError(t, err)

	assert.Contains(t, cert.DNSNames, "example.com")
	assert.True(t, cert.NotAfter.Equal(srv.Certificate().NotAfter))

	days, err := cert.DaysLeft(time.Now())
	require.NoError(t, err)
	assert.Greater(t, days, 365)
}

func TestCheckNameMismatch(t *testing.T) {
	_, c, port := tlsServer(t)

	_, err := c.Check(context.Background(), "127.0.0.1", port, "other.example.org")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNameMismatch))
}

func TestFetchUntrustedChain(t *testing.T) {
	_, c, port := tlsServer(t)
	c.RootCAs = nil

	_, err := c.Fetch(context.Background(), "127.0.0.1", port, "example.com")
	assert.Error(t, err)
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Certificate{NotAfter: now.Add(10*24*time.Hour + time.Hour)}

	days, err := c.DaysLeft(now)
	require.NoError(t, err)
	assert.Equal(t, 10, days)

	_, err = c.DaysLeft(now.Add(11 * 24 * time.Hour))
	assert.True(t, errors.Is(err, ErrExpired))
}

func TestMatchesWithoutLeaf(t *testing.T) {
	c := &Certificate{CommonName: "a.example", DNSNames: []string{"b.example"}}
	assert.True(t, c.Matches("a.example"))
	assert.True(t, c.Matches("b.example"))
	assert.False(t, c.Matches("c.example"))
}

func TestToASCII(t *testing.T) {
	got, err := toASCII("bücher.example")
	require.NoError(t, err)
	assert.Equal(t, "xn--bcher-kva.example", got)

	got, err = toASCII("127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", got)
}
