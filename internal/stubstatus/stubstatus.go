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

// Package stubstatus scrapes the nginx stub_status page.
package stubstatus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"zbx-nginx-probe/internal/zabbix"
)

// Status is the content of a stub_status page
type Status struct {
	ActiveConnections    int64
	AcceptedConnections  int64
	HandledConnections   int64
	HandledRequests      int64
	HeaderReading        int64
	BodyReading          int64
	KeepaliveConnections int64
}

var (
	activeRe   = regexp.MustCompile(`Active connections:\s*(\d+)`)
	countersRe = regexp.MustCompile(`(?m)^\s*(\d+)\s+(\d+)\s+(\d+)\s*$`)
	stateRe    = regexp.MustCompile(`Reading:\s*(\d+)\s+Writing:\s*(\d+)\s+Waiting:\s*(\d+)`)
)

// Parse reads the plain text stub_status output
func Parse(body []byte) (Status, error) {
	var s Status

	m := activeRe.FindSubmatch(body)
	if m == nil {
		return s, fmt.Errorf("stub_status: missing active connections")
	}
	s.ActiveConnections, _ = strconv.ParseInt(string(m[1]), 10, 64)

	m = countersRe.FindSubmatch(body)
	if m == nil {
		return s, fmt.Errorf("stub_status: missing accepts/handled/requests counters")
	}
	s.AcceptedConnections, _ = strconv.ParseInt(string(m[1]), 10, 64)
	s.HandledConnections, _ = strconv.ParseInt(string(m[2]), 10, 64)
	s.HandledRequests, _ = strconv.ParseInt(string(m[3]), 10, 64)

	m = stateRe.FindSubmatch(body)
	if m == nil {
		return s, fmt.Errorf("stub_status: missing reading/writing/waiting line")
	}
	s.HeaderReading, _ = strconv.ParseInt(string(m[1]), 10, 64)
	s.BodyReading, _ = strconv.ParseInt(string(m[2]), 10, 64)
	s.KeepaliveConnections, _ = strconv.ParseInt(string(m[3]), 10, 64)

	return s, nil
}

// Scraper fetches stub_status and reports it as items of one log file
type Scraper struct {
	URL       string
	Username  string
	Password  string
	Host      string
	KeyPrefix string
	Filename  string
	Client    *http.Client
}

// NewScraper creates a scraper whose requests are bounded by timeout
func NewScraper(url string, timeout time.Duration) *Scraper {
	return &Scraper{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

func (s *Scraper) Name() string {
	return "stub_status"
}

// Fetch downloads and parses the status page
func (s *Scraper) Fetch(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return Status{}, fmt.Errorf("stub_status: %w", err)
	}
	if s.Username != "" && s.Password != "" {
		req.SetBasicAuth(s.Username, s.Password)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("stub_status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("stub_status: unexpected HTTP status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return Status{}, fmt.Errorf("stub_status: reading body: %w", err)
	}

	return Parse(body)
}

// Items fetches the page and converts it to trapper items
func (s *Scraper) Items(ctx context.Context) ([]zabbix.Item, error) {
	st, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	values := []struct {
		name  string
		value int64
	}{
		{"active_connections", st.ActiveConnections},
		{"accepted_connections", st.AcceptedConnections},
		{"handled_connections", st.HandledConnections},
		{"handled_requests", st.HandledRequests},
		{"header_reading", st.HeaderReading},
		{"body_reading", st.BodyReading},
		{"keepalive_connections", st.KeepaliveConnections},
	}

	items := make([]zabbix.Item, 0, len(values))
	for _, v := range values {
		items = append(items, zabbix.Item{
			Host:  s.Host,
			Key:   zabbix.Key(s.KeyPrefix+"."+v.name, s.Filename),
			Value: strconv.FormatInt(v.value, 10),
		})
	}

	return items, nil
}
