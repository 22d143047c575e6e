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

package zabbix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Sender pushes item batches to a Zabbix server or proxy
type Sender struct {
	addr         string
	timeout      time.Duration
	compress     bool
	maxFrameSize uint64
	now          func() time.Time
	logger       zerolog.Logger
}

// Option customizes a Sender
type Option func(*Sender)

// WithCompression sends zlib compressed frames
func WithCompression(enabled bool) Option {
	return func(s *Sender) { s.compress = enabled }
}

// WithClock replaces the time source used for items without a clock
func WithClock(now func() time.Time) Option {
	return func(s *Sender) { s.now = now }
}

// WithMaxFrameSize bounds the size of the server reply
func WithMaxFrameSize(n uint64) Option {
	return func(s *Sender) { s.maxFrameSize = n }
}

// NewSender creates a sender for addr (host:port). Every connection is
// bounded by timeout.
func NewSender(addr string, timeout time.Duration, logger zerolog.Logger, opts ...Option) *Sender {
	s := &Sender{
		addr:         addr,
		timeout:      timeout,
		maxFrameSize: DefaultMaxFrameSize,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Response is the server acknowledgement of a batch
type Response struct {
	Response     string  `json:"response"`
	Info         string  `json:"info"`
	Processed    int     `json:"-"`
	Failed       int     `json:"-"`
	Total        int     `json:"-"`
	SecondsSpent float64 `json:"-"`
}

type senderRequest struct {
	Request string     `json:"request"`
	Data    []wireItem `json:"data"`
}

type wireItem struct {
	Host  string `json:"host"`
	Key   string `json:"key"`
	Value string `json:"value"`
	Clock int64  `json:"clock"`
}

var infoRe = regexp.MustCompile(`processed:\s*(\d+);\s*failed:\s*(\d+);\s*total:\s*(\d+);\s*seconds spent:\s*([0-9.]+)`)

// EncodeRequest builds the "sender data" document for items. Items without
// a clock are stamped with now.
func EncodeRequest(items []Item, now time.Time) ([]byte, error) {
	req := senderRequest{
		Request: "sender data",
		Data:    make([]wireItem, 0, len(items)),
	}

	for _, it := range items {
		clock := it.Clock
		if clock == 0 {
			clock = now.Unix()
		}
		req.Data = append(req.Data, wireItem{
			Host:  it.Host,
			Key:   it.Key,
			Value: it.Value,
			Clock: clock,
		})
	}

	return json.Marshal(req)
}

// Send delivers items in a single frame and waits for the acknowledgement.
// The returned error is always a *DeliveryError; no retry is attempted.
func (s *Sender) Send(ctx context.Context, items []Item) (*Response, error) {
	body, err := EncodeRequest(items, s.now())
	if err != nil {
		return nil, &DeliveryError{Stage: StageEncode, Err: err}
	}

	frame := EncodeFrame(body)
	if s.compress {
		frame, err = EncodeCompressedFrame(body)
		if err != nil {
			return nil, &DeliveryError{Stage: StageEncode, Err: err}
		}
	}

	dialer := net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, &DeliveryError{Stage: StageConnect, Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
	}
	defer conn.Close()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, &DeliveryError{Stage: StageConnect, Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
	}

	s.logger.Debug().
		Str("addr", s.addr).
		Int("items", len(items)).
		Int("frame_bytes", len(frame)).
		Bool("compressed", s.compress).
		Msg("Sending batch")

	if _, err := conn.Write(frame); err != nil {
		return nil, &DeliveryError{Stage: StageSend, Err: fmt.Errorf("%w: %v", ErrUnreachable, err)}
	}

	reply, err := ReadFrame(conn, s.maxFrameSize, s.compress)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, &DeliveryError{Stage: StageReceive, Err: fmt.Errorf("%w: no reply before deadline: %v", ErrUnreachable, netErr)}
		}
		return nil, &DeliveryError{Stage: StageReceive, Err: err}
	}

	resp, err := DecodeResponse(reply)
	if err != nil {
		return nil, &DeliveryError{Stage: StageResponse, Err: err}
	}

	if resp.Failed > 0 {
		s.logger.Warn().
			Int("processed", resp.Processed).
			Int("failed", resp.Failed).
			Int("total", resp.Total).
			Msg("Server did not accept every item, check item keys and host name")
	}

	return resp, nil
}

// DecodeResponse parses a reply body and checks that it reports success
func DecodeResponse(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: invalid response body: %v", ErrProtocolMismatch, err)
	}

	if resp.Response != "success" {
		return &resp, fmt.Errorf("%w: response %q, info %q", ErrRejected, resp.Response, resp.Info)
	}

	if m := infoRe.FindStringSubmatch(resp.Info); m != nil {
		resp.Processed, _ = strconv.Atoi(m[1])
		resp.Failed, _ = strconv.Atoi(m[2])
		resp.Total, _ = strconv.Atoi(m[3])
		resp.SecondsSpent, _ = strconv.ParseFloat(m[4], 64)
	}

	return &resp, nil
}
