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

// Package parser turns nginx access log lines into request records.
package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinuteLayout is the minute part of nginx's $time_local
const MinuteLayout = "02/Jan/2006:15:04"

// DefaultPattern matches the combined log format extended with
// $request_time and $upstream_response_time as the last two fields. The
// upstream time may list several upstreams ("0.002, 0.004" or
// "0.002 : 0.004"). A single trailing token (some setups end the line with
// " .") is tolerated.
const DefaultPattern = `\[(?P<time>\d{2}/[A-Za-z]{3}/\d{4}:\d{2}:\d{2}):(?P<second>\d{2})[^\]]*\]\s+` +
	`"(?P<method>[A-Za-z]+)\s[^"]*"\s+(?P<status>\d{3})\s.*\s` +
	`(?P<request_time>\d+(?:\.\d+)?)\s+` +
	`(?P<upstream_time>(?:\d+(?:\.\d+)?|-)(?:\s*[,:]\s*(?:\d+(?:\.\d+)?|-))*)(?:\s+\S)?\s*$`

// RequiredGroups are the named groups every log pattern must define
var RequiredGroups = []string{"time", "second", "method", "status", "request_time", "upstream_time"}

// OtherMethod collects every method outside the known set
const OtherMethod = "OTHER"

// Methods lists the known HTTP methods in reporting order
var Methods = []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS", "TRACE", "CONNECT", "PATCH"}

var knownMethods = func() map[string]bool {
	m := make(map[string]bool, len(Methods))
	for _, method := range Methods {
		m[method] = true
	}
	return m
}()

// ErrMalformed marks an in-window line the pattern could not extract
var ErrMalformed = errors.New("malformed log line")

// ParseError carries the offending line
type ParseError struct {
	Line string
	Err  error
}

func (e *ParseError) Error() string {
	line := e.Line
	if len(line) > 200 {
		line = line[:200] + "..."
	}
	return fmt.Sprintf("failed to parse line %q: %v", line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Record is one request taken from the log
type Record struct {
	Second       int
	Method       string
	Status       int
	RequestTime  float64
	UpstreamTime float64
	// HasUpstream is false when nginx logged "-" (no upstream was contacted)
	HasUpstream bool
}

// Parser extracts records with a compiled log pattern
type Parser struct {
	re       *regexp.Regexp
	time     int
	second   int
	method   int
	status   int
	reqTime  int
	respTime int
}

// New compiles pattern and checks it defines all RequiredGroups
func New(pattern string) (*Parser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid log pattern: %w", err)
	}

	for _, name := range RequiredGroups {
		if re.SubexpIndex(name) < 0 {
			return nil, fmt.Errorf("log pattern missing required group: %s", name)
		}
	}

	return &Parser{
		re:       re,
		time:     re.SubexpIndex("time"),
		second:   re.SubexpIndex("second"),
		method:   re.SubexpIndex("method"),
		status:   re.SubexpIndex("status"),
		reqTime:  re.SubexpIndex("request_time"),
		respTime: re.SubexpIndex("upstream_time"),
	}, nil
}

// MinutePrefix formats t the way nginx prints the minute of $time_local
func MinutePrefix(t time.Time) string {
	return t.Format(MinuteLayout)
}

// Parse extracts a record from line if it was logged within minute (as
// produced by MinutePrefix). Lines outside the minute return ok == false and
// a nil error. Lines inside it that do not fit the pattern return a
// *ParseError wrapping ErrMalformed.
func (p *Parser) Parse(line, minute string) (rec Record, ok bool, err error) {
	if !strings.Contains(line, minute) {
		return Record{}, false, nil
	}

	m := p.re.FindStringSubmatch(line)
	if m == nil {
		return Record{}, false, &ParseError{Line: line, Err: ErrMalformed}
	}

	// The minute string may also occur in the URL or referer
	if m[p.time] != minute {
		return Record{}, false, nil
	}

	second, err := strconv.Atoi(m[p.second])
	if err != nil || second < 0 || second > 59 {
		return Record{}, false, &ParseError{Line: line, Err: fmt.Errorf("%w: seconds %q", ErrMalformed, m[p.second])}
	}

	status, err := strconv.Atoi(m[p.status])
	if err != nil {
		return Record{}, false, &ParseError{Line: line, Err: fmt.Errorf("%w: status %q", ErrMalformed, m[p.status])}
	}

	reqTime, err := parseDuration(m[p.reqTime])
	if err != nil {
		return Record{}, false, &ParseError{Line: line, Err: err}
	}

	rec = Record{
		Second:      second,
		Method:      NormalizeMethod(m[p.method]),
		Status:      status,
		RequestTime: reqTime,
	}

	rec.UpstreamTime, rec.HasUpstream, err = parseUpstream(m[p.respTime])
	if err != nil {
		return Record{}, false, &ParseError{Line: line, Err: err}
	}

	return rec, true, nil
}

// NormalizeMethod maps unknown methods to OtherMethod
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return OtherMethod
}

func parseDuration(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: duration %q", ErrMalformed, s)
	}
	return v, nil
}

// parseUpstream sums the times of every upstream nginx tried for the
// request. Entries logged as "-" contribute nothing; a value made only of
// them means no upstream was contacted.
func parseUpstream(s string) (float64, bool, error) {
	var total float64
	found := false

	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ':' }) {
		part = strings.TrimSpace(part)
		if part == "-" || part == "" {
			continue
		}
		v, err := parseDuration(part)
		if err != nil {
			return 0, false, err
		}
		total += v
		found = true
	}

	return total, found, nil
}
