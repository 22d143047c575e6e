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

// Package stats folds request records into per-minute aggregates and
// encodes them as trapper items.
package stats

import (
	"sort"

	"zbx-nginx-probe/internal/parser"
)

// SecondsPerMinute is the number of per-second buckets
const SecondsPerMinute = 60

// DefaultStatusCodes are always reported, even with no occurrences
var DefaultStatusCodes = []int{200, 300, 301, 302, 304, 307, 400, 401, 403, 404, 410, 500, 501, 503, 550}

type latency struct {
	sum   float64
	count int
}

// Aggregator accumulates records of one minute window
type Aggregator struct {
	perSecond [SecondsPerMinute]int
	status    map[int]int
	request   map[string]*latency
	upstream  map[string]*latency
	accepted  int
}

// NewAggregator returns an empty aggregator with the default status codes seeded
func NewAggregator() *Aggregator {
	a := &Aggregator{
		status:   make(map[int]int, len(DefaultStatusCodes)),
		request:  make(map[string]*latency),
		upstream: make(map[string]*latency),
	}
	for _, code := range DefaultStatusCodes {
		a.status[code] = 0
	}
	return a
}

// Accept adds one record. Records with a second outside 0..59 are ignored;
// the parser never produces them.
func (a *Aggregator) Accept(rec parser.Record) {
	if rec.Second < 0 || rec.Second >= SecondsPerMinute {
		return
	}

	method := parser.NormalizeMethod(rec.Method)

	a.accepted++
	a.perSecond[rec.Second]++
	a.status[rec.Status]++
	add(a.request, method, rec.RequestTime)
	if rec.HasUpstream {
		add(a.upstream, method, rec.UpstreamTime)
	}
}

func add(m map[string]*latency, method string, v float64) {
	l, ok := m[method]
	if !ok {
		l = &latency{}
		m[method] = l
	}
	l.sum += v
	l.count++
}

// Accepted returns the number of records folded in so far
func (a *Aggregator) Accepted() int {
	return a.accepted
}

// MethodMean is the average of one method bucket
type MethodMean struct {
	Method  string
	Mean    float64
	Samples int
}

// Summary is the finished view of an Aggregator
type Summary struct {
	Accepted  int
	PerSecond [SecondsPerMinute]int
	// Status maps status code to count
	Status map[int]int
	// AvgRequest and AvgUpstream are sorted by method and never hold
	// empty buckets
	AvgRequest  []MethodMean
	AvgUpstream []MethodMean
}

// StatusCodes returns the codes of the histogram in ascending order
func (s Summary) StatusCodes() []int {
	codes := make([]int, 0, len(s.Status))
	for code := range s.Status {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	return codes
}

// Summarize computes the means. The aggregator is left untouched.
func (a *Aggregator) Summarize() Summary {
	s := Summary{
		Accepted:    a.accepted,
		PerSecond:   a.perSecond,
		Status:      make(map[int]int, len(a.status)),
		AvgRequest:  means(a.request),
		AvgUpstream: means(a.upstream),
	}
	for code, n := range a.status {
		s.Status[code] = n
	}
	return s
}

func means(m map[string]*latency) []MethodMean {
	out := make([]MethodMean, 0, len(m))
	for method, l := range m {
		if l.count == 0 {
			continue
		}
		out = append(out, MethodMean{
			Method:  method,
			Mean:    l.sum / float64(l.count),
			Samples: l.count,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}
