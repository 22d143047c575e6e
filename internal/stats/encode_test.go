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

package stats

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zbx-nginx-probe/internal/parser"
	"zbx-nginx-probe/internal/zabbix"
)

func TestEncodeScenario(t *testing.T) {
	a := NewAggregator()
	a.Accept(parser.Record{Second: 10, Method: "GET", Status: 200, RequestTime: 0.125, UpstreamTime: 0.25, HasUpstream: true})
	a.Accept(parser.Record{Second: 10, Method: "GET", Status: 200, RequestTime: 0.375, UpstreamTime: 0.75, HasUpstream: true})
	a.Accept(parser.Record{Second: 45, Method: "POST", Status: 404, RequestTime: 0.5, UpstreamTime: 0.0625, HasUpstream: true})

	s := a.Summarize()
	assert.Equal(t, 2, s.PerSecond[10])
	assert.Equal(t, 1, s.PerSecond[45])
	assert.Equal(t, 2, s.Status[200])
	assert.Equal(t, 1, s.Status[404])

	windowStart := time.Unix(1484390220, 0)
	enc := Encoder{Host: "web01", KeyPrefix: "nginx"}
	items := enc.Encode(s, "access.log", windowStart)

	require.Len(t, items, 60+len(DefaultStatusCodes)+2+2)

	for sec := 0; sec < 60; sec++ {
		it := items[sec]
		assert.Equal(t, "web01", it.Host)
		assert.Equal(t, "nginx.rps[access.log]", it.Key)
		assert.Equal(t, windowStart.Unix()+int64(sec), it.Clock)
		assert.Equal(t, fmt.Sprint(s.PerSecond[sec]), it.Value)
	}

	status := items[60 : 60+len(DefaultStatusCodes)]
	assert.Equal(t, "nginx.responses[access.log,200]", status[0].Key)
	assert.Equal(t, "2", status[0].Value)
	assert.Zero(t, status[0].Clock)
	for i := 1; i < len(status); i++ {
		assert.Less(t, status[i-1].Key, status[i].Key)
	}

	tail := items[60+len(DefaultStatusCodes):]
	assert.Equal(t, []zabbix.Item{
		{Host: "web01", Key: "nginx.avg_req[access.log,GET]", Value: "0.25"},
		{Host: "web01", Key: "nginx.avg_req[access.log,POST]", Value: "0.5"},
		{Host: "web01", Key: "nginx.avg_res[access.log,GET]", Value: "0.5"},
		{Host: "web01", Key: "nginx.avg_res[access.log,POST]", Value: "0.0625"},
	}, tail)
}

func TestEncodeEmptySummary(t *testing.T) {
	items := Encoder{Host: "h", KeyPrefix: "web"}.Encode(NewAggregator().Summarize(), "x.log", time.Unix(60, 0))

	require.Len(t, items, 60+len(DefaultStatusCodes))
	assert.Equal(t, "web.rps[x.log]", items[0].Key)
	assert.Equal(t, "0", items[0].Value)
	assert.Equal(t, int64(119), items[59].Clock)
}

func TestEncodeDoesNotMutateSummary(t *testing.T) {
	s := Summary{
		Status:     map[int]int{200: 1},
		AvgRequest: []MethodMean{{Method: "GET", Mean: 1, Samples: 1}},
	}
	Encoder{Host: "h", KeyPrefix: "nginx"}.Encode(s, "a.log", time.Unix(0, 0))

	assert.Equal(t, map[int]int{200: 1}, s.Status)
	assert.Equal(t, []MethodMean{{Method: "GET", Mean: 1, Samples: 1}}, s.AvgRequest)
}
