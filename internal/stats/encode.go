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
	"strconv"
	"time"

	"zbx-nginx-probe/internal/zabbix"
)

// Encoder turns a Summary into trapper items
type Encoder struct {
	// Host is the host name as configured in the Zabbix frontend
	Host string
	// KeyPrefix is prepended to every key, e.g. "nginx" gives nginx.rps[...]
	KeyPrefix string
}

// Encode builds, in order: one rps item per second of the window, one item
// per status code ascending, the avg_req items and the avg_res items by
// method. Only the rps items carry a clock; the rest are stamped at send time.
func (e Encoder) Encode(s Summary, filename string, windowStart time.Time) []zabbix.Item {
	items := make([]zabbix.Item, 0, SecondsPerMinute+len(s.Status)+len(s.AvgRequest)+len(s.AvgUpstream))
	start := windowStart.Unix()

	rpsKey := zabbix.Key(e.KeyPrefix+".rps", filename)
	for sec, n := range s.PerSecond {
		items = append(items, zabbix.Item{
			Host:  e.Host,
			Key:   rpsKey,
			Value: zabbix.IntValue(n),
			Clock: start + int64(sec),
		})
	}

	for _, code := range s.StatusCodes() {
		items = append(items, zabbix.Item{
			Host:  e.Host,
			Key:   zabbix.Key(e.KeyPrefix+".responses", filename, strconv.Itoa(code)),
			Value: zabbix.IntValue(s.Status[code]),
		})
	}

	for _, m := range s.AvgRequest {
		items = append(items, zabbix.Item{
			Host:  e.Host,
			Key:   zabbix.Key(e.KeyPrefix+".avg_req", filename, m.Method),
			Value: zabbix.FloatValue(m.Mean),
		})
	}

	for _, m := range s.AvgUpstream {
		items = append(items, zabbix.Item{
			Host:  e.Host,
			Key:   zabbix.Key(e.KeyPrefix+".avg_res", filename, m.Method),
			Value: zabbix.FloatValue(m.Mean),
		})
	}

	return items
}
