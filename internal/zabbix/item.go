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

// Package zabbix implements the sender side of the Zabbix trapper protocol.
package zabbix

import (
	"strconv"
	"strings"
)

// Item is one value for a trapper item
type Item struct {
	Host  string
	Key   string
	Value string
	// Clock is a Unix timestamp; zero means the time of sending
	Clock int64
}

// Key builds an item key such as nginx.rps[access.log]. Parameters are
// quoted only when Zabbix key syntax requires it.
func Key(name string, params ...string) string {
	if len(params) == 0 {
		return name
	}

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('[')
	for i, p := range params {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(quoteParam(p))
	}
	b.WriteByte(']')

	return b.String()
}

func quoteParam(p string) string {
	if !strings.ContainsAny(p, `,[]" `) {
		return p
	}
	return `"` + strings.ReplaceAll(p, `"`, `\"`) + `"`
}

// IntValue formats an integer item value
func IntValue(v int) string {
	return strconv.Itoa(v)
}

// FloatValue formats a float item value without losing precision
func FloatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
