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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "nginx.rps", Key("nginx.rps"))
	assert.Equal(t, "nginx.rps[access.log]", Key("nginx.rps", "access.log"))
	assert.Equal(t, "nginx.responses[access.log,404]", Key("nginx.responses", "access.log", "404"))
	assert.Equal(t, `nginx.rps["a,b.log"]`, Key("nginx.rps", "a,b.log"))
	assert.Equal(t, `nginx.rps["my \"x\" log"]`, Key("nginx.rps", `my "x" log`))
}

func TestValues(t *testing.T) {
	assert.Equal(t, "42", IntValue(42))
	assert.Equal(t, "0.125", FloatValue(0.125))
	assert.Equal(t, "3", FloatValue(3))
}
