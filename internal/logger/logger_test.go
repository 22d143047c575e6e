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

package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestNewDebugOverridesLevel(t *testing.T) {
	l, err := New(Config{Level: "error", Debug: true})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	require.Error(t, err)

	_, err = New(Config{Output: "syslog"})
	require.Error(t, err)
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer

	base, err := NewWithWriter(Config{Level: "debug"}, &buf)
	require.NoError(t, err)

	l := WithComponent(base, "tail")
	l.Info().Msg("hello")

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, "tail", event["component"])
	assert.Equal(t, "hello", event["message"])
	assert.Equal(t, "info", event["level"])
}
