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

package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetrics(t *testing.T) {
	m := NewMetrics("access.log")

	m.SetScan(10, 2048, 7, 1)
	m.SetCheckpoint(4096)
	m.SetDelivery(true, 79, 2)
	m.IncStageFailure("checkpoint")
	m.IncStageFailure("checkpoint")

	assert.Equal(t, 10.0, testutil.ToFloat64(m.linesScanned))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.recordsAccepted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.linesMalformed))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.checkpointOffset))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliverySuccess))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsFailed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageFailures.WithLabelValues("checkpoint")))

	m.SetDelivery(false, 0, 0)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.deliverySuccess))
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics("access.log")
	m.SetScan(3, 300, 3, 0)
	start := time.Unix(1700000000, 0)
	m.Finish(start, start.Add(1500*time.Millisecond))

	path := filepath.Join(t.TempDir(), "zbx_nginx_probe.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.Contains(t, text, `zbx_nginx_probe_lines_scanned{logfile="access.log"} 3`)
	assert.Contains(t, text, `zbx_nginx_probe_run_duration_seconds{logfile="access.log"} 1.5`)
	assert.True(t, strings.Contains(text, "# HELP zbx_nginx_probe_records_accepted"))
}

func TestWriteTextfileBadDir(t *testing.T) {
	m := NewMetrics("access.log")
	assert.Error(t, m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom")))
}
