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
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics describes the outcome of one probe run. It lives in a private
// registry so several runs in one process never collide, and is exported
// through the node_exporter textfile collector.
type Metrics struct {
	registry *prometheus.Registry

	linesScanned     prometheus.Gauge
	bytesRead        prometheus.Gauge
	recordsAccepted  prometheus.Gauge
	linesMalformed   prometheus.Gauge
	checkpointOffset prometheus.Gauge
	itemsSent        prometheus.Gauge
	itemsFailed      prometheus.Gauge
	deliverySuccess  prometheus.Gauge
	stageFailures    *prometheus.CounterVec
	lastRun          prometheus.Gauge
	runDuration      prometheus.Gauge
}

// NewMetrics creates the run metrics for one log file
func NewMetrics(logfile string) *Metrics {
	labels := prometheus.Labels{"logfile": logfile}

	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "zbx_nginx_probe",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		})
	}

	m := &Metrics{
		registry:         prometheus.NewRegistry(),
		linesScanned:     gauge("lines_scanned", "Log lines read in the last run"),
		bytesRead:        gauge("bytes_read", "Log bytes read in the last run"),
		recordsAccepted:  gauge("records_accepted", "Lines of the target minute aggregated in the last run"),
		linesMalformed:   gauge("lines_malformed", "Lines of the target minute that did not match the log pattern"),
		checkpointOffset: gauge("checkpoint_offset_bytes", "Checkpoint offset after the last run"),
		itemsSent:        gauge("items_sent", "Items delivered to the Zabbix server in the last run"),
		itemsFailed:      gauge("items_failed", "Items the Zabbix server reported as failed in the last run"),
		deliverySuccess:  gauge("delivery_success", "1 if the last batch was acknowledged, 0 otherwise"),
		lastRun:          gauge("last_run_timestamp_seconds", "Unix time the last run finished"),
		runDuration:      gauge("run_duration_seconds", "Wall time of the last run"),
		stageFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "zbx_nginx_probe",
				Name:        "stage_failures_total",
				Help:        "Failures by run stage",
				ConstLabels: labels,
			},
			[]string{"stage"},
		),
	}

	m.registry.MustRegister(
		m.linesScanned,
		m.bytesRead,
		m.recordsAccepted,
		m.linesMalformed,
		m.checkpointOffset,
		m.itemsSent,
		m.itemsFailed,
		m.deliverySuccess,
		m.lastRun,
		m.runDuration,
		m.stageFailures,
	)

	return m
}

// Registry exposes the underlying registry as a Gatherer
func (m *Metrics) Registry() prometheus.Gatherer {
	return m.registry
}

// SetScan records what the log scan saw
func (m *Metrics) SetScan(lines, bytes, accepted, malformed int64) {
	m.linesScanned.Set(float64(lines))
	m.bytesRead.Set(float64(bytes))
	m.recordsAccepted.Set(float64(accepted))
	m.linesMalformed.Set(float64(malformed))
}

// SetCheckpoint records the offset the next run resumes from
func (m *Metrics) SetCheckpoint(offset int64) {
	m.checkpointOffset.Set(float64(offset))
}

// SetDelivery records the acknowledgement of a batch
func (m *Metrics) SetDelivery(ok bool, sent, failed int) {
	if ok {
		m.deliverySuccess.Set(1)
	} else {
		m.deliverySuccess.Set(0)
	}
	m.itemsSent.Set(float64(sent))
	m.itemsFailed.Set(float64(failed))
}

// IncStageFailure counts a delivery failure by the stage it happened in
func (m *Metrics) IncStageFailure(stage string) {
	m.stageFailures.WithLabelValues(stage).Inc()
}

// Finish stamps the end of the run
func (m *Metrics) Finish(start, end time.Time) {
	m.lastRun.Set(float64(end.Unix()))
	m.runDuration.Set(end.Sub(start).Seconds())
}

// WriteTextfile writes all metrics in the text exposition format. The file
// is replaced atomically, as the textfile collector expects.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
