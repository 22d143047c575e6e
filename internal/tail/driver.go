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

// Package tail runs one incremental pass over an access log: it resumes at
// the saved offset, aggregates the lines of the target minute, saves the
// new offset and ships the aggregates to Zabbix.
package tail

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zbx-nginx-probe/internal/metrics"
	"zbx-nginx-probe/internal/parser"
	"zbx-nginx-probe/internal/position"
	"zbx-nginx-probe/internal/stats"
	"zbx-nginx-probe/internal/zabbix"
)

// Sender delivers a batch of items
type Sender interface {
	Send(ctx context.Context, items []zabbix.Item) (*zabbix.Response, error)
}

// ItemSource contributes extra items to the batch of a run
type ItemSource interface {
	Name() string
	Items(ctx context.Context) ([]zabbix.Item, error)
}

// FileAccessError means the log itself could not be read; the run is aborted
// before any network I/O.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("failed to access file %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}

// Options configure a Driver
type Options struct {
	Host      string
	KeyPrefix string
	// Lookback is subtracted from now before truncating to the minute, so
	// nginx has flushed the whole window by the time it is read.
	Lookback time.Duration
	Location *time.Location
	// CheckpointPattern is expanded with position.PathFor
	CheckpointPattern string
	// ReadOnly leaves the checkpoint untouched
	ReadOnly bool
	// Textfile, when set, receives the run metrics
	Textfile string
}

// Driver processes one log file
type Driver struct {
	logPath string
	opts    Options
	parser  *parser.Parser
	sender  Sender
	sources []ItemSource
	now     func() time.Time
	logger  zerolog.Logger
}

// Result describes a finished run
type Result struct {
	Window          time.Time
	StartOffset     int64
	Offset          int64
	Rotated         bool
	LinesScanned    int64
	BytesRead       int64
	Malformed       int64
	CheckpointSaved bool
	Summary         stats.Summary
	Items           []zabbix.Item
	Response        *zabbix.Response
}

// NewDriver creates a driver for logPath
func NewDriver(logPath string, opts Options, p *parser.Parser, sender Sender, logger zerolog.Logger) *Driver {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Driver{
		logPath: logPath,
		opts:    opts,
		parser:  p,
		sender:  sender,
		now:     time.Now,
		logger:  logger.With().Str("logfile", logPath).Logger(),
	}
}

// AddSource appends an extra item source
func (d *Driver) AddSource(src ItemSource) {
	d.sources = append(d.sources, src)
}

// SetClock replaces the time source
func (d *Driver) SetClock(now func() time.Time) {
	d.now = now
}

// Window returns the start of the minute a run started at now aggregates
func (d *Driver) Window(now time.Time) time.Time {
	t := now.Add(-d.opts.Lookback).In(d.opts.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, d.opts.Location)
}

// Run performs one pass. A *FileAccessError aborts the run. A failed
// delivery returns the result together with a *zabbix.DeliveryError; the
// checkpoint has been saved by then and is not rolled back.
func (d *Driver) Run(ctx context.Context) (*Result, error) {
	start := d.now()
	m := metrics.NewMetrics(filepath.Base(d.logPath))
	defer d.writeMetrics(m, start)

	res := &Result{Window: d.Window(start)}
	minute := parser.MinutePrefix(res.Window)

	checkpointFile, err := position.PathFor(d.opts.CheckpointPattern, d.logPath)
	if err != nil {
		m.IncStageFailure("checkpoint")
		return nil, err
	}
	tracker := position.NewTracker(checkpointFile)

	offset, err := tracker.Load()
	if err != nil {
		d.logger.Warn().Err(err).Str("checkpoint", checkpointFile).Msg("Checkpoint unreadable, starting from beginning")
	}
	res.StartOffset = offset

	agg := stats.NewAggregator()
	if err := d.scan(agg, minute, offset, res); err != nil {
		m.IncStageFailure("scan")
		return nil, err
	}

	res.Summary = agg.Summarize()
	m.SetScan(res.LinesScanned, res.BytesRead, int64(res.Summary.Accepted), res.Malformed)

	d.logger.Info().
		Str("window", minute).
		Int64("from", res.StartOffset).
		Int64("lines", res.LinesScanned).
		Int("accepted", res.Summary.Accepted).
		Int64("malformed", res.Malformed).
		Msg("Scanned log")

	if res.Malformed > 0 {
		d.logger.Warn().Int64("malformed", res.Malformed).Msg("Skipped lines that did not match the log format")
	}

	if res.Summary.Accepted > 0 && !d.opts.ReadOnly {
		if err := tracker.Save(res.Offset); err != nil {
			m.IncStageFailure("checkpoint")
			d.logger.Warn().Err(err).Str("checkpoint", checkpointFile).Msg("Failed to save checkpoint")
		} else {
			res.CheckpointSaved = true
		}
	}
	m.SetCheckpoint(res.Offset)

	enc := stats.Encoder{Host: d.opts.Host, KeyPrefix: d.opts.KeyPrefix}
	res.Items = enc.Encode(res.Summary, filepath.Base(d.logPath), res.Window)

	for _, src := range d.sources {
		items, err := src.Items(ctx)
		if err != nil {
			m.IncStageFailure(src.Name())
			d.logger.Warn().Err(err).Str("source", src.Name()).Msg("Item source failed, sending log statistics only")
			continue
		}
		res.Items = append(res.Items, items...)
	}

	resp, err := d.sender.Send(ctx, res.Items)
	if err != nil {
		m.IncStageFailure("send")
		m.SetDelivery(false, 0, 0)
		return res, err
	}
	res.Response = resp
	m.SetDelivery(true, resp.Processed, resp.Failed)

	d.logger.Info().
		Int("items", len(res.Items)).
		Int("processed", resp.Processed).
		Int("failed", resp.Failed).
		Msg("Batch delivered")

	return res, nil
}

// scan reads complete lines from offset up to the size the file had when it
// was opened. res.Offset ends up just past the last aggregated line, or at
// the starting offset when nothing was aggregated.
func (d *Driver) scan(agg *stats.Aggregator, minute string, offset int64, res *Result) error {
	file, err := os.Open(d.logPath)
	if err != nil {
		return &FileAccessError{Path: d.logPath, Err: err}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return &FileAccessError{Path: d.logPath, Err: err}
	}
	size := info.Size()

	if offset > size {
		d.logger.Info().Int64("checkpoint", offset).Int64("size", size).Msg("Log shrank, assuming rotation and starting from beginning")
		offset = 0
		res.Rotated = true
	}
	res.StartOffset = offset
	res.Offset = offset

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return &FileAccessError{Path: d.logPath, Err: err}
	}

	reader := bufio.NewReaderSize(io.LimitReader(file, size-offset), 64*1024)
	pos := offset

	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// A trailing line without newline may still be being written
			if line != "" {
				d.logger.Debug().Int("bytes", len(line)).Msg("Leaving incomplete last line for the next run")
			}
			break
		}
		if err != nil {
			return &FileAccessError{Path: d.logPath, Err: err}
		}

		pos += int64(len(line))
		res.LinesScanned++
		res.BytesRead += int64(len(line))

		rec, ok, err := d.parser.Parse(strings.TrimRight(line, "\r\n"), minute)
		if err != nil {
			res.Malformed++
			if res.Malformed == 1 {
				d.logger.Warn().Err(err).Int64("offset", pos-int64(len(line))).Msg("Malformed line in window")
			} else {
				d.logger.Debug().Err(err).Int64("offset", pos-int64(len(line))).Msg("Malformed line in window")
			}
			continue
		}
		if !ok {
			continue
		}

		agg.Accept(rec)
		res.Offset = pos
	}

	return nil
}

func (d *Driver) writeMetrics(m *metrics.Metrics, start time.Time) {
	if d.opts.Textfile == "" {
		return
	}
	m.Finish(start, d.now())
	if err := m.WriteTextfile(d.opts.Textfile); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to write run metrics")
	}
}
