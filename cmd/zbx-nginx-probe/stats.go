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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"zbx-nginx-probe/internal/config"
	"zbx-nginx-probe/internal/logger"
	"zbx-nginx-probe/internal/parser"
	"zbx-nginx-probe/internal/stubstatus"
	"zbx-nginx-probe/internal/tail"
	"zbx-nginx-probe/internal/zabbix"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		dryRun bool
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "stats <logfile>",
		Short: "Aggregate the last complete minute of an access log and send it to Zabbix",
		Long: `Reads the access log from the saved checkpoint, aggregates requests per
second, response codes and average request/upstream times of the minute that
ended one lookback ago, saves the checkpoint and sends the values to the
Zabbix trapper.

A failed delivery is logged and the values of that minute are lost; the exit
code stays 0 unless --strict is given.`,
		Args: cobra.ExactArgs(1),
	}

	overrides := config.AddFlags(cmd.Flags())
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the items as JSON instead of sending them; the checkpoint is not saved")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when the batch is not delivered")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, log, err := a.load(overrides)
		if err != nil {
			return err
		}

		logPath := args[0]

		p, err := parser.New(cfg.LogFormat.Pattern)
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		var sender tail.Sender = zabbix.NewSender(
			cfg.CollectorAddress(),
			cfg.Zabbix.Timeout,
			logger.WithComponent(log, "zabbix"),
			zabbix.WithCompression(cfg.Zabbix.Compress),
		)
		if dryRun {
			sender = &printSender{out: cmd.OutOrStdout(), now: time.Now}
		}

		driver := tail.NewDriver(logPath, tail.Options{
			Host:              cfg.Host,
			KeyPrefix:         cfg.KeyPrefix,
			Lookback:          cfg.Lookback,
			Location:          loc,
			CheckpointPattern: cfg.Checkpoint.Pattern,
			ReadOnly:          dryRun,
			Textfile:          cfg.Metrics.Textfile,
		}, p, sender, logger.WithComponent(log, "tail"))

		if cfg.StubStatus.URL != "" {
			scraper := stubstatus.NewScraper(cfg.StubStatus.URL, cfg.Zabbix.Timeout)
			scraper.Username = cfg.StubStatus.Username
			scraper.Password = cfg.StubStatus.Password
			scraper.Host = cfg.Host
			scraper.KeyPrefix = cfg.KeyPrefix
			scraper.Filename = filepath.Base(logPath)
			driver.AddSource(scraper)
		}

		_, err = driver.Run(cmd.Context())

		var derr *zabbix.DeliveryError
		if errors.As(err, &derr) {
			log.Error().Err(err).Str("stage", derr.Stage).Str("server", cfg.CollectorAddress()).Msg("Failed to deliver metrics")
			if strict {
				return err
			}
			return nil
		}

		return err
	}

	return cmd
}

// printSender writes the request document instead of sending it
type printSender struct {
	out io.Writer
	now func() time.Time
}

func (s *printSender) Send(_ context.Context, items []zabbix.Item) (*zabbix.Response, error) {
	body, err := zabbix.EncodeRequest(items, s.now())
	if err != nil {
		return nil, &zabbix.DeliveryError{Stage: zabbix.StageEncode, Err: err}
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return nil, &zabbix.DeliveryError{Stage: zabbix.StageEncode, Err: err}
	}
	fmt.Fprintln(s.out, pretty.String())

	return &zabbix.Response{
		Response:  "success",
		Processed: len(items),
		Total:     len(items),
	}, nil
}
