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
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"zbx-nginx-probe/internal/config"
	"zbx-nginx-probe/internal/logger"
)

var (
	version = "1.0.0"
	commit  = "none"
	date    = "unknown"
)

// app carries what every subcommand shares
type app struct {
	configFile string
	logLevel   string
	debug      bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "zbx-nginx-probe",
		Short: "Zabbix probes for nginx: access log statistics, discovery and TLS certificates",
		Long: `zbx-nginx-probe feeds a Zabbix server with facts about an nginx host.

The stats command is meant to run once a minute per access log, usually from
cron. The discover and cert commands are called by the Zabbix agent through
UserParameter entries and print their result on stdout.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "Path to configuration file (YAML, JSON or JSONC)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(
		newStatsCmd(a),
		newDiscoverCmd(),
		newCertCmd(),
		newVersionCmd(),
	)

	return root
}

// load reads the config file (if any), applies flag overrides and builds
// the logger.
func (a *app) load(overrides *config.Overrides) (*config.Config, zerolog.Logger, error) {
	cfg := config.Default()

	if a.configFile != "" {
		var err error
		cfg, err = config.LoadConfig(a.configFile)
		if err != nil {
			return nil, zerolog.Nop(), err
		}
	}

	if overrides != nil {
		overrides.Apply(cfg)
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	if a.debug {
		cfg.Logging.Debug = true
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if err := cfg.Validate(); err != nil {
		return nil, log, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, log, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "zbx-nginx-probe version %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
