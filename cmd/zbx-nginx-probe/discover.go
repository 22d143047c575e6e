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

	"github.com/spf13/cobra"

	"zbx-nginx-probe/internal/discovery"
)

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Print Zabbix low-level discovery documents",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "logs <dir>",
			Short: "List the log files of a directory as {#LOGFILE}",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return printDocument(cmd, discovery.LogFiles, args[0])
			},
		},
		&cobra.Command{
			Use:   "certs [dir]",
			Short: "List certbot live certificates as {#SNI}",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				dir := discovery.DefaultCertDir
				if len(args) == 1 {
					dir = args[0]
				}
				return printDocument(cmd, discovery.CertDomains, dir)
			},
		},
	)

	return cmd
}

func printDocument(cmd *cobra.Command, build func(string) (*discovery.Document, error), dir string) error {
	doc, err := build(dir)
	if err != nil {
		return err
	}

	out, err := doc.JSON()
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
