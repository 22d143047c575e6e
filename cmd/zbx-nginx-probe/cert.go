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
	"time"

	"github.com/spf13/cobra"

	"zbx-nginx-probe/internal/certcheck"
)

func newCertCmd() *cobra.Command {
	var (
		days    bool
		issuer  bool
		port    int
		name    string
		caFile  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "cert <host>",
		Short: "Print days until expiry or the issuer of a TLS certificate",
		Long: `Connects to host, sends the SNI name (the host itself unless --name is
given), verifies the chain and checks that the certificate covers the name.
Prints the number of whole days until expiry (--days) or the issuer common
name (--issuer).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := &certcheck.Checker{Timeout: timeout}
			if caFile != "" {
				pool, err := certcheck.LoadCABundle(caFile)
				if err != nil {
					return err
				}
				checker.RootCAs = pool
			}

			cert, err := checker.Check(cmd.Context(), args[0], port, name)
			if err != nil {
				return err
			}

			if issuer {
				fmt.Fprintln(cmd.OutOrStdout(), cert.IssuerCN)
				return nil
			}

			left, err := cert.DaysLeft(time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), left)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&days, "days", "d", false, "Print the number of days until expiration")
	cmd.Flags().BoolVarP(&issuer, "issuer", "i", false, "Print the certificate issuer")
	cmd.Flags().IntVarP(&port, "port", "p", 443, "Port to connect to")
	cmd.Flags().StringVarP(&name, "name", "n", "", "SNI name (defaults to host)")
	cmd.Flags().StringVar(&caFile, "ca-file", "", "PEM bundle to verify against instead of the system roots")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Connection timeout")

	cmd.MarkFlagsMutuallyExclusive("days", "issuer")
	cmd.MarkFlagsOneRequired("days", "issuer")

	return cmd
}
