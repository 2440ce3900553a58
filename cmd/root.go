/*
Copyright © 2020 A. Jensen <jensen.aaro@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package cmd

import (
	"context"
	"fmt"
	"github.com/ajjensen13/gke"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"

	"github.com/ajjensen13/marketfeed/internal/util"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "marketfeed",
	Short: "Collects MOEX candles and Telegram news and serves them",
	Long: `marketfeed ingests minute candles and index snapshots from the Moscow
Exchange and news from public Telegram channels into Postgres, serves both
over read-only HTTP APIs and runs a Telegram bot for tracking a personal
share portfolio.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// runContext returns a context carrying lg that ends on SIGINT or SIGTERM.
func runContext(lg gke.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return util.WithLogger(ctx, lg), cancel
}
