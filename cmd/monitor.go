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
	"errors"
	"fmt"
	"github.com/spf13/cobra"
)

var monitorOnce bool

// monitorCmd polls MOEX candles and the index snapshot every minute.
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Ingest minute candles and index snapshots",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, cancel := runContext(lg)
		defer cancel()

		loop, closeLoop, err := monitorLoop(ctx, lg)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to set up market monitor: %w", err)))
		}
		defer closeLoop()

		if monitorOnce {
			err = loop.Cycler.RunCycle(ctx)
		} else {
			lg.Defaultf("starting market monitor")
			err = loop.Run(ctx)
		}
		switch {
		case errors.Is(err, context.Canceled):
			lg.Defaultf("market monitor stopped")
		case err != nil:
			panic(lg.ErrorErr(err))
		}
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorOnce, "once", false, "run a single cycle and exit")
	rootCmd.AddCommand(monitorCmd)
}
