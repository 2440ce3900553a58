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

// botCmd runs the portfolio chat bot over long polling.
var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the portfolio Telegram bot",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, cancel := runContext(lg)
		defer cancel()

		b, closeBot, err := portfolioBot(ctx, lg)
		if err != nil {
			panic(lg.ErrorErr(fmt.Errorf("failed to set up portfolio bot: %w", err)))
		}
		defer closeBot()

		err = b.Run(ctx)
		switch {
		case errors.Is(err, context.Canceled):
			lg.Defaultf("portfolio bot stopped")
		case err != nil:
			panic(lg.ErrorErr(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(botCmd)
}
