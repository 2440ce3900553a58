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
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ajjensen13/marketfeed/internal/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only HTTP APIs",
}

var serveMarketCmd = &cobra.Command{
	Use:   "market",
	Short: "Serve prices, candles, quotes and index values",
	Run: func(cmd *cobra.Command, args []string) {
		serve("market", func(cfg *appConfig) string { return cfg.MarketAddr }, marketRouter)
	},
}

var serveNewsCmd = &cobra.Command{
	Use:   "news",
	Short: "Serve stored news",
	Run: func(cmd *cobra.Command, args []string) {
		serve("news", func(cfg *appConfig) string { return cfg.NewsAddr }, newsRouter)
	},
}

func serve(name string, addr func(*appConfig) string, router func(context.Context, gke.Logger) (*gin.Engine, func(), error)) {
	lg, cleanup := logger()
	defer cleanup()

	ctx, cancel := runContext(lg)
	defer cancel()

	cfg, err := appConfiguration()
	if err != nil {
		panic(lg.ErrorErr(err))
	}
	listen := serveAddr
	if listen == "" {
		listen = addr(cfg)
	}

	gin.SetMode(gin.ReleaseMode)
	r, closeRouter, err := router(ctx, lg)
	if err != nil {
		panic(lg.ErrorErr(fmt.Errorf("failed to set up %s api: %w", name, err)))
	}
	defer closeRouter()

	lg.Defaultf("starting %s api on %s", name, listen)
	if err := api.Serve(ctx, listen, r); err != nil {
		panic(lg.ErrorErr(err))
	}
	lg.Defaultf("%s api stopped", name)
}

func init() {
	serveCmd.PersistentFlags().StringVar(&serveAddr, "addr", "", "listen address, defaults to the configured one")
	serveCmd.AddCommand(serveMarketCmd)
	serveCmd.AddCommand(serveNewsCmd)
	rootCmd.AddCommand(serveCmd)
}
