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
	"github.com/ajjensen13/gke"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"os"

	"github.com/ajjensen13/marketfeed/internal/extract"
)

var newsCron string

var newsCmd = &cobra.Command{
	Use:   "news",
	Short: "Ingest news from Telegram channels",
}

// pollCmd makes one pass over the configured channels, for an external
// scheduler.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Poll every channel once",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, cancel := runContext(lg)
		defer cancel()

		err := withTelegram(ctx, lg, func(ctx context.Context, src *extract.TelegramSource) error {
			ni, closeStore, err := newsIngestor(ctx, lg, src)
			if err != nil {
				return fmt.Errorf("failed to set up news ingestor: %w", err)
			}
			defer closeStore()
			return ni.RunCycle(ctx)
		})
		switch {
		case errors.Is(err, context.Canceled):
			lg.Defaultf("news poll interrupted")
		case err != nil:
			panic(lg.ErrorErr(err))
		default:
			lg.Defaultf("news poll completed")
		}
	},
}

// scheduleCmd keeps one Telegram session open and polls on a cron schedule.
// A cycle that is still running when the next one is due skips that run.
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Poll every channel on a cron schedule",
	Run: func(cmd *cobra.Command, args []string) {
		lg, cleanup := logger()
		defer cleanup()

		ctx, cancel := runContext(lg)
		defer cancel()

		schedule := newsCron
		if schedule == "" {
			cfg, err := appConfiguration()
			if err != nil {
				panic(lg.ErrorErr(err))
			}
			schedule = cfg.NewsCron
		}

		err := withTelegram(ctx, lg, func(ctx context.Context, src *extract.TelegramSource) error {
			ni, closeStore, err := newsIngestor(ctx, lg, src)
			if err != nil {
				return fmt.Errorf("failed to set up news ingestor: %w", err)
			}
			defer closeStore()

			cl := cronLogger{lg}
			c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
			if _, err := c.AddFunc(schedule, func() {
				if err := ni.RunCycle(ctx); err != nil && ctx.Err() == nil {
					_ = lg.ErrorErr(fmt.Errorf("news poll failed: %w", err))
				}
			}); err != nil {
				return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
			}

			lg.Defaultf("polling news on schedule %q", schedule)
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			return ctx.Err()
		})
		switch {
		case errors.Is(err, context.Canceled):
			lg.Defaultf("news scheduler stopped")
		case err != nil:
			panic(lg.ErrorErr(err))
		}
	},
}

func withTelegram(ctx context.Context, lg gke.Logger, f func(ctx context.Context, src *extract.TelegramSource) error) error {
	cfg, err := telegramConfig()
	if err != nil {
		return err
	}
	lg.Defaultf("connecting to telegram, session %s", cfg.SessionFile)
	return extract.RunTelegram(ctx, extract.NewTelegramClient(cfg), cfg, os.Stdin, f)
}

type cronLogger struct {
	gke.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.Logger.Info(gke.NewFmtMsgData("cron: %s %v", msg, keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	_ = c.Logger.ErrorErr(fmt.Errorf("cron: %s %v: %w", msg, keysAndValues, err))
}

func init() {
	scheduleCmd.Flags().StringVar(&newsCron, "cron", "", "cron schedule, defaults to the configured news_cron")
	newsCmd.AddCommand(pollCmd)
	newsCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(newsCmd)
}
