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

package ingest

import (
	"cloud.google.com/go/logging"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ajjensen13/marketfeed/internal/extract"
	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/transform"
	"github.com/ajjensen13/marketfeed/internal/util"
)

type ChannelSource interface {
	Resolve(ctx context.Context, name string) (model.ChannelRef, error)
	Latest(ctx context.Context, ref model.ChannelRef, limit int) ([]model.Message, error)
}

// NewsStore persists news items. SaveNews reports false without error when
// the (msg_id, channel) pair is already stored.
type NewsStore interface {
	SaveNews(ctx context.Context, item model.NewsItem) (saved bool, err error)
	UpdatePollCursor(ctx context.Context, channel string, at time.Time) error
}

const (
	DefaultPageSize = 5
	DefaultPacing   = time.Second
)

type NewsConfig struct {
	Channels []string
	// PageSize is the number of latest messages requested per channel.
	PageSize int
	// Pacing is the pause between two channels.
	Pacing time.Duration
}

// NewsIngestor makes one pass over the configured channels per cycle,
// sequentially.
type NewsIngestor struct {
	cfg    NewsConfig
	source ChannelSource
	store  NewsStore
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	state  stateTracker
}

func NewNewsIngestor(cfg NewsConfig, source ChannelSource, store NewsStore) *NewsIngestor {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	return &NewsIngestor{
		cfg:    cfg,
		source: source,
		store:  store,
		now:    time.Now,
		sleep:  Sleep,
	}
}

// SetClock replaces the wall clock and the sleeper, for tests.
func (ni *NewsIngestor) SetClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) {
	ni.now = now
	ni.sleep = sleep
}

func (ni *NewsIngestor) State() State {
	return ni.state.get()
}

// ChannelStats summarises one channel's poll.
type ChannelStats struct {
	Fetched int
	Saved   int
	Skipped int
	Failed  int
}

// RunCycle polls every channel once. A channel that cannot be resolved,
// fetched or is rate limited is skipped; the others still run. Only context
// cancellation is returned.
func (ni *NewsIngestor) RunCycle(ctx context.Context) error {
	defer ni.state.set(Idle)
	util.Logf(ctx, logging.Info, "starting poll for %d channels", len(ni.cfg.Channels))

	for i, name := range ni.cfg.Channels {
		if i > 0 {
			if err := ni.sleep(ctx, ni.cfg.Pacing); err != nil {
				return err
			}
		}

		ctx := util.WithLoggerValue(ctx, "channel", name)
		stats, err := ni.PollChannel(ctx, name)

		var rle *extract.RateLimitError
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.As(err, &rle):
			util.Logf(ctx, logging.Warning, "rate limit exceeded for channel %s, waiting %v", name, rle.RetryAfter)
			if err := ni.sleep(ctx, rle.RetryAfter); err != nil {
				return err
			}
		case errors.Is(err, extract.ErrChannelNotFound), errors.Is(err, extract.ErrChannelPrivate):
			util.Logf(ctx, logging.Error, "skipping channel %s: %v", name, err)
		case err != nil:
			util.Logf(ctx, logging.Error, "failed to poll channel %s: %v", name, err)
		default:
			util.Logf(ctx, logging.Info, "poll for channel %s completed: saved %d, skipped %d, failed %d messages", name, stats.Saved, stats.Skipped, stats.Failed)
		}
	}
	return ctx.Err()
}

// PollChannel fetches the latest page of a channel, saves the messages with
// text and advances the channel's poll cursor. A rate limit aborts the
// channel before the cursor is touched.
func (ni *NewsIngestor) PollChannel(ctx context.Context, name string) (ChannelStats, error) {
	var stats ChannelStats

	ni.state.set(Polling)
	ref, err := ni.source.Resolve(ctx, name)
	if err != nil {
		return stats, fmt.Errorf("failed to resolve channel %s: %w", name, err)
	}

	messages, err := ni.source.Latest(ctx, ref, ni.cfg.PageSize)
	if err != nil {
		return stats, fmt.Errorf("failed to fetch messages of channel %s: %w", name, err)
	}
	stats.Fetched = len(messages)
	util.Logf(ctx, logging.Info, "retrieved %d latest messages from channel %s", len(messages), name)

	ni.state.set(Filtering)
	items := make([]model.NewsItem, 0, len(messages))
	for _, m := range messages {
		if m.Text == "" {
			continue
		}
		items = append(items, transform.NewsItem(name, m))
	}

	ni.state.set(Persisting)
	for _, item := range items {
		saved, err := ni.store.SaveNews(ctx, item)
		switch {
		case err != nil:
			stats.Failed++
			util.Logf(ctx, logging.Error, "failed to save message %d from channel %s: %v", item.MsgID, name, err)
		case saved:
			stats.Saved++
		default:
			stats.Skipped++
		}
	}

	if err := ni.store.UpdatePollCursor(ctx, name, ni.now().UTC()); err != nil {
		return stats, fmt.Errorf("failed to update poll cursor of channel %s: %w", name, err)
	}
	return stats, nil
}
