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
	"fmt"
	"time"

	"github.com/ajjensen13/marketfeed/internal/extract"
	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/transform"
	"github.com/ajjensen13/marketfeed/internal/util"
)

type CandleSource interface {
	Candles(ctx context.Context, req extract.CandlesRequest) ([]model.CandleRecord, error)
}

// IndexSource returns the current snapshot of an index, or nil when the
// source does not list it.
type IndexSource interface {
	Index(ctx context.Context, name string) (*model.IndexSnapshot, error)
}

type CandleStore interface {
	InsertCandles(ctx context.Context, ticker string, candles []model.Candle) error
	InsertIndexSnapshot(ctx context.Context, s *model.IndexSnapshot) error
}

type CandleConfig struct {
	Tickers []string
	// Window is the trailing period, measured from now, whose candles are
	// considered each cycle.
	Window    time.Duration
	Interval  int
	IndexName string
	Location  *time.Location
}

// CandleIngestor polls minute candles for a fixed set of tickers plus one
// index snapshot per cycle.
type CandleIngestor struct {
	cfg    CandleConfig
	source CandleSource
	index  IndexSource
	store  CandleStore
	now    func() time.Time

	seen      map[string]*SeenSet[string]
	seenIndex *SeenSet[string]
	state     stateTracker
}

func NewCandleIngestor(cfg CandleConfig, source CandleSource, index IndexSource, store CandleStore) *CandleIngestor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Interval == 0 {
		cfg.Interval = 1
	}
	return &CandleIngestor{
		cfg:       cfg,
		source:    source,
		index:     index,
		store:     store,
		now:       time.Now,
		seen:      make(map[string]*SeenSet[string], len(cfg.Tickers)),
		seenIndex: NewSeenSet[string](),
	}
}

// SetClock replaces the wall clock used for windowing.
func (ci *CandleIngestor) SetClock(now func() time.Time) {
	ci.now = now
}

func (ci *CandleIngestor) State() State {
	return ci.state.get()
}

// SeenCount returns how many candle begin stamps are marked for ticker.
func (ci *CandleIngestor) SeenCount(ticker string) int {
	if s, ok := ci.seen[ticker]; ok {
		return s.Len()
	}
	return 0
}

// windowed pairs a parsed candle with the raw begin stamp it is keyed by.
type windowed struct {
	key    string
	candle model.Candle
}

func windowedKey(w windowed) (string, bool) {
	return w.key, w.key != ""
}

// RunCycle processes every ticker and then the index. Failures are logged
// per ticker and do not stop the cycle; only context cancellation is
// returned.
func (ci *CandleIngestor) RunCycle(ctx context.Context) error {
	defer ci.state.set(Idle)
	util.Logf(ctx, logging.Info, "starting monitoring cycle")

	for _, ticker := range ci.cfg.Tickers {
		if err := ctx.Err(); err != nil {
			return err
		}
		ctx := util.WithLoggerValue(ctx, "ticker", ticker)

		fetched, saved, err := ci.processTicker(ctx, ticker)
		if err != nil {
			util.Logf(ctx, logging.Error, "failed to process ticker %s: %v", ticker, err)
			continue
		}
		util.Logf(ctx, logging.Info, "processed %d candles (last %v) for %s, %d new", fetched, ci.cfg.Window, ticker, saved)
	}

	if err := ci.processIndex(ctx); err != nil {
		util.Logf(ctx, logging.Error, "failed to process index %s: %v", ci.cfg.IndexName, err)
	}

	util.Logf(ctx, logging.Info, "monitoring cycle completed")
	return ctx.Err()
}

func (ci *CandleIngestor) processTicker(ctx context.Context, ticker string) (fetched, saved int, err error) {
	ci.state.set(Polling)
	now := ci.now()
	records, err := ci.source.Candles(ctx, extract.CandlesRequest{
		Ticker:   ticker,
		From:     now.In(ci.cfg.Location).Format(transform.DateLayout),
		Interval: ci.cfg.Interval,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch candles: %w", err)
	}

	ci.state.set(Filtering)
	candidates := ci.window(ctx, ticker, records, now)
	if len(candidates) == 0 {
		util.Logf(ctx, logging.Debug, "no candles in last %v for ticker %s", ci.cfg.Window, ticker)
		return 0, 0, nil
	}

	seen, ok := ci.seen[ticker]
	if !ok {
		seen = NewSeenSet[string]()
		ci.seen[ticker] = seen
	}
	fresh, marked := FilterNew(candidates, windowedKey, seen)
	if len(fresh) == 0 {
		util.Logf(ctx, logging.Debug, "no new candles for ticker %s", ticker)
		return len(candidates), 0, nil
	}

	ci.state.set(Persisting)
	err = Persist(ctx, fresh, marked, seen, func(ctx context.Context, batch []windowed) error {
		candles := make([]model.Candle, len(batch))
		for i, w := range batch {
			candles[i] = w.candle
		}
		return ci.store.InsertCandles(ctx, ticker, candles)
	})
	if err != nil {
		return len(candidates), 0, fmt.Errorf("failed to save %d candles: %w", len(fresh), err)
	}

	return len(candidates), len(fresh), nil
}

// window keeps the records whose begin is no older than the configured
// window. Records that fail to parse are skipped.
func (ci *CandleIngestor) window(ctx context.Context, ticker string, records []model.CandleRecord, now time.Time) []windowed {
	threshold := now.Add(-ci.cfg.Window)
	ret := make([]windowed, 0, len(records))
	for _, r := range records {
		if r.Begin == "" {
			continue
		}
		c, err := transform.Candle(ticker, r, ci.cfg.Location)
		if err != nil {
			util.Logf(ctx, logging.Debug, "skipping candle of %s: %v", ticker, err)
			continue
		}
		if c.Begin.Before(threshold) {
			continue
		}
		ret = append(ret, windowed{key: r.Begin, candle: c})
	}
	return ret
}

func (ci *CandleIngestor) processIndex(ctx context.Context) error {
	if ci.index == nil || ci.cfg.IndexName == "" {
		return nil
	}
	ctx = util.WithLoggerValue(ctx, "index", ci.cfg.IndexName)

	ci.state.set(Polling)
	snapshot, err := ci.index.Index(ctx, ci.cfg.IndexName)
	if err != nil {
		return fmt.Errorf("failed to fetch index: %w", err)
	}
	if snapshot == nil {
		util.Logf(ctx, logging.Debug, "no index data to save")
		return nil
	}

	ci.state.set(Filtering)
	if snapshot.SysTime == "" {
		util.Logf(ctx, logging.Warning, "index data missing SYSTIME, skipping")
		return nil
	}
	if _, err := transform.ParseTime(snapshot.SysTime, ci.cfg.Location); err != nil {
		util.Logf(ctx, logging.Warning, "index data has invalid SYSTIME %q, skipping: %v", snapshot.SysTime, err)
		return nil
	}
	fresh, marked := FilterNew([]*model.IndexSnapshot{snapshot}, func(s *model.IndexSnapshot) (string, bool) {
		return s.SysTime, true
	}, ci.seenIndex)
	if len(fresh) == 0 {
		util.Logf(ctx, logging.Debug, "index data with systime %s already saved", snapshot.SysTime)
		return nil
	}

	ci.state.set(Persisting)
	err = Persist(ctx, fresh, marked, ci.seenIndex, func(ctx context.Context, batch []*model.IndexSnapshot) error {
		return ci.store.InsertIndexSnapshot(ctx, batch[0])
	})
	if err != nil {
		return fmt.Errorf("failed to save index snapshot %s: %w", snapshot.SysTime, err)
	}

	util.Logf(ctx, logging.Info, "processed index data for %s", snapshot.SecID)
	return nil
}
