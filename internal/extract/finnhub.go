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

package extract

import (
	"context"
	"fmt"
	"github.com/Finnhub-Stock-API/finnhub-go"
	"github.com/cenkalti/backoff/v4"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/transform"
)

// finnhubResolutions maps candle intervals onto Finnhub resolutions. The
// 10 minute and quarterly intervals have no Finnhub equivalent.
var finnhubResolutions = map[int]string{1: "1", 60: "60", 24: "D", 7: "W", 31: "M"}

// FinnhubClient is a CandleSource backed by the Finnhub REST API.
type FinnhubClient struct {
	client  *finnhub.DefaultApiService
	apiKey  finnhub.APIKey
	backOff func() backoff.BackOff
	notify  backoff.Notify
	loc     *time.Location
}

func NewFinnhubClient(client *finnhub.DefaultApiService, apiKey string, loc *time.Location, bo func() backoff.BackOff, bon backoff.Notify) *FinnhubClient {
	if loc == nil {
		loc = time.UTC
	}
	if bo == nil {
		bo = func() backoff.BackOff { return &backoff.StopBackOff{} }
	}
	return &FinnhubClient{
		client:  client,
		apiKey:  finnhub.APIKey{Key: apiKey},
		backOff: bo,
		notify:  bon,
		loc:     loc,
	}
}

func (c *FinnhubClient) Candles(ctx context.Context, req CandlesRequest) ([]model.CandleRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resolution, ok := finnhubResolutions[req.Interval]
	if !ok {
		return nil, fmt.Errorf("interval %d is not supported by finnhub: %w", req.Interval, ErrInvalidRequest)
	}

	from, till, err := c.period(req)
	if err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, finnhub.ContextAPIKey, c.apiKey)
	var result finnhub.StockCandles
	err = backoff.RetryNotify(func() error {
		sc, resp, err := c.client.StockCandles(ctx, req.Ticker, resolution, from.Unix(), till.Unix(), nil)
		if err != nil {
			return handleErr(fmt.Sprintf("error while getting candles for stock %q", req.Ticker), resp, err)
		}
		result = sc
		return nil
	}, backoff.WithContext(c.backOff(), ctx), c.notify)
	if err != nil {
		return nil, err
	}

	// finnhub reports "no_data" with empty arrays
	if result.S == "no_data" {
		return nil, nil
	}
	return transform.FinnhubCandles(req.Ticker, result, c.loc)
}

func (c *FinnhubClient) period(req CandlesRequest) (from, till time.Time, err error) {
	now := time.Now().In(c.loc)
	from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
	till = now
	if req.From != "" {
		if from, err = time.ParseInLocation(transform.DateLayout, req.From, c.loc); err != nil {
			return from, till, fmt.Errorf("invalid start date %q: %v: %w", req.From, err, ErrInvalidRequest)
		}
	}
	if req.Till != "" {
		if till, err = time.ParseInLocation(transform.DateLayout, req.Till, c.loc); err != nil {
			return from, till, fmt.Errorf("invalid end date %q: %v: %w", req.Till, err, ErrInvalidRequest)
		}
		till = till.Add(24*time.Hour - time.Second)
	}
	return from, till, nil
}
