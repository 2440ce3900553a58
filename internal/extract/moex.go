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
	"cloud.google.com/go/logging"
	"context"
	"encoding/json"
	"fmt"
	"github.com/cenkalti/backoff/v4"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/transform"
	"github.com/ajjensen13/marketfeed/internal/util"
)

const (
	DefaultMoexBaseURL = "https://iss.moex.com"

	moexTotalTimeout   = 30 * time.Second
	moexConnectTimeout = 10 * time.Second
)

// NewMoexHTTPClient returns an http client with a 10s connect and 30s total
// timeout.
func NewMoexHTTPClient() *http.Client {
	return &http.Client{
		Timeout: moexTotalTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: moexConnectTimeout}).DialContext,
			TLSHandshakeTimeout: moexConnectTimeout,
			MaxIdleConnsPerHost: 4,
		},
	}
}

// MoexClient reads candles, board quotes and index values from the MOEX ISS
// REST API.
type MoexClient struct {
	baseURL string
	client  *http.Client
	backOff func() backoff.BackOff
	notify  backoff.Notify

	Engine     string
	Market     string
	Board      string
	IndexBoard string
	IndexMkt   string
}

type MoexOption func(*MoexClient)

func WithBaseURL(u string) MoexOption {
	return func(c *MoexClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) MoexOption {
	return func(c *MoexClient) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithRetry retries failed requests using a fresh backoff from bo per call.
// By default a request is attempted once.
func WithRetry(bo func() backoff.BackOff, bon backoff.Notify) MoexOption {
	return func(c *MoexClient) {
		c.backOff = bo
		c.notify = bon
	}
}

func NewMoexClient(opts ...MoexOption) *MoexClient {
	c := &MoexClient{
		baseURL:    DefaultMoexBaseURL,
		client:     NewMoexHTTPClient(),
		backOff:    func() backoff.BackOff { return &backoff.StopBackOff{} },
		Engine:     "stock",
		Market:     "shares",
		Board:      "TQBR",
		IndexBoard: "SNDX",
		IndexMkt:   "index",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Candles returns the candles of req.Ticker, following the source's
// pagination until an empty page.
func (c *MoexClient) Candles(ctx context.Context, req CandlesRequest) ([]model.CandleRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	ctx = util.WithLoggerValue(ctx, "ticker", req.Ticker)
	util.Logf(ctx, logging.Debug, "requesting data for ticker %s, period: %s - %s, interval: %d", req.Ticker, orDefault(req.From, "start"), orDefault(req.Till, "end"), req.Interval)

	path := fmt.Sprintf("/iss/engines/%s/markets/%s/securities/%s/candles.json", c.Engine, c.Market, url.PathEscape(req.Ticker))
	var ret []model.CandleRecord
	for start := 0; ; {
		params := url.Values{}
		if req.From != "" {
			params.Set("from", req.From)
		}
		if req.Till != "" {
			params.Set("till", req.Till)
		}
		params.Set("interval", strconv.Itoa(req.Interval))
		params.Set("start", strconv.Itoa(start))

		rows, err := c.table(ctx, path, params, "candles")
		if err != nil {
			return nil, fmt.Errorf("failed to get candles for %s: %w", req.Ticker, err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			r, err := transform.CandleRecord(row)
			if err != nil {
				util.Logf(ctx, logging.Debug, "skipping candle row of %s: %v", req.Ticker, err)
				continue
			}
			ret = append(ret, r)
		}
		start += len(rows)
	}

	util.Logf(ctx, logging.Debug, "retrieved %d records for ticker %s", len(ret), req.Ticker)
	return ret, nil
}

// Quotes returns the current marketdata rows of the main share board,
// restricted to ticker when it is not empty.
func (c *MoexClient) Quotes(ctx context.Context, ticker string) ([]model.Quote, error) {
	path := fmt.Sprintf("/iss/engines/%s/markets/%s/boards/%s/securities.json", c.Engine, c.Market, c.Board)
	rows, err := c.table(ctx, path, url.Values{}, "marketdata")
	if err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}
	if ticker == "" {
		return rows, nil
	}

	ticker = strings.ToUpper(ticker)
	ret := make([]model.Quote, 0, 1)
	for _, row := range rows {
		if row["SECID"] == ticker {
			ret = append(ret, row)
		}
	}
	return ret, nil
}

// Index returns the current snapshot of the named index, or nil if the
// index board does not list it.
func (c *MoexClient) Index(ctx context.Context, name string) (*model.IndexSnapshot, error) {
	path := fmt.Sprintf("/iss/engines/%s/markets/%s/boards/%s/securities.json", c.Engine, c.IndexMkt, c.IndexBoard)
	rows, err := c.table(ctx, path, url.Values{}, "marketdata")
	if err != nil {
		return nil, fmt.Errorf("failed to get index %s: %w", name, err)
	}

	for _, row := range rows {
		if row["SECID"] != name {
			continue
		}
		s, err := transform.IndexSnapshot(row)
		if err != nil {
			return nil, fmt.Errorf("failed to read index %s: %v: %w", name, err, ErrProtocol)
		}
		return s, nil
	}

	util.Logf(ctx, logging.Warning, "index %s not found in market data", name)
	return nil, nil
}

type issTable struct {
	Columns []string        `json:"columns"`
	Data    [][]interface{} `json:"data"`
}

func (t issTable) rows() ([]model.Quote, error) {
	ret := make([]model.Quote, len(t.Data))
	for i, d := range t.Data {
		if len(d) != len(t.Columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d: %w", i, len(d), len(t.Columns), ErrProtocol)
		}
		row := make(model.Quote, len(d))
		for j, col := range t.Columns {
			row[col] = d[j]
		}
		ret[i] = row
	}
	return ret, nil
}

func (c *MoexClient) table(ctx context.Context, path string, params url.Values, name string) ([]model.Quote, error) {
	params.Set("iss.meta", "off")
	params.Set("iss.only", name)
	uri := c.baseURL + path + "?" + params.Encode()

	var result []model.Quote
	err := backoff.RetryNotify(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request %s: %w", uri, err))
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return handleErr(fmt.Sprintf("error while requesting %s", path), nil, err)
		}
		if resp.StatusCode != http.StatusOK {
			err := handleErr(fmt.Sprintf("error while requesting %s", path), resp, fmt.Errorf("status %s", resp.Status))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		defer resp.Body.Close()

		dec := json.NewDecoder(resp.Body)
		dec.UseNumber()
		var body map[string]issTable
		if err := dec.Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode %s: %v: %w", path, err, ErrProtocol))
		}
		t, ok := body[name]
		if !ok {
			return backoff.Permanent(fmt.Errorf("response of %s has no %s table: %w", path, name, ErrProtocol))
		}
		rows, err := t.rows()
		if err != nil {
			return backoff.Permanent(err)
		}
		result = rows
		return nil
	}, backoff.WithContext(c.backOff(), ctx), c.notify)

	return result, err
}

func orDefault(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
