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

package api

import (
	"cloud.google.com/go/logging"
	"context"
	"encoding/json"
	"errors"
	"github.com/ajjensen13/gke"
	"github.com/gin-gonic/gin"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/extract"
	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/util"
)

type CandleSource interface {
	Candles(ctx context.Context, req extract.CandlesRequest) ([]model.CandleRecord, error)
}

type QuoteSource interface {
	Quotes(ctx context.Context, ticker string) ([]model.Quote, error)
}

type IndexSource interface {
	Index(ctx context.Context, name string) (*model.IndexSnapshot, error)
}

// CloseStore reports the last stored close of a ticker on day.
type CloseStore interface {
	LatestClose(ctx context.Context, ticker string, day time.Time) (float64, bool, error)
}

// MarketApp holds the dependencies of the market API. It is built once at
// startup; a nil dependency makes the routes that need it answer 503.
type MarketApp struct {
	Candles  CandleSource
	Quotes   QuoteSource
	Index    IndexSource
	Closes   CloseStore
	Location *time.Location
	Now      func() time.Time
}

const defaultDataInterval = 24

type PriceResponse struct {
	Ticker string   `json:"ticker"`
	Price  *float64 `json:"price"`
}

type BatchPriceRequest struct {
	Tickers []string `json:"tickers" binding:"required"`
}

type BatchPriceResponse struct {
	Prices map[string]*float64 `json:"prices"`
}

type TickerDataResponse struct {
	Ticker string               `json:"ticker"`
	Data   []model.CandleRecord `json:"data"`
	Count  int                  `json:"count"`
}

type QuoteResponse struct {
	Ticker string        `json:"ticker,omitempty"`
	Quotes []model.Quote `json:"quotes"`
}

type IndexResponse struct {
	IndexName string               `json:"index_name"`
	Data      *model.IndexSnapshot `json:"data"`
}

// NewMarketRouter returns the market API handler.
func NewMarketRouter(app *MarketApp, lg gke.Logger) *gin.Engine {
	r := newRouter(lg)
	v1 := r.Group("/api/v1")
	v1.GET("/prices/:ticker", app.price)
	v1.POST("/prices/batch", app.batchPrices)
	v1.GET("/ticker/:ticker/data", app.tickerData)
	v1.GET("/quotes", app.quotes)
	v1.GET("/quotes/:ticker", app.quotes)
	v1.GET("/index/:name", app.index)
	return r
}

func (a *MarketApp) now() time.Time {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

func (a *MarketApp) price(c *gin.Context) {
	if a.Closes == nil || a.Quotes == nil {
		unavailable(c, "market data")
		return
	}
	ticker := strings.ToUpper(c.Param("ticker"))
	p, err := a.currentPrice(c.Request.Context(), ticker)
	if err != nil {
		abort(c, http.StatusInternalServerError, "failed to get price", err)
		return
	}
	c.JSON(http.StatusOK, PriceResponse{Ticker: ticker, Price: p})
}

func (a *MarketApp) batchPrices(c *gin.Context) {
	if a.Closes == nil || a.Quotes == nil {
		unavailable(c, "market data")
		return
	}
	var req BatchPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ctx := c.Request.Context()
	ret := BatchPriceResponse{Prices: make(map[string]*float64, len(req.Tickers))}
	for _, t := range req.Tickers {
		t = strings.ToUpper(t)
		p, err := a.currentPrice(ctx, t)
		if err != nil {
			util.Logf(ctx, logging.Warning, "failed to get price of %s: %v", t, err)
		}
		ret.Prices[t] = p
	}
	c.JSON(http.StatusOK, ret)
}

// currentPrice returns today's last stored close, falling back to the live
// LAST quote and then the live CLOSE. It returns nil when none is known.
func (a *MarketApp) currentPrice(ctx context.Context, ticker string) (*float64, error) {
	closePrice, ok, err := a.Closes.LatestClose(ctx, ticker, a.now())
	if err != nil {
		util.Logf(ctx, logging.Warning, "failed to read stored close of %s: %v", ticker, err)
	}
	if ok {
		return &closePrice, nil
	}

	quotes, qerr := a.Quotes.Quotes(ctx, ticker)
	if qerr != nil {
		if err != nil {
			return nil, errors.Join(err, qerr)
		}
		return nil, qerr
	}
	for _, q := range quotes {
		if v, ok := quoteFloat(q, "LAST"); ok && v != 0 {
			return &v, nil
		}
		if v, ok := quoteFloat(q, "CLOSE"); ok {
			return &v, nil
		}
	}
	return nil, nil
}

func quoteFloat(q model.Quote, col string) (float64, bool) {
	switch v := q[col].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func (a *MarketApp) tickerData(c *gin.Context) {
	if a.Candles == nil {
		unavailable(c, "candle source")
		return
	}

	interval := defaultDataInterval
	if s := c.Query("interval"); s != "" {
		i, err := strconv.Atoi(s)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid interval", err)
			return
		}
		interval = i
	}

	ticker := strings.ToUpper(c.Param("ticker"))
	records, err := a.Candles.Candles(c.Request.Context(), extract.CandlesRequest{
		Ticker:   ticker,
		From:     c.Query("start_date"),
		Till:     c.Query("end_date"),
		Interval: interval,
	})
	switch {
	case errors.Is(err, extract.ErrInvalidRequest):
		abort(c, http.StatusBadRequest, "invalid request", err)
		return
	case err != nil:
		abort(c, http.StatusInternalServerError, "failed to get ticker data", err)
		return
	}
	if records == nil {
		records = []model.CandleRecord{}
	}
	c.JSON(http.StatusOK, TickerDataResponse{Ticker: ticker, Data: records, Count: len(records)})
}

func (a *MarketApp) quotes(c *gin.Context) {
	if a.Quotes == nil {
		unavailable(c, "quote source")
		return
	}
	ticker := strings.ToUpper(c.Param("ticker"))
	quotes, err := a.Quotes.Quotes(c.Request.Context(), ticker)
	if err != nil {
		abort(c, http.StatusInternalServerError, "failed to get quotes", err)
		return
	}
	if quotes == nil {
		quotes = []model.Quote{}
	}
	c.JSON(http.StatusOK, QuoteResponse{Ticker: ticker, Quotes: quotes})
}

func (a *MarketApp) index(c *gin.Context) {
	if a.Index == nil {
		unavailable(c, "index source")
		return
	}
	name := strings.ToUpper(c.Param("name"))
	snap, err := a.Index.Index(c.Request.Context(), name)
	switch {
	case err != nil:
		abort(c, http.StatusInternalServerError, "failed to get index", err)
	case snap == nil:
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Error: "index not found", Detail: name})
	default:
		c.JSON(http.StatusOK, IndexResponse{IndexName: name, Data: snap})
	}
}
