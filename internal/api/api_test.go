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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ajjensen13/marketfeed/internal/db"
	"github.com/ajjensen13/marketfeed/internal/extract"
	"github.com/ajjensen13/marketfeed/internal/model"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMarket struct {
	closes   map[string]float64
	quotes   map[string]model.Quote
	quoteErr error
	index    *model.IndexSnapshot
	requests []extract.CandlesRequest
}

func (f *fakeMarket) LatestClose(_ context.Context, ticker string, _ time.Time) (float64, bool, error) {
	v, ok := f.closes[ticker]
	return v, ok, nil
}

func (f *fakeMarket) Quotes(_ context.Context, ticker string) ([]model.Quote, error) {
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	if ticker == "" {
		ret := make([]model.Quote, 0, len(f.quotes))
		for _, q := range f.quotes {
			ret = append(ret, q)
		}
		return ret, nil
	}
	if q, ok := f.quotes[ticker]; ok {
		return []model.Quote{q}, nil
	}
	return nil, nil
}

func (f *fakeMarket) Index(_ context.Context, name string) (*model.IndexSnapshot, error) {
	if f.index != nil && f.index.SecID == name {
		return f.index, nil
	}
	return nil, nil
}

func (f *fakeMarket) Candles(_ context.Context, req extract.CandlesRequest) ([]model.CandleRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	f.requests = append(f.requests, req)
	return []model.CandleRecord{{Open: 1, Close: 2, Begin: "2024-01-02 00:00:00"}}, nil
}

func newMarket() (*fakeMarket, http.Handler) {
	f := &fakeMarket{
		closes: map[string]float64{"SBER": 301.5},
		quotes: map[string]model.Quote{
			"GAZP": {"SECID": "GAZP", "LAST": json.Number("160.2"), "CLOSE": json.Number("159")},
			"LKOH": {"SECID": "LKOH", "LAST": json.Number("0"), "CLOSE": json.Number("7000")},
			"YNDX": {"SECID": "YNDX", "LAST": nil, "CLOSE": nil},
		},
		index: &model.IndexSnapshot{SecID: "IMOEX", SysTime: "2024-01-02 10:00:00"},
	}
	app := &MarketApp{Candles: f, Quotes: f, Index: f, Closes: f, Location: time.UTC}
	return f, NewMarketRouter(app, nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode %q: %v", w.Body.String(), err)
	}
}

func TestPrice(t *testing.T) {
	_, h := newMarket()
	tests := []struct {
		ticker string
		want   *float64
	}{
		{"sber", ptr(301.5)},
		{"GAZP", ptr(160.2)},
		{"LKOH", ptr(7000)},
		{"YNDX", nil},
		{"NOPE", nil},
	}
	for _, tt := range tests {
		w := do(t, h, http.MethodGet, "/api/v1/prices/"+tt.ticker, "")
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status=%d want 200", tt.ticker, w.Code)
		}
		var got PriceResponse
		decode(t, w, &got)
		if got.Ticker != strings.ToUpper(tt.ticker) {
			t.Fatalf("ticker=%q want %q", got.Ticker, strings.ToUpper(tt.ticker))
		}
		switch {
		case tt.want == nil && got.Price != nil:
			t.Fatalf("%s: price=%v want null", tt.ticker, *got.Price)
		case tt.want != nil && (got.Price == nil || *got.Price != *tt.want):
			t.Fatalf("%s: price=%v want %v", tt.ticker, got.Price, *tt.want)
		}
	}
}

func TestPriceQuoteFailure(t *testing.T) {
	f, h := newMarket()
	f.quoteErr = fmt.Errorf("boom: %w", extract.ErrConnection)

	w := do(t, h, http.MethodGet, "/api/v1/prices/GAZP", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", w.Code)
	}
	var got ErrorResponse
	decode(t, w, &got)
	if got.Error == "" || !strings.Contains(got.Detail, "boom") {
		t.Fatalf("body=%+v want error and detail", got)
	}

	// A stored close needs no live quote.
	if w := do(t, h, http.MethodGet, "/api/v1/prices/SBER", ""); w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", w.Code)
	}
}

func TestBatchPrices(t *testing.T) {
	_, h := newMarket()
	w := do(t, h, http.MethodPost, "/api/v1/prices/batch", `{"tickers":["sber","Gazp","NOPE"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", w.Code)
	}
	var got BatchPriceResponse
	decode(t, w, &got)
	if len(got.Prices) != 3 {
		t.Fatalf("len(prices)=%d want 3", len(got.Prices))
	}
	if p := got.Prices["SBER"]; p == nil || *p != 301.5 {
		t.Fatalf("SBER=%v want 301.5", p)
	}
	if p := got.Prices["GAZP"]; p == nil || *p != 160.2 {
		t.Fatalf("GAZP=%v want 160.2", p)
	}
	if p, ok := got.Prices["NOPE"]; !ok || p != nil {
		t.Fatalf("NOPE=%v,%v want null", p, ok)
	}

	if w := do(t, h, http.MethodPost, "/api/v1/prices/batch", `{`); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", w.Code)
	}
}

func TestTickerData(t *testing.T) {
	f, h := newMarket()
	w := do(t, h, http.MethodGet, "/api/v1/ticker/sber/data?start_date=2024-01-01&end_date=2024-01-31", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200: %s", w.Code, w.Body.String())
	}
	var got TickerDataResponse
	decode(t, w, &got)
	if got.Ticker != "SBER" || got.Count != 1 || len(got.Data) != 1 {
		t.Fatalf("got=%+v want one SBER candle", got)
	}
	want := extract.CandlesRequest{Ticker: "SBER", From: "2024-01-01", Till: "2024-01-31", Interval: 24}
	if len(f.requests) != 1 || f.requests[0] != want {
		t.Fatalf("requests=%+v want [%+v]", f.requests, want)
	}

	for _, q := range []string{"?interval=5", "?interval=x", "?start_date=01.01.2024"} {
		if w := do(t, h, http.MethodGet, "/api/v1/ticker/SBER/data"+q, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", q, w.Code)
		}
	}
	if len(f.requests) != 1 {
		t.Fatalf("len(requests)=%d want 1", len(f.requests))
	}
}

func TestQuotesAndIndex(t *testing.T) {
	_, h := newMarket()

	var all QuoteResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/quotes", ""), &all)
	if len(all.Quotes) != 3 || all.Ticker != "" {
		t.Fatalf("got=%+v want 3 quotes", all)
	}

	var one QuoteResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/quotes/gazp", ""), &one)
	if one.Ticker != "GAZP" || len(one.Quotes) != 1 {
		t.Fatalf("got=%+v want 1 GAZP quote", one)
	}

	w := do(t, h, http.MethodGet, "/api/v1/index/imoex", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", w.Code)
	}
	var idx IndexResponse
	decode(t, w, &idx)
	if idx.IndexName != "IMOEX" || idx.Data == nil || idx.Data.SysTime != "2024-01-02 10:00:00" {
		t.Fatalf("got=%+v want IMOEX snapshot", idx)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/index/RTSI", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", w.Code)
	}
}

func TestMarketUnavailable(t *testing.T) {
	h := NewMarketRouter(&MarketApp{}, nil)
	for _, target := range []string{"/api/v1/prices/SBER", "/api/v1/quotes", "/api/v1/index/IMOEX", "/api/v1/ticker/SBER/data"} {
		if w := do(t, h, http.MethodGet, target, ""); w.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: status=%d want 503", target, w.Code)
		}
	}
	if w := do(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health status=%d want 200", w.Code)
	}
}

func TestRequestID(t *testing.T) {
	_, h := newMarket()
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Header().Get(RequestIDHeader) == "" {
		t.Fatalf("missing %s header", RequestIDHeader)
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(RequestIDHeader); got != "abc" {
		t.Fatalf("request id=%q want abc", got)
	}
}

func TestRecovery(t *testing.T) {
	r := newRouter(nil)
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	w := do(t, r, http.MethodGet, "/panic", "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", w.Code)
	}
	var got ErrorResponse
	decode(t, w, &got)
	if got.Detail != "panic: boom" {
		t.Fatalf("detail=%q want panic: boom", got.Detail)
	}
}

type fakeNews struct {
	items   []model.NewsItem
	filters []db.NewsFilter
	err     error
}

func (f *fakeNews) ListNews(_ context.Context, nf db.NewsFilter) ([]model.NewsItem, int, error) {
	f.filters = append(f.filters, nf)
	return f.items, len(f.items), f.err
}

func (f *fakeNews) NewsByID(_ context.Context, id int64) (model.NewsItem, error) {
	for _, n := range f.items {
		if n.ID == id {
			return n, nil
		}
	}
	return model.NewsItem{}, fmt.Errorf("news %d: %w", id, db.ErrNotFound)
}

func (f *fakeNews) Channels(context.Context) ([]string, error) {
	return []string{"a", "b"}, nil
}

func (f *fakeNews) Tags(context.Context) ([]string, error) {
	return nil, nil
}

func newNews() (*fakeNews, http.Handler) {
	f := &fakeNews{items: []model.NewsItem{
		{ID: 2, MsgID: 20, Channel: "rbc", Text: "second", Tags: []string{}},
		{ID: 1, MsgID: 10, Channel: "rbc", Text: "first", Tags: []string{"oil"}},
	}}
	return f, NewNewsRouter(&NewsApp{Store: f, Location: time.UTC}, nil)
}

func TestListNews(t *testing.T) {
	f, h := newNews()
	w := do(t, h, http.MethodGet, "/api/v1/news?limit=10&offset=5&channel=rbc&tags=Oil,%20gas,&search=%20brent%20&start_date=2024-01-01T10:00:00&end_date=2024-01-02T00:00:00%2B03:00", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200: %s", w.Code, w.Body.String())
	}
	var got NewsListResponse
	decode(t, w, &got)
	if got.Total != 2 || got.Limit != 10 || got.Offset != 5 || len(got.News) != 2 {
		t.Fatalf("got=%+v want 2 items limit 10 offset 5", got)
	}

	nf := f.filters[0]
	if nf.Channel != "rbc" || nf.Search != "brent" || strings.Join(nf.Tags, ",") != "oil,gas" {
		t.Fatalf("filter=%+v", nf)
	}
	if want := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC); !nf.StartDate.Equal(want) {
		t.Fatalf("start=%v want %v", nf.StartDate, want)
	}
	if want := time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC); !nf.EndDate.Equal(want) {
		t.Fatalf("end=%v want %v", nf.EndDate, want)
	}
}

func TestListNewsDefaultsAndValidation(t *testing.T) {
	f, h := newNews()
	var got NewsListResponse
	decode(t, do(t, h, http.MethodGet, "/api/v1/news/channel/interfax", ""), &got)
	if got.Limit != DefaultNewsLimit || got.Offset != 0 {
		t.Fatalf("limit=%d offset=%d want %d 0", got.Limit, got.Offset, DefaultNewsLimit)
	}
	if f.filters[0].Channel != "interfax" {
		t.Fatalf("channel=%q want interfax", f.filters[0].Channel)
	}

	for _, q := range []string{"limit=0", "limit=1001", "limit=x", "offset=-1", "start_date=yesterday", "end_date=2024-13-01"} {
		if w := do(t, h, http.MethodGet, "/api/v1/news?"+q, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d want 400", q, w.Code)
		}
	}

	f.err = errors.New("boom")
	if w := do(t, h, http.MethodGet, "/api/v1/news", ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", w.Code)
	}
}

func TestNewsByID(t *testing.T) {
	_, h := newNews()
	w := do(t, h, http.MethodGet, "/api/v1/news/1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", w.Code)
	}
	var got NewsResponse
	decode(t, w, &got)
	if got.News.MsgID != 10 || got.News.Text != "first" {
		t.Fatalf("news=%+v want msg 10", got.News)
	}

	if w := do(t, h, http.MethodGet, "/api/v1/news/99", ""); w.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/news/abc", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d want 400", w.Code)
	}
}

func TestChannelsAndTags(t *testing.T) {
	_, h := newNews()
	var channels, tags []string
	decode(t, do(t, h, http.MethodGet, "/api/v1/channels", ""), &channels)
	if strings.Join(channels, ",") != "a,b" {
		t.Fatalf("channels=%v want [a b]", channels)
	}
	w := do(t, h, http.MethodGet, "/api/v1/tags", "")
	decode(t, w, &tags)
	if tags == nil || len(tags) != 0 {
		t.Fatalf("tags=%s want []", w.Body.String())
	}
}

func TestNewsUnavailable(t *testing.T) {
	h := NewNewsRouter(&NewsApp{}, nil)
	if w := do(t, h, http.MethodGet, "/api/v1/news", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", w.Code)
	}
	if w := do(t, h, http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health status=%d want 200", w.Code)
	}
}

func ptr(f float64) *float64 {
	return &f
}
