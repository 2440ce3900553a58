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
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestCandlesRequestValidate(t *testing.T) {
	tests := []struct {
		name string
		req  CandlesRequest
		ok   bool
	}{
		{"ok", CandlesRequest{Ticker: "SBER", From: "2024-01-01", Till: "2024-01-31", Interval: 24}, true},
		{"open ended", CandlesRequest{Ticker: "SBER", Interval: 1}, true},
		{"no ticker", CandlesRequest{Interval: 1}, false},
		{"bad from", CandlesRequest{Ticker: "SBER", From: "01.01.2024", Interval: 1}, false},
		{"bad till", CandlesRequest{Ticker: "SBER", Till: "2024-1-1", Interval: 1}, false},
		{"bad interval", CandlesRequest{Ticker: "SBER", Interval: 5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.ok && err != nil {
				t.Fatalf("Validate()=%v want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("Validate()=%v want ErrInvalidRequest", err)
			}
		})
	}
}

func TestChannelName(t *testing.T) {
	for in, want := range map[string]string{
		"@rbc_news":                "rbc_news",
		"https://t.me/markettwits": "markettwits",
		"t.me/banksta/":            "banksta",
		" interfax ":               "interfax",
	} {
		if got := ChannelName(in); got != want {
			t.Fatalf("ChannelName(%q)=%q want %q", in, got, want)
		}
	}
}

const candlePage = `{"candles": {"columns": ["open", "close", "high", "low", "value", "volume", "begin", "end"],
"data": [[%s]]}}`

func TestMoexCandlesPaginates(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/securities/SBER/candles.json") {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.URL.Query().Get("iss.only") != "candles" {
			t.Errorf("iss.only=%q want candles", r.URL.Query().Get("iss.only"))
		}
		start := r.URL.Query().Get("start")
		starts = append(starts, start)
		switch start {
		case "0":
			fmt.Fprintf(w, candlePage, `300.1, 300.5, 301, 299.9, 1000000.5, 3333, "2024-03-01 09:30:00", "2024-03-01 09:30:59"`)
		case "1":
			fmt.Fprintf(w, candlePage, `300.5, 300.7, 300.9, 300.2, 2000000, 6666, "2024-03-01 09:31:00", "2024-03-01 09:31:59"`)
		default:
			fmt.Fprint(w, `{"candles": {"columns": ["open"], "data": []}}`)
		}
	}))
	defer srv.Close()

	c := NewMoexClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	got, err := c.Candles(context.Background(), CandlesRequest{Ticker: "SBER", From: "2024-03-01", Interval: 1})
	if err != nil {
		t.Fatalf("Candles()=%v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got)=%d want 2", len(got))
	}
	if got[1].Begin != "2024-03-01 09:31:00" || got[1].Volume != 6666 || got[0].Close != 300.5 {
		t.Fatalf("got=%+v", got)
	}
	if strings.Join(starts, ",") != "0,1,2" {
		t.Fatalf("starts=%v want 0,1,2", starts)
	}
}

func TestMoexCandlesInvalidRequestMakesNoCall(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	c := NewMoexClient(WithBaseURL(srv.URL))
	_, err := c.Candles(context.Background(), CandlesRequest{Ticker: "SBER", Interval: 2})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err=%v want ErrInvalidRequest", err)
	}
	if called {
		t.Fatalf("called=true want false")
	}
}

const marketdata = `{"marketdata": {"columns": ["SECID", "BOARDID", "LAST", "SYSTIME"],
"data": [["SBER", "TQBR", 300.5, "2024-03-01 10:00:00"], ["GAZP", "TQBR", 160.1, "2024-03-01 10:00:00"]]}}`

func TestMoexQuotesFiltersTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, marketdata)
	}))
	defer srv.Close()

	c := NewMoexClient(WithBaseURL(srv.URL))
	got, err := c.Quotes(context.Background(), "gazp")
	if err != nil {
		t.Fatalf("Quotes()=%v", err)
	}
	if len(got) != 1 || got[0]["SECID"] != "GAZP" {
		t.Fatalf("got=%v want GAZP row", got)
	}

	all, err := c.Quotes(context.Background(), "")
	if err != nil || len(all) != 2 {
		t.Fatalf("len(all)=%d err=%v want 2 rows", len(all), err)
	}
}

func TestMoexIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "/markets/index/boards/SNDX/") {
			t.Errorf("path=%s", r.URL.Path)
		}
		fmt.Fprint(w, `{"marketdata": {"columns": ["SECID", "BOARDID", "CURRENTVALUE", "SYSTIME"],
"data": [["IMOEX", "SNDX", 3250.5, "2024-03-01 10:00:05"]]}}`)
	}))
	defer srv.Close()

	c := NewMoexClient(WithBaseURL(srv.URL))
	s, err := c.Index(context.Background(), "IMOEX")
	if err != nil {
		t.Fatalf("Index()=%v", err)
	}
	if s == nil || s.SysTime != "2024-03-01 10:00:05" || s.CurrentValue == nil || *s.CurrentValue != 3250.5 {
		t.Fatalf("s=%+v", s)
	}

	s, err = c.Index(context.Background(), "RTSI")
	if err != nil || s != nil {
		t.Fatalf("Index(RTSI)=%v, %v want nil, nil", s, err)
	}
}

func TestMoexProtocolErrors(t *testing.T) {
	tests := map[string]string{
		"row length": `{"marketdata": {"columns": ["SECID", "LAST"], "data": [["SBER"]]}}`,
		"no table":   `{"securities": {"columns": [], "data": []}}`,
		"not json":   `<html></html>`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			}))
			defer srv.Close()

			_, err := NewMoexClient(WithBaseURL(srv.URL)).Quotes(context.Background(), "")
			if !errors.Is(err, ErrProtocol) {
				t.Fatalf("err=%v want ErrProtocol", err)
			}
		})
	}
}

func TestMoexStatusErrors(t *testing.T) {
	tests := map[int]error{
		http.StatusTooManyRequests:     ErrToManyRequests,
		http.StatusInternalServerError: ErrProtocol,
		http.StatusNotFound:            ErrProtocol,
	}
	for status, want := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		_, err := NewMoexClient(WithBaseURL(srv.URL)).Quotes(context.Background(), "")
		srv.Close()
		if !errors.Is(err, want) {
			t.Fatalf("status %d: err=%v want %v", status, err, want)
		}
	}
}

func TestMoexConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewMoexClient(WithBaseURL(url)).Quotes(context.Background(), "")
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err=%v want ErrConnection", err)
	}
}

func TestMoexTimeoutIsNotRetriedByDefault(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewMoexClient(WithBaseURL(srv.URL), WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := c.Candles(context.Background(), CandlesRequest{Ticker: "SBER", Interval: 1})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("err=%v want ErrConnection", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("hits=%d want 1", got)
	}
}
