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

// Package transform maps source records onto the stored model.
package transform

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/Finnhub-Stock-API/finnhub-go"
	"math"
	"strconv"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
)

// TimeLayout is the exchange-local timestamp layout used by the market data source.
const TimeLayout = "2006-01-02 15:04:05"

const DateLayout = "2006-01-02"

var ErrInvalidRecord = errors.New("invalid record")

// ValidationError reports a single malformed field. Records failing
// validation are skipped; their siblings are unaffected.
type ValidationError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid %s %v", e.Field, e.Value)
	}
	return fmt.Sprintf("invalid %s %v: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidRecord
}

// ParseTime parses an exchange-local timestamp in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(TimeLayout, s, loc)
}

// Candle converts a source record into a stored candle for ticker.
func Candle(ticker string, r model.CandleRecord, loc *time.Location) (model.Candle, error) {
	begin, err := ParseTime(r.Begin, loc)
	if err != nil {
		return model.Candle{}, &ValidationError{Field: "begin", Value: r.Begin, Err: err}
	}

	var end *time.Time
	if r.End != "" {
		e, err := ParseTime(r.End, loc)
		if err != nil {
			return model.Candle{}, &ValidationError{Field: "end", Value: r.End, Err: err}
		}
		end = &e
	}

	return model.Candle{
		Ticker:    ticker,
		Begin:     begin,
		End:       end,
		Open:      r.Open,
		Close:     r.Close,
		High:      r.High,
		Low:       r.Low,
		Value:     r.Value,
		Volume:    r.Volume,
		TradeDate: time.Date(begin.Year(), begin.Month(), begin.Day(), 0, 0, 0, 0, loc),
	}, nil
}

// CandleRecord reads one row of the source's candles table.
func CandleRecord(row model.Quote) (model.CandleRecord, error) {
	begin, ok := row["begin"].(string)
	if !ok || begin == "" {
		return model.CandleRecord{}, &ValidationError{Field: "begin", Value: row["begin"]}
	}
	end, _ := row["end"].(string)

	ret := model.CandleRecord{Begin: begin, End: end}
	ret.Open, _ = Float(row["open"])
	ret.Close, _ = Float(row["close"])
	ret.High, _ = Float(row["high"])
	ret.Low, _ = Float(row["low"])
	ret.Value, _ = Float(row["value"])
	if v, ok := Float(row["volume"]); ok && v > 0 {
		ret.Volume = uint64(math.Round(v))
	}
	return ret, nil
}

// FinnhubCandles converts a finnhub candle response into source records
// with timestamps rendered in loc.
func FinnhubCandles(symbol string, in finnhub.StockCandles, loc *time.Location) ([]model.CandleRecord, error) {
	l := len(in.T)
	switch {
	case l == 0:
		return nil, nil
	case len(in.O) != l:
		return nil, fmt.Errorf("len(open) = %d, len(timestamp) = %d for stock %q", len(in.O), l, symbol)
	case len(in.H) != l:
		return nil, fmt.Errorf("len(high) = %d, len(timestamp) = %d for stock %q", len(in.H), l, symbol)
	case len(in.L) != l:
		return nil, fmt.Errorf("len(low) = %d, len(timestamp) = %d for stock %q", len(in.L), l, symbol)
	case len(in.C) != l:
		return nil, fmt.Errorf("len(close) = %d, len(timestamp) = %d for stock %q", len(in.C), l, symbol)
	case len(in.V) != l:
		return nil, fmt.Errorf("len(volume) = %d, len(timestamp) = %d for stock %q", len(in.V), l, symbol)
	}

	result := make([]model.CandleRecord, l)
	for ndx, ts := range in.T {
		result[ndx] = model.CandleRecord{
			Begin:  time.Unix(ts, 0).In(loc).Format(TimeLayout),
			Open:   float64(in.O[ndx]),
			High:   float64(in.H[ndx]),
			Low:    float64(in.L[ndx]),
			Close:  float64(in.C[ndx]),
			Volume: uint64(math.Round(float64(in.V[ndx]))),
		}
	}

	return result, nil
}

// Float reads a numeric cell of a decoded source table.
func Float(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
