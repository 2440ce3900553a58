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

package model

import (
	"time"
)

// CandleRecord is a candle as the market data source reports it. Begin and
// End are exchange-local timestamps in "2006-01-02 15:04:05" form.
type CandleRecord struct {
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Value  float64 `json:"value"`
	Volume uint64  `json:"volume"`
	Begin  string  `json:"begin"`
	End    string  `json:"end,omitempty"`
}

// Candle is a stored OHLCV aggregate. (Ticker, Begin) identifies it.
type Candle struct {
	Ticker    string     `json:"ticker"`
	Begin     time.Time  `json:"begin"`
	End       *time.Time `json:"end,omitempty"`
	Open      float64    `json:"open"`
	Close     float64    `json:"close"`
	High      float64    `json:"high"`
	Low       float64    `json:"low"`
	Value     float64    `json:"value"`
	Volume    uint64     `json:"volume"`
	TradeDate time.Time  `json:"trade_date"`
}

// Quote is one marketdata row of a trading board, keyed by source column name.
type Quote map[string]interface{}
