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

// IndexSnapshot is the marketdata row of a market index at one point in
// time. SysTime is the source's own update stamp and, with SecID, identifies
// the snapshot.
type IndexSnapshot struct {
	SecID               string   `json:"SECID"`
	BoardID             string   `json:"BOARDID"`
	LastValue           *float64 `json:"LASTVALUE"`
	OpenValue           *float64 `json:"OPENVALUE"`
	CurrentValue        *float64 `json:"CURRENTVALUE"`
	LastChange          *float64 `json:"LASTCHANGE"`
	LastChangeToOpenPrc *float64 `json:"LASTCHANGETOOPENPRC"`
	LastChangeToOpen    *float64 `json:"LASTCHANGETOOPEN"`
	UpdateTime          *string  `json:"UPDATETIME"`
	LastChangePrc       *float64 `json:"LASTCHANGEPRC"`
	ValToday            *float64 `json:"VALTODAY"`
	MonthChangePrc      *float64 `json:"MONTHCHANGEPRC"`
	YearChangePrc       *float64 `json:"YEARCHANGEPRC"`
	SeqNum              *uint64  `json:"SEQNUM"`
	SysTime             string   `json:"SYSTIME"`
	Time                *string  `json:"TIME"`
	ValTodayUSD         *float64 `json:"VALTODAY_USD"`
	LastChangeBP        *int64   `json:"LASTCHANGEBP"`
	MonthChangeBP       *int64   `json:"MONTHCHANGEBP"`
	YearChangeBP        *int64   `json:"YEARCHANGEBP"`
	Capitalization      *float64 `json:"CAPITALIZATION"`
	CapitalizationUSD   *float64 `json:"CAPITALIZATION_USD"`
	High                *float64 `json:"HIGH"`
	Low                 *float64 `json:"LOW"`
	TradeDate           *string  `json:"TRADEDATE"`
	TradingSession      *string  `json:"TRADINGSESSION"`
	VolToday            *float64 `json:"VOLTODAY"`
	TradeSessionDate    *string  `json:"TRADE_SESSION_DATE"`
}
