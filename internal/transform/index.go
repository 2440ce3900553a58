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

package transform

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/ajjensen13/marketfeed/internal/model"
)

// IndexSnapshot reads an index marketdata row. A row without SECID is
// rejected; a row without SYSTIME is returned with an empty SysTime.
func IndexSnapshot(row model.Quote) (*model.IndexSnapshot, error) {
	secid, ok := row["SECID"].(string)
	if !ok || secid == "" {
		return nil, &ValidationError{Field: "SECID", Value: row["SECID"]}
	}

	ret := &model.IndexSnapshot{
		SecID:               secid,
		LastValue:           floatPtr(row["LASTVALUE"]),
		OpenValue:           floatPtr(row["OPENVALUE"]),
		CurrentValue:        floatPtr(row["CURRENTVALUE"]),
		LastChange:          floatPtr(row["LASTCHANGE"]),
		LastChangeToOpenPrc: floatPtr(row["LASTCHANGETOOPENPRC"]),
		LastChangeToOpen:    floatPtr(row["LASTCHANGETOOPEN"]),
		UpdateTime:          stringPtr(row["UPDATETIME"]),
		LastChangePrc:       floatPtr(row["LASTCHANGEPRC"]),
		ValToday:            floatPtr(row["VALTODAY"]),
		MonthChangePrc:      floatPtr(row["MONTHCHANGEPRC"]),
		YearChangePrc:       floatPtr(row["YEARCHANGEPRC"]),
		SeqNum:              uint64Ptr(row["SEQNUM"]),
		Time:                stringPtr(row["TIME"]),
		ValTodayUSD:         floatPtr(row["VALTODAY_USD"]),
		LastChangeBP:        int64Ptr(row["LASTCHANGEBP"]),
		MonthChangeBP:       int64Ptr(row["MONTHCHANGEBP"]),
		YearChangeBP:        int64Ptr(row["YEARCHANGEBP"]),
		Capitalization:      floatPtr(row["CAPITALIZATION"]),
		CapitalizationUSD:   floatPtr(row["CAPITALIZATION_USD"]),
		High:                floatPtr(row["HIGH"]),
		Low:                 floatPtr(row["LOW"]),
		TradeDate:           stringPtr(row["TRADEDATE"]),
		TradingSession:      stringPtr(row["TRADINGSESSION"]),
		VolToday:            floatPtr(row["VOLTODAY"]),
		TradeSessionDate:    stringPtr(row["TRADE_SESSION_DATE"]),
	}
	ret.BoardID, _ = row["BOARDID"].(string)
	ret.SysTime, _ = row["SYSTIME"].(string)

	return ret, nil
}

func floatPtr(v interface{}) *float64 {
	f, ok := Float(v)
	if !ok {
		return nil
	}
	return &f
}

func int64Ptr(v interface{}) *int64 {
	if n, ok := v.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return &i
		}
	}
	f, ok := Float(v)
	if !ok {
		return nil
	}
	i := int64(math.Round(f))
	return &i
}

func uint64Ptr(v interface{}) *uint64 {
	if n, ok := v.(json.Number); ok {
		if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
			return &u
		}
	}
	f, ok := Float(v)
	if !ok || f < 0 {
		return nil
	}
	u := uint64(math.Round(f))
	return &u
}

func stringPtr(v interface{}) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
