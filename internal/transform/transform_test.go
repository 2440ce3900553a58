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
	"errors"
	"github.com/Finnhub-Stock-API/finnhub-go"
	"reflect"
	"testing"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
)

func TestExtractTags(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"Hello #Tech and #tech!", []string{"tech"}},
		{"no tags here", []string{}},
		{"", []string{}},
		{"#SBER #gazp #Sber_Pref", []string{"gazp", "sber", "sber_pref"}},
		{"#Нефть и #нефть", []string{"нефть"}},
	}
	for _, c := range cases {
		got := ExtractTags(c.text)
		if got == nil || !reflect.DeepEqual(got, c.want) {
			t.Fatalf("ExtractTags(%q)=%#v want %#v", c.text, got, c.want)
		}
	}
}

func TestCandle(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	c, err := Candle("SBER", model.CandleRecord{Begin: "2024-03-01 09:30:00", End: "2024-03-01 09:30:59", Open: 1, Close: 2, Volume: 10}, loc)
	if err != nil {
		t.Fatalf("Candle: %v", err)
	}
	if !c.Begin.Equal(time.Date(2024, 3, 1, 9, 30, 0, 0, loc)) {
		t.Fatalf("begin=%v", c.Begin)
	}
	if c.End == nil || c.End.Sub(c.Begin) != 59*time.Second {
		t.Fatalf("end=%v", c.End)
	}
	if !c.TradeDate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, loc)) {
		t.Fatalf("trade date=%v", c.TradeDate)
	}

	_, err = Candle("SBER", model.CandleRecord{Begin: "2024-03-01T09:30"}, loc)
	if !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("err=%v want ErrInvalidRecord", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "begin" {
		t.Fatalf("err=%v want begin validation error", err)
	}
}

func TestCandleRecord(t *testing.T) {
	row := model.Quote{"begin": "2024-03-01 09:30:00", "end": "2024-03-01 09:30:59", "open": 280.5, "volume": json.Number("1200")}
	r, err := CandleRecord(row)
	if err != nil {
		t.Fatalf("CandleRecord: %v", err)
	}
	if r.Open != 280.5 || r.Volume != 1200 || r.End != "2024-03-01 09:30:59" {
		t.Fatalf("record=%+v", r)
	}

	if _, err := CandleRecord(model.Quote{"open": 1.0}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("missing begin err=%v", err)
	}
}

func TestIndexSnapshot(t *testing.T) {
	row := model.Quote{
		"SECID":        "IMOEX",
		"BOARDID":      "SNDX",
		"CURRENTVALUE": 3200.5,
		"SEQNUM":       json.Number("20240301100000"),
		"SYSTIME":      "2024-03-01 10:00:05",
		"TRADEDATE":    "2024-03-01",
		"LASTCHANGEBP": json.Number("-12"),
	}
	s, err := IndexSnapshot(row)
	if err != nil {
		t.Fatalf("IndexSnapshot: %v", err)
	}
	if s.SysTime != "2024-03-01 10:00:05" || s.BoardID != "SNDX" {
		t.Fatalf("snapshot=%+v", s)
	}
	if s.CurrentValue == nil || *s.CurrentValue != 3200.5 {
		t.Fatalf("current value=%v", s.CurrentValue)
	}
	if s.SeqNum == nil || *s.SeqNum != 20240301100000 {
		t.Fatalf("seqnum=%v", s.SeqNum)
	}
	if s.LastChangeBP == nil || *s.LastChangeBP != -12 {
		t.Fatalf("lastchangebp=%v", s.LastChangeBP)
	}
	if s.OpenValue != nil {
		t.Fatalf("open value=%v want nil", *s.OpenValue)
	}

	delete(row, "SYSTIME")
	s, err = IndexSnapshot(row)
	if err != nil || s.SysTime != "" {
		t.Fatalf("snapshot without systime: %+v, %v", s, err)
	}

	if _, err := IndexSnapshot(model.Quote{}); !errors.Is(err, ErrInvalidRecord) {
		t.Fatalf("missing secid err=%v", err)
	}
}

func TestFinnhubCandles(t *testing.T) {
	loc := time.UTC
	in := finnhub.StockCandles{
		O: []float32{1, 2},
		H: []float32{1, 2},
		L: []float32{1, 2},
		C: []float32{1, 2},
		V: []float32{10, 20},
		T: []int64{1709285400, 1709285460},
	}
	out, err := FinnhubCandles("AAPL", in, loc)
	if err != nil {
		t.Fatalf("FinnhubCandles: %v", err)
	}
	if len(out) != 2 || out[0].Begin != "2024-03-01 09:30:00" || out[1].Volume != 20 {
		t.Fatalf("out=%+v", out)
	}

	in.V = in.V[:1]
	if _, err := FinnhubCandles("AAPL", in, loc); err == nil {
		t.Fatalf("mismatched lengths accepted")
	}
}

func TestNewsItem(t *testing.T) {
	date := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("MSK", 3*60*60))
	item := NewsItem("rbc_news", model.Message{ID: 42, Date: date, Text: "Rates #CBR #cbr"})
	if item.MsgID != 42 || item.Channel != "rbc_news" || !reflect.DeepEqual(item.Tags, []string{"cbr"}) {
		t.Fatalf("item=%+v", item)
	}
	if item.Date.Location() != time.UTC || !item.Date.Equal(date) {
		t.Fatalf("date=%v", item.Date)
	}
}
