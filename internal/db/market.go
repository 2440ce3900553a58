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

package db

import (
	"cloud.google.com/go/logging"
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"strings"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/transform"
	"github.com/ajjensen13/marketfeed/internal/util"
)

const candleColumns = 10

// InsertCandles writes candles in one statement. Candles whose
// (ticker, begin) is already stored are left untouched.
func (s *Store) InsertCandles(ctx context.Context, ticker string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	ctx = util.WithLoggerValue(ctx, "action", "load")

	var sb strings.Builder
	sb.WriteString(`INSERT INTO candles (ticker, "begin", "end", open, close, high, low, value, volume, trade_date) VALUES `)
	args := make([]interface{}, 0, len(candles)*candleColumns)
	for i, c := range candles {
		if i > 0 {
			sb.WriteString(", ")
		}
		n := i * candleColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)", n+1, n+2, n+3, n+4, n+5, n+6, n+7, n+8, n+9, n+10)

		var end pgtype.Timestamptz
		if c.End != nil {
			_ = end.Set(*c.End)
		} else {
			end.Status = pgtype.Null
		}
		var tradeDate pgtype.Date
		_ = tradeDate.Set(c.TradeDate)
		args = append(args, ticker, c.Begin, end, c.Open, c.Close, c.High, c.Low, c.Value, int64(c.Volume), tradeDate)
	}
	sb.WriteString(` ON CONFLICT (ticker, "begin") DO NOTHING`)

	return s.retry(ctx, util.MedReqTimeout, func(ctx context.Context) error {
		tag, err := s.q.Exec(ctx, sb.String(), args...)
		if err != nil {
			return fmt.Errorf("failed to insert %d candles of %q: %w", len(candles), ticker, err)
		}
		util.Logf(ctx, logging.Debug, "inserted %d of %d candles of %q", tag.RowsAffected(), len(candles), ticker)
		return nil
	})
}

// LatestClose returns the close of the latest stored candle of ticker on day.
func (s *Store) LatestClose(ctx context.Context, ticker string, day time.Time) (float64, bool, error) {
	var tradeDate pgtype.Date
	_ = tradeDate.Set(time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC))

	var closePrice float64
	err := s.q.QueryRow(ctx, `SELECT close FROM candles WHERE ticker = $1 AND trade_date = $2 ORDER BY "begin" DESC LIMIT 1`, ticker, tradeDate).Scan(&closePrice)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("failed to query latest close of %q: %w", ticker, err)
	}
	return closePrice, true, nil
}

// InsertIndexSnapshot writes s unless (secid, systime) is already stored.
func (s *Store) InsertIndexSnapshot(ctx context.Context, snap *model.IndexSnapshot) error {
	if snap == nil {
		return nil
	}
	ctx = util.WithLoggerValue(ctx, "action", "load")

	sysTime, err := transform.ParseTime(snap.SysTime, s.loc)
	if err != nil {
		return fmt.Errorf("failed to insert index snapshot %s: %w", snap.SecID, err)
	}

	args := []interface{}{
		snap.SecID, snap.BoardID, snap.LastValue, snap.OpenValue, snap.CurrentValue, snap.LastChange,
		snap.LastChangeToOpenPrc, snap.LastChangeToOpen, snap.UpdateTime, snap.LastChangePrc, snap.ValToday,
		snap.MonthChangePrc, snap.YearChangePrc, nullInt8(snap.SeqNum), sysTime, snap.Time, snap.ValTodayUSD,
		snap.LastChangeBP, snap.MonthChangeBP, snap.YearChangeBP, snap.Capitalization, snap.CapitalizationUSD,
		snap.High, snap.Low, nullDate(snap.TradeDate), snap.TradingSession, snap.VolToday, nullDate(snap.TradeSessionDate),
	}

	return s.retry(ctx, util.ShortReqTimeout, func(ctx context.Context) error {
		tag, err := s.q.Exec(ctx, `INSERT INTO index_snapshots (secid, boardid, lastvalue, openvalue, currentvalue, lastchange,
	lastchangetoopenprc, lastchangetoopen, updatetime, lastchangeprc, valtoday,
	monthchangeprc, yearchangeprc, seqnum, systime, "time", valtoday_usd,
	lastchangebp, monthchangebp, yearchangebp, capitalization, capitalization_usd,
	high, low, tradedate, tradingsession, voltoday, trade_session_date)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)
ON CONFLICT (secid, systime) DO NOTHING`, args...)
		if err != nil {
			return fmt.Errorf("failed to insert index snapshot %s at %s: %w", snap.SecID, snap.SysTime, err)
		}
		if tag.RowsAffected() == 0 {
			util.Logf(ctx, logging.Debug, "index snapshot %s at %s was already stored", snap.SecID, snap.SysTime)
		}
		return nil
	})
}

func nullInt8(v *uint64) pgtype.Int8 {
	if v == nil {
		return pgtype.Int8{Status: pgtype.Null}
	}
	return pgtype.Int8{Int: int64(*v), Status: pgtype.Present}
}

func nullDate(v *string) pgtype.Date {
	if v == nil || *v == "" {
		return pgtype.Date{Status: pgtype.Null}
	}
	t, err := time.Parse(transform.DateLayout, *v)
	if err != nil {
		return pgtype.Date{Status: pgtype.Null}
	}
	return pgtype.Date{Time: t, Status: pgtype.Present}
}
