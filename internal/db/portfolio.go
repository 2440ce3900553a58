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
	"context"
	"fmt"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/shopspring/decimal"
	"time"

	"github.com/ajjensen13/marketfeed/internal/model"
	"github.com/ajjensen13/marketfeed/internal/util"
)

func (s *Store) UserByTelegramID(ctx context.Context, telegramID int64) (model.User, error) {
	var u model.User
	err := s.q.QueryRow(ctx, `SELECT id, telegram_id, phone_number, registered_at, is_active FROM users WHERE telegram_id = $1`, telegramID).
		Scan(&u.ID, &u.TelegramID, &u.PhoneNumber, &u.RegisteredAt, &u.IsActive)
	if err != nil {
		return u, notFound(err, "failed to query user %d", telegramID)
	}
	return u, nil
}

// CreateUser registers telegramID with phone, or refreshes the phone of an
// existing registration.
func (s *Store) CreateUser(ctx context.Context, telegramID int64, phone string) (model.User, error) {
	var u model.User
	err := s.retry(ctx, util.ShortReqTimeout, func(ctx context.Context) error {
		return s.q.QueryRow(ctx, `INSERT INTO users (telegram_id, phone_number) VALUES ($1, $2)
ON CONFLICT (telegram_id) DO UPDATE SET phone_number = $2, is_active = TRUE
RETURNING id, telegram_id, phone_number, registered_at, is_active`, telegramID, phone).
			Scan(&u.ID, &u.TelegramID, &u.PhoneNumber, &u.RegisteredAt, &u.IsActive)
	})
	if err != nil {
		return u, fmt.Errorf("failed to create user %d: %w", telegramID, err)
	}
	return u, nil
}

func (s *Store) AddPurchase(ctx context.Context, p model.Purchase) (model.Purchase, error) {
	err := s.retry(ctx, util.ShortReqTimeout, func(ctx context.Context) error {
		return s.q.QueryRow(ctx, `INSERT INTO purchases (user_id, ticker, price, quantity, date) VALUES ($1, $2, $3::numeric, $4, $5) RETURNING id, created_at`,
			p.UserID, p.Ticker, p.Price.String(), p.Quantity, ledgerDate(p.Date)).Scan(&p.ID, &p.CreatedAt)
	})
	if err != nil {
		return p, fmt.Errorf("failed to add purchase of %s for user %d: %w", p.Ticker, p.UserID, err)
	}
	return p, nil
}

// AddSale records sale after checking, under a lock on the user, that the
// user still holds at least sale.Quantity of the ticker.
func (s *Store) AddSale(ctx context.Context, sale model.Sale) (model.Sale, error) {
	err := s.retry(ctx, util.ShortReqTimeout, func(ctx context.Context) error {
		return s.runTx(ctx, func(ctx context.Context, q Querier) error {
			var id int64
			if err := q.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, sale.UserID).Scan(&id); err != nil {
				return notFound(err, "failed to lock user %d", sale.UserID)
			}

			available, err := availableQuantity(ctx, q, sale.UserID, sale.Ticker)
			if err != nil {
				return err
			}
			if sale.Quantity > available {
				return fmt.Errorf("cannot sell %d %s, %d available: %w", sale.Quantity, sale.Ticker, available, ErrInsufficientQuantity)
			}

			return q.QueryRow(ctx, `INSERT INTO sales (user_id, ticker, price, quantity, date) VALUES ($1, $2, $3::numeric, $4, $5) RETURNING id, created_at`,
				sale.UserID, sale.Ticker, sale.Price.String(), sale.Quantity, ledgerDate(sale.Date)).Scan(&sale.ID, &sale.CreatedAt)
		})
	})
	if err != nil {
		return sale, fmt.Errorf("failed to add sale of %s for user %d: %w", sale.Ticker, sale.UserID, err)
	}
	return sale, nil
}

// AvailableQuantity is the purchased minus the sold quantity of ticker.
func (s *Store) AvailableQuantity(ctx context.Context, userID int64, ticker string) (int64, error) {
	return availableQuantity(ctx, s.q, userID, ticker)
}

func availableQuantity(ctx context.Context, q Querier, userID int64, ticker string) (int64, error) {
	var available int64
	err := q.QueryRow(ctx, `SELECT
	COALESCE((SELECT sum(quantity) FROM purchases WHERE user_id = $1 AND ticker = $2), 0) -
	COALESCE((SELECT sum(quantity) FROM sales WHERE user_id = $1 AND ticker = $2), 0)`, userID, ticker).Scan(&available)
	if err != nil {
		return 0, fmt.Errorf("failed to query available quantity of %s for user %d: %w", ticker, userID, err)
	}
	return available, nil
}

func (s *Store) Purchases(ctx context.Context, userID int64) ([]model.Purchase, error) {
	rows, err := s.q.Query(ctx, `SELECT id, user_id, ticker, price::text, quantity, date, created_at FROM purchases WHERE user_id = $1 ORDER BY date, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query purchases of user %d: %w", userID, err)
	}
	defer rows.Close()

	ret := make([]model.Purchase, 0)
	for rows.Next() {
		var p model.Purchase
		if err := scanLedger(rows, &p.ID, &p.UserID, &p.Ticker, &p.Price, &p.Quantity, &p.Date, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan purchase of user %d: %w", userID, err)
		}
		ret = append(ret, p)
	}
	return ret, rows.Err()
}

func (s *Store) Sales(ctx context.Context, userID int64) ([]model.Sale, error) {
	rows, err := s.q.Query(ctx, `SELECT id, user_id, ticker, price::text, quantity, date, created_at FROM sales WHERE user_id = $1 ORDER BY date, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales of user %d: %w", userID, err)
	}
	defer rows.Close()

	ret := make([]model.Sale, 0)
	for rows.Next() {
		var sale model.Sale
		if err := scanLedger(rows, &sale.ID, &sale.UserID, &sale.Ticker, &sale.Price, &sale.Quantity, &sale.Date, &sale.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sale of user %d: %w", userID, err)
		}
		ret = append(ret, sale)
	}
	return ret, rows.Err()
}

func scanLedger(rows pgx.Rows, id, userID *int64, ticker *string, price *decimal.Decimal, quantity *int64, date, createdAt *time.Time) error {
	var rawPrice string
	var d pgtype.Date
	if err := rows.Scan(id, userID, ticker, &rawPrice, quantity, &d, createdAt); err != nil {
		return err
	}
	p, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", rawPrice, err)
	}
	*price = p
	*date = d.Time
	return nil
}

func ledgerDate(t time.Time) pgtype.Date {
	return pgtype.Date{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), Status: pgtype.Present}
}
